// internal/service/loan/application/fraud_service.go
package application

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Abbracx/loan-be/internal/pkg/logger"
	"github.com/Abbracx/loan-be/internal/pkg/metrics"
	"github.com/Abbracx/loan-be/internal/service/loan/domain"
	"github.com/Abbracx/loan-be/internal/service/loan/domain/fraud"
	"github.com/Abbracx/loan-be/internal/service/loan/domain/port"
)

const (
	domainUsersKeyPrefix = "fraud:domain_users:"
	flaggedListPattern   = "loans:flagged:*"
)

// FraudDetectionService 收集事实、执行规则，并负责标记贷款的全部副作用。
type FraudDetectionService struct {
	loanRepo domain.LoanRepository
	users    port.UserDirectory
	cache    port.Cache
	notifier port.NotificationProducer
	feed     port.FlagFeed
	rules    port.RuleEngine
	policy   fraud.Policy
	tracer   trace.Tracer
	now      func() time.Time
}

// NewFraudDetectionService rules 与 feed 可以为 nil。
func NewFraudDetectionService(loanRepo domain.LoanRepository, users port.UserDirectory, cache port.Cache, notifier port.NotificationProducer, feed port.FlagFeed, rules port.RuleEngine, policy fraud.Policy, tracer trace.Tracer) *FraudDetectionService {
	return &FraudDetectionService{
		loanRepo: loanRepo, users: users, cache: cache,
		notifier: notifier, feed: feed, rules: rules,
		policy: policy, tracer: tracer, now: time.Now,
	}
}

var _ port.FraudDetector = (*FraudDetectionService)(nil)

func (s *FraudDetectionService) CheckFraud(ctx context.Context, applicant *domain.Applicant, amount decimal.Decimal) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "fraud.CheckFraud")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", applicant.ID))

	since := s.now().Add(-s.policy.VelocityWindow)
	recent, err := s.loanRepo.CountByUserSince(ctx, applicant.ID, since)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "velocity count failed")
		return nil, errors.Wrap(err, "count recent loans")
	}

	emailDomain, err := fraud.EmailDomain(applicant.Email)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed email")
		return nil, errors.Wrapf(err, "user %s", applicant.ID)
	}

	domainUsers, err := s.domainUserCount(ctx, emailDomain)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "domain count failed")
		return nil, err
	}

	facts := fraud.Facts{
		Amount:      amount,
		RecentLoans: recent,
		DomainUsers: domainUsers,
		EmailDomain: emailDomain,
	}
	reasons := fraud.Evaluate(facts, s.policy)

	if s.rules != nil {
		extra, err := s.rules.Evaluate(ctx, facts)
		if err != nil {
			// 附加规则失败不影响内置规则的结论
			logger.Ctx(ctx).Error().Err(err).Str("user", applicant.ID).Msg("custom fraud rules failed")
			span.RecordError(err)
		}
		reasons = append(reasons, extra...)
	}

	span.SetAttributes(attribute.Int("fraud.reasons", len(reasons)))
	return reasons, nil
}

// domainUserCount 读穿缓存，不随用户注册失效。
func (s *FraudDetectionService) domainUserCount(ctx context.Context, emailDomain string) (int64, error) {
	// 域名大小写不敏感，与 users 表的比较规则一致
	key := domainUsersKeyPrefix + strings.ToLower(emailDomain)

	raw, found, err := s.cache.Get(ctx, key)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache read failed, falling back to database")
	} else if found {
		if n, perr := strconv.ParseInt(string(raw), 10, 64); perr == nil {
			return n, nil
		}
	}

	n, err := s.users.CountUsersByEmailDomain(ctx, emailDomain)
	if err != nil {
		return 0, errors.Wrapf(err, "count users of domain %s", emailDomain)
	}
	if err := s.cache.Set(ctx, key, []byte(strconv.FormatInt(n, 10)), s.policy.DomainCacheTTL); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return n, nil
}

// FlagLoan 只有状态和标记的持久化失败会返回错误，缓存失效与通知都是尽力而为。
func (s *FraudDetectionService) FlagLoan(ctx context.Context, loan *domain.LoanApplication, reasons []string) error {
	ctx, span := s.tracer.Start(ctx, "fraud.FlagLoan")
	defer span.End()
	span.SetAttributes(attribute.String("loan.id", loan.ID), attribute.Int("fraud.reasons", len(reasons)))

	if len(reasons) == 0 {
		return domain.ErrNoReasons
	}
	for _, r := range reasons {
		if err := domain.ValidateFlagReason(r); err != nil {
			return err
		}
	}

	now := s.now()
	if err := loan.MarkFlagged(now); err != nil {
		return err
	}
	if err := s.loanRepo.UpdateStatus(ctx, loan.ID, loan.Status, loan.DateUpdated); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update status failed")
		return errors.Wrap(err, "mark loan flagged")
	}

	flags, err := s.loanRepo.AddFraudFlags(ctx, loan.ID, reasons, now)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("loan", loan.ID).Msg("🚨 loan is FLAGGED but its fraud flags were not saved")
		span.RecordError(err)
		span.SetStatus(codes.Error, "add fraud flags failed")
		return errors.Wrap(err, "add fraud flags")
	}
	loan.AppendFlags(flags)
	for _, r := range reasons {
		metrics.FraudFlagsTotal.WithLabelValues(r).Inc()
	}

	if err := s.cache.DeletePattern(ctx, flaggedListPattern); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("pattern", flaggedListPattern).Msg("failed to invalidate flagged list cache")
	}

	event := domain.NewLoanFlaggedEvent(loan, reasons, now)
	if err := s.notifier.SendLoanFlagged(ctx, event); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("loan", loan.ID).Msg("failed to enqueue admin notification")
		span.RecordError(err)
	}
	if s.feed != nil {
		s.feed.Publish(event)
	}

	logger.Ctx(ctx).Info().Str("loan", loan.ID).Strs("reasons", reasons).Msg("loan flagged")
	return nil
}
