// internal/service/loan/application/loan_service.go
package application

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Abbracx/loan-be/internal/pkg/auth"
	"github.com/Abbracx/loan-be/internal/pkg/logger"
	"github.com/Abbracx/loan-be/internal/pkg/metrics"
	"github.com/Abbracx/loan-be/internal/pkg/pagination"
	"github.com/Abbracx/loan-be/internal/service/loan/application/saga"
	"github.com/Abbracx/loan-be/internal/service/loan/domain"
	"github.com/Abbracx/loan-be/internal/service/loan/domain/port"
)

// ManualFlagReason 是管理员未填写原因时使用的默认值。
const ManualFlagReason = "Manual flag by admin"

// LoanApplicationService 负责贷款申请的用例编排：创建、查询与审核。
type LoanApplicationService struct {
	loanRepo domain.LoanRepository
	users    port.UserDirectory
	fraud    port.FraudDetector
	locker   port.UserLocker
	cache    port.Cache
	listTTL  time.Duration
	loc      *time.Location
	tracer   trace.Tracer
	now      func() time.Time
}

func NewLoanApplicationService(loanRepo domain.LoanRepository, users port.UserDirectory, fraud port.FraudDetector, locker port.UserLocker, cache port.Cache, listTTL time.Duration, loc *time.Location, tracer trace.Tracer) *LoanApplicationService {
	if loc == nil {
		loc = time.UTC
	}
	return &LoanApplicationService{
		loanRepo: loanRepo, users: users, fraud: fraud,
		locker: locker, cache: cache, listTTL: listTTL,
		loc: loc, tracer: tracer, now: time.Now,
	}
}

// CreateLoan 在用户锁内依次执行：落库 -> 欺诈检测 -> 标记。
func (s *LoanApplicationService) CreateLoan(ctx context.Context, req *CreateLoanRequest) (*LoanResponse, error) {
	ctx, span := s.tracer.Start(ctx, "app.CreateLoan")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", req.UserID))

	applicant, err := s.users.FindApplicant(ctx, req.UserID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	release, err := s.locker.Lock(ctx, applicant.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "acquire user lock failed")
		return nil, err
	}
	defer release()

	loanCtx := &saga.LoanContext{
		Ctx:       ctx,
		Tracer:    s.tracer,
		Applicant: applicant,
		Amount:    req.Amount,
		Purpose:   req.Purpose,
		Now:       s.now(),
		LoanRepo:  s.loanRepo,
		Fraud:     s.fraud,
	}
	err = s.buildChain().Handle(loanCtx)

	// 只要已经落库，列表缓存就必须失效
	if loanCtx.Loan != nil {
		s.invalidateLists(ctx, applicant.ID)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create loan failed")
		return nil, err
	}

	loan := loanCtx.Loan
	metrics.LoansCreatedTotal.WithLabelValues(string(loan.Status)).Inc()
	logger.Ctx(ctx).Info().
		Str("loan", loan.ID).
		Str("user", applicant.ID).
		Str("status", string(loan.Status)).
		Msg("✅ loan application created")

	return toLoanResponse(loan, s.loc), nil
}

func (s *LoanApplicationService) buildChain() saga.Handler {
	persist := &saga.PersistLoanHandler{}
	persist.SetNext(&saga.FraudCheckHandler{}).
		SetNext(&saga.FlagLoanHandler{})
	return persist
}

// ListLoans 管理员看到全部申请，普通用户只能看到自己的。
func (s *LoanApplicationService) ListLoans(ctx context.Context, p auth.Principal, req ListLoansRequest) (*LoanPage, error) {
	ctx, span := s.tracer.Start(ctx, "app.ListLoans")
	defer span.End()

	q, err := buildListQuery(req)
	if err != nil {
		return nil, err
	}

	query := listQueryKey(q.Status, q.Ordering, req.Page)
	key := allListKey(query)
	if !p.IsStaff {
		q.OwnerID = p.UserID
		key = userListKey(p.UserID, query)
	}
	return s.cachedPage(ctx, key, q, req.Page)
}

// ListFlagged 仅管理员可用，返回所有 FLAGGED 状态的申请。
func (s *LoanApplicationService) ListFlagged(ctx context.Context, p auth.Principal, req ListLoansRequest) (*LoanPage, error) {
	if !p.IsStaff {
		return nil, domain.ErrForbidden
	}
	ctx, span := s.tracer.Start(ctx, "app.ListFlagged")
	defer span.End()

	req.Status = string(domain.StatusFlagged)
	q, err := buildListQuery(req)
	if err != nil {
		return nil, err
	}
	key := flaggedListKey(listQueryKey(q.Status, q.Ordering, req.Page))
	return s.cachedPage(ctx, key, q, req.Page)
}

func (s *LoanApplicationService) GetLoan(ctx context.Context, p auth.Principal, id string) (*LoanResponse, error) {
	ctx, span := s.tracer.Start(ctx, "app.GetLoan")
	defer span.End()

	loan, err := s.loanRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsStaff && !loan.IsOwnedBy(p.UserID) {
		return nil, domain.ErrForbidden
	}
	return toLoanResponse(loan, s.loc), nil
}

func (s *LoanApplicationService) Approve(ctx context.Context, p auth.Principal, id string) (*StatusResponse, error) {
	return s.review(ctx, p, id, "approve", func(ctx context.Context, loan *domain.LoanApplication) error {
		if err := loan.Approve(s.now()); err != nil {
			return err
		}
		return s.loanRepo.UpdateStatus(ctx, loan.ID, loan.Status, loan.DateUpdated)
	})
}

func (s *LoanApplicationService) Reject(ctx context.Context, p auth.Principal, id string) (*StatusResponse, error) {
	return s.review(ctx, p, id, "reject", func(ctx context.Context, loan *domain.LoanApplication) error {
		if err := loan.Reject(s.now()); err != nil {
			return err
		}
		return s.loanRepo.UpdateStatus(ctx, loan.ID, loan.Status, loan.DateUpdated)
	})
}

// Flag 手动标记，reason 为空时使用默认原因。
func (s *LoanApplicationService) Flag(ctx context.Context, p auth.Principal, id, reason string) (*StatusResponse, error) {
	if reason == "" {
		reason = ManualFlagReason
	}
	return s.review(ctx, p, id, "flag", func(ctx context.Context, loan *domain.LoanApplication) error {
		return s.fraud.FlagLoan(ctx, loan, []string{reason})
	})
}

// review 权限检查必须先于加载申请。
func (s *LoanApplicationService) review(ctx context.Context, p auth.Principal, id, action string, apply func(context.Context, *domain.LoanApplication) error) (*StatusResponse, error) {
	if !p.IsStaff {
		return nil, domain.ErrForbidden
	}
	ctx, span := s.tracer.Start(ctx, "app.Review")
	defer span.End()
	span.SetAttributes(attribute.String("loan.id", id), attribute.String("review.action", action))

	loan, err := s.loanRepo.FindByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := apply(ctx, loan); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, action+" failed")
		return nil, err
	}

	s.invalidateLists(ctx, loan.UserID)
	if err := s.cache.DeletePattern(ctx, flaggedListPattern); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("failed to invalidate flagged list cache")
	}
	metrics.ReviewActionsTotal.WithLabelValues(action).Inc()
	logger.Ctx(ctx).Info().
		Str("loan", loan.ID).
		Str("admin", p.UserID).
		Str("action", action).
		Msg("loan application reviewed")

	return &StatusResponse{Status: loan.Status}, nil
}

func (s *LoanApplicationService) invalidateLists(ctx context.Context, ownerID string) {
	for _, pattern := range []string{userListPattern(ownerID), allListPattern} {
		if err := s.cache.DeletePattern(ctx, pattern); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("pattern", pattern).Msg("failed to invalidate loan list cache")
		}
	}
}

func (s *LoanApplicationService) cachedPage(ctx context.Context, key string, q domain.ListQuery, params pagination.Params) (*LoanPage, error) {
	raw, found, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache read failed")
	case found:
		var page LoanPage
		if err := json.Unmarshal(raw, &page); err == nil {
			logger.Ctx(ctx).Debug().Str("key", key).Msg("cache hit")
			return &page, nil
		}
	}

	loans, total, err := s.loanRepo.List(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "list loan applications")
	}
	page := pagination.NewPage(toLoanResponses(loans, s.loc), total, params)

	if raw, err := json.Marshal(page); err == nil {
		if err := s.cache.Set(ctx, key, raw, s.listTTL); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	return page, nil
}

func buildListQuery(req ListLoansRequest) (domain.ListQuery, error) {
	q := domain.ListQuery{
		Ordering: domain.OrderDateAppliedDesc,
		Offset:   req.Page.Offset(),
		Limit:    req.Page.PageSize,
	}
	if req.Status != "" {
		st, err := domain.ParseStatus(req.Status)
		if err != nil {
			return q, err
		}
		q.Status = st
	}
	if req.Ordering != "" {
		o := domain.Ordering(req.Ordering)
		if !o.Valid() {
			return q, errors.Wrapf(domain.ErrInvalidLoan, "unknown ordering %q", req.Ordering)
		}
		q.Ordering = o
	}
	return q, nil
}
