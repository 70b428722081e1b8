// internal/service/notification/application/service.go
package application

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Abbracx/loan-be/internal/pkg/logger"
	"github.com/Abbracx/loan-be/internal/pkg/metrics"
	"github.com/Abbracx/loan-be/internal/service/notification/domain"
)

// NotificationService 把贷款标记消息转换成管理员邮件并发送。
type NotificationService struct {
	sender      domain.EmailSender
	from        string
	adminEmails []string
	tracer      trace.Tracer
}

func NewNotificationService(sender domain.EmailSender, from string, adminEmails []string, tracer trace.Tracer) *NotificationService {
	return &NotificationService{
		sender:      sender,
		from:        from,
		adminEmails: adminEmails,
		tracer:      tracer,
	}
}

// HandleLoanFlagged 发送失败时返回错误，由消费者决定重试。
func (s *NotificationService) HandleLoanFlagged(ctx context.Context, msg *domain.LoanFlagged) error {
	ctx, span := s.tracer.Start(ctx, "notification.HandleLoanFlagged")
	defer span.End()

	if err := msg.Validate(); err != nil {
		span.RecordError(err)
		metrics.NotificationsTotal.WithLabelValues("invalid").Inc()
		return err
	}
	span.SetAttributes(attribute.String("loan.id", msg.LoanID), attribute.Int("fraud.reasons", len(msg.Reasons)))

	email := domain.ComposeFlaggedEmail(msg, s.from, s.adminEmails)
	if err := s.sender.Send(ctx, email); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send email failed")
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		logger.Ctx(ctx).Error().Err(err).Str("loan", msg.LoanID).Msg("failed to send fraud notification")
		return errors.Wrapf(err, "send notification for loan %s", msg.LoanID)
	}

	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	logger.Ctx(ctx).Info().Str("loan", msg.LoanID).Strs("to", s.adminEmails).Msg("✅ fraud notification sent")
	return nil
}
