package saga

import (
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/codes"

	"github.com/Abbracx/loan-be/internal/pkg/logger"
	"github.com/Abbracx/loan-be/internal/service/loan/domain"
)

// PersistLoanHandler 先以 PENDING 状态落库，后续的频率统计会把它算进去。
type PersistLoanHandler struct {
	NextHandler
}

func (h *PersistLoanHandler) Handle(loanCtx *LoanContext) error {
	ctx, span := loanCtx.Tracer.Start(loanCtx.Ctx, "saga.PersistLoan")
	defer span.End()

	loan, err := domain.NewLoanApplication(loanCtx.Applicant, loanCtx.Amount, loanCtx.Purpose, loanCtx.Now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid loan application")
		return err
	}

	if err := loanCtx.LoanRepo.Create(ctx, loan); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist loan failed")
		return errors.Wrap(err, "persist loan application")
	}
	loanCtx.Loan = loan
	logger.Ctx(ctx).Debug().Str("loan", loan.ID).Str("user", loan.UserID).Msg("loan application persisted")

	return h.executeNext(loanCtx)
}
