package saga

import (
	"go.opentelemetry.io/otel/codes"
)

// FlagLoanHandler 有命中原因时同步标记，响应里即可看到 FLAGGED 状态。
type FlagLoanHandler struct {
	NextHandler
}

func (h *FlagLoanHandler) Handle(loanCtx *LoanContext) error {
	if len(loanCtx.Reasons) == 0 {
		return h.executeNext(loanCtx)
	}

	ctx, span := loanCtx.Tracer.Start(loanCtx.Ctx, "saga.FlagLoan")
	defer span.End()

	if err := loanCtx.Fraud.FlagLoan(ctx, loanCtx.Loan, loanCtx.Reasons); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "flag loan failed")
		return err
	}

	return h.executeNext(loanCtx)
}
