package saga

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// FraudCheckHandler 执行规则，把命中的原因写回上下文。
type FraudCheckHandler struct {
	NextHandler
}

func (h *FraudCheckHandler) Handle(loanCtx *LoanContext) error {
	ctx, span := loanCtx.Tracer.Start(loanCtx.Ctx, "saga.FraudCheck")
	defer span.End()

	reasons, err := loanCtx.Fraud.CheckFraud(ctx, loanCtx.Applicant, loanCtx.Loan.AmountRequested)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fraud check failed")
		return err
	}
	loanCtx.Reasons = reasons
	span.SetAttributes(attribute.Int("fraud.reasons", len(reasons)))

	return h.executeNext(loanCtx)
}
