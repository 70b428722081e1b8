package saga

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"

	"github.com/Abbracx/loan-be/internal/service/loan/domain"
	"github.com/Abbracx/loan-be/internal/service/loan/domain/port"
)

// LoanContext 在申请创建流程中传递输入、中间结果和依赖的端口。
type LoanContext struct {
	Ctx    context.Context
	Tracer trace.Tracer

	Applicant *domain.Applicant
	Amount    decimal.Decimal
	Purpose   string
	Now       time.Time

	// 由各步骤依次填充
	Loan    *domain.LoanApplication
	Reasons []string

	LoanRepo domain.LoanRepository
	Fraud    port.FraudDetector
}

type Handler interface {
	SetNext(handler Handler) Handler
	Handle(loanCtx *LoanContext) error
}

type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(loanCtx *LoanContext) error {
	if h.next != nil {
		return h.next.Handle(loanCtx)
	}
	return nil
}
