package port

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Abbracx/loan-be/internal/service/loan/domain"
	"github.com/Abbracx/loan-be/internal/service/loan/domain/fraud"
)

// FraudDetector 是欺诈检测能力的入口，由应用层实现、被 Saga 调用。
type FraudDetector interface {
	// CheckFraud 返回所有命中的原因，空切片表示无风险。
	CheckFraud(ctx context.Context, applicant *domain.Applicant, amount decimal.Decimal) ([]string, error)
	// FlagLoan 把申请置为 FLAGGED 并为每个原因写入一条标记。
	FlagLoan(ctx context.Context, loan *domain.LoanApplication, reasons []string) error
}

// RuleEngine 执行配置中的附加规则（CEL）。
type RuleEngine interface {
	Evaluate(ctx context.Context, facts fraud.Facts) ([]string, error)
}
