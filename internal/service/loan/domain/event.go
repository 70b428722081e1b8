// internal/service/loan/domain/event.go
package domain

import "time"

// LoanFlaggedEvent 是贷款被标记后发给管理员通知任务的事件。
type LoanFlaggedEvent struct {
	LoanID    string    `json:"loan_id"`
	UserEmail string    `json:"user_email"`
	Amount    string    `json:"amount"`
	Reasons   []string  `json:"reasons"`
	FlaggedAt time.Time `json:"flagged_at"`
}

func NewLoanFlaggedEvent(loan *LoanApplication, reasons []string, at time.Time) *LoanFlaggedEvent {
	return &LoanFlaggedEvent{
		LoanID:    loan.ID,
		UserEmail: loan.UserEmail,
		Amount:    loan.AmountRequested.StringFixed(2),
		Reasons:   append([]string(nil), reasons...),
		FlaggedAt: at,
	}
}
