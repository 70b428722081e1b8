// internal/service/notification/domain/email.go
package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidMessage = errors.New("invalid loan flagged message")

// LoanFlagged 是从 Kafka 收到的贷款标记消息。
type LoanFlagged struct {
	LoanID    string    `json:"loan_id"`
	UserEmail string    `json:"user_email"`
	Amount    string    `json:"amount"`
	Reasons   []string  `json:"reasons"`
	FlaggedAt time.Time `json:"flagged_at"`
}

func (m *LoanFlagged) Validate() error {
	if m.LoanID == "" {
		return fmt.Errorf("%w: loan_id is required", ErrInvalidMessage)
	}
	return nil
}

type Email struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// EmailSender 负责实际投递邮件。
type EmailSender interface {
	Send(ctx context.Context, email *Email) error
}

// ComposeFlaggedEmail 生成发给管理员的通知邮件。
func ComposeFlaggedEmail(m *LoanFlagged, from string, to []string) *Email {
	var b strings.Builder
	b.WriteString("A loan application has been flagged for review:\n\n")
	fmt.Fprintf(&b, "User: %s\n", m.UserEmail)
	fmt.Fprintf(&b, "Amount: NGN %s\n", m.Amount)
	fmt.Fprintf(&b, "Reasons: %s\n\n", strings.Join(m.Reasons, ", "))
	b.WriteString("Please review in the admin panel.\n")

	return &Email{
		From:    from,
		To:      append([]string(nil), to...),
		Subject: "Loan Application Flagged - " + m.LoanID,
		Body:    b.String(),
	}
}
