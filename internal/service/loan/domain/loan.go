// internal/service/loan/domain/loan.go
package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// decimal(12,2)
	amountMaxDigits = 12
	amountScale     = 2
)

// Applicant 是欺诈规则关心的申请人信息，来自用户上下文。
type Applicant struct {
	ID    string
	Email string
}

// LoanApplication 是贷款申请聚合的根实体。
type LoanApplication struct {
	PKID            uint
	ID              string
	UserID          string
	UserEmail       string
	AmountRequested decimal.Decimal
	Purpose         string
	Status          Status
	DateApplied     time.Time
	DateUpdated     time.Time
	FraudFlags      []FraudFlag
}

// FraudFlag 记录贷款被标记的原因，创建后不可修改。
type FraudFlag struct {
	PKID      uint
	LoanID    string
	Reason    string
	CreatedAt time.Time
}

// MaxFlagReasonLength 与 fraud_flags.reason 列的 varchar(255) 一致，按字符计。
const MaxFlagReasonLength = 255

func ValidateFlagReason(reason string) error {
	if n := utf8.RuneCountInString(reason); n > MaxFlagReasonLength {
		return fmt.Errorf("%w: flag reason is %d characters, max %d", ErrInvalidLoan, n, MaxFlagReasonLength)
	}
	return nil
}

// NewLoanApplication 工厂函数，创建一个 PENDING 状态的申请。
func NewLoanApplication(applicant *Applicant, amount decimal.Decimal, purpose string, now time.Time) (*LoanApplication, error) {
	if applicant == nil || applicant.ID == "" {
		return nil, fmt.Errorf("%w: applicant is required", ErrInvalidLoan)
	}
	purpose = strings.TrimSpace(purpose)
	if purpose == "" {
		return nil, fmt.Errorf("%w: purpose is required", ErrInvalidLoan)
	}
	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}

	return &LoanApplication{
		ID:              uuid.NewString(),
		UserID:          applicant.ID,
		UserEmail:       applicant.Email,
		AmountRequested: amount,
		Purpose:         purpose,
		Status:          StatusPending,
		DateApplied:     now,
		DateUpdated:     now,
	}, nil
}

// ValidateAmount 校验金额为正数且符合 decimal(12,2)。
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount_requested must be greater than zero", ErrInvalidLoan)
	}
	if !amount.Equal(amount.Truncate(amountScale)) {
		return fmt.Errorf("%w: amount_requested must have at most %d decimal places", ErrInvalidLoan, amountScale)
	}
	if amount.GreaterThanOrEqual(decimal.New(1, amountMaxDigits-amountScale)) {
		return fmt.Errorf("%w: amount_requested must have at most %d digits", ErrInvalidLoan, amountMaxDigits)
	}
	return nil
}

func (l *LoanApplication) Approve(now time.Time) error {
	return l.transitionTo(StatusApproved, now)
}

func (l *LoanApplication) Reject(now time.Time) error {
	return l.transitionTo(StatusRejected, now)
}

// MarkFlagged 对已标记的申请是幂等的。
func (l *LoanApplication) MarkFlagged(now time.Time) error {
	return l.transitionTo(StatusFlagged, now)
}

func (l *LoanApplication) transitionTo(target Status, now time.Time) error {
	if !l.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.Status, target)
	}
	l.Status = target
	l.DateUpdated = now
	return nil
}

// AppendFlags 在持久化成功后把新的标记挂到聚合上。
func (l *LoanApplication) AppendFlags(flags []FraudFlag) {
	l.FraudFlags = append(l.FraudFlags, flags...)
}

func (l *LoanApplication) Reasons() []string {
	out := make([]string, 0, len(l.FraudFlags))
	for _, f := range l.FraudFlags {
		out = append(out, f.Reason)
	}
	return out
}

// IsOwnedBy 判断申请是否属于该用户。
func (l *LoanApplication) IsOwnedBy(userID string) bool {
	return l.UserID == userID
}
