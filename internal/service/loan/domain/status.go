// internal/service/loan/domain/status.go
package domain

import "fmt"

// Status 是贷款申请的审核状态。
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusFlagged  Status = "flagged"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusFlagged:
		return true
	}
	return false
}

// ParseStatus 解析查询参数中的状态值。
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidLoan, s)
	}
	return st, nil
}

// CanTransitionTo 审核动作可以从任意状态进入 approved、rejected 或 flagged，
// 但没有任何转换回到 pending。
func (s Status) CanTransitionTo(target Status) bool {
	return s.Valid() && target.Valid() && target != StatusPending
}
