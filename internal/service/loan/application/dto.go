// internal/service/loan/application/dto.go
package application

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Abbracx/loan-be/internal/pkg/pagination"
	"github.com/Abbracx/loan-be/internal/service/loan/domain"
)

// 与前端约定的时间格式，带时区偏移。
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// CreateLoanRequest 是创建贷款申请用例的输入数据
type CreateLoanRequest struct {
	UserID  string
	Amount  decimal.Decimal
	Purpose string
}

// ListLoansRequest 是列表查询的输入，Status 与 Ordering 为原始查询参数。
type ListLoansRequest struct {
	Status   string
	Ordering string
	Page     pagination.Params
}

type FraudFlagResponse struct {
	Reason string `json:"reason"`
}

// LoanResponse 是贷款申请对外的 JSON 表示
type LoanResponse struct {
	PKID            uint                `json:"pkid"`
	ID              string              `json:"id"`
	AmountRequested string              `json:"amount_requested"`
	Purpose         string              `json:"purpose"`
	Status          domain.Status       `json:"status"`
	DateApplied     string              `json:"date_applied"`
	DateUpdated     string              `json:"date_updated"`
	FraudFlags      []FraudFlagResponse `json:"fraud_flags"`
	UserEmail       string              `json:"user_email"`
}

type LoanPage = pagination.Page[*LoanResponse]

// StatusResponse 是审核动作的响应体
type StatusResponse struct {
	Status domain.Status `json:"status"`
}

func toLoanResponse(l *domain.LoanApplication, loc *time.Location) *LoanResponse {
	flags := make([]FraudFlagResponse, 0, len(l.FraudFlags))
	for _, f := range l.FraudFlags {
		flags = append(flags, FraudFlagResponse{Reason: f.Reason})
	}
	return &LoanResponse{
		PKID:            l.PKID,
		ID:              l.ID,
		AmountRequested: l.AmountRequested.StringFixed(2),
		Purpose:         l.Purpose,
		Status:          l.Status,
		DateApplied:     l.DateApplied.In(loc).Format(timeLayout),
		DateUpdated:     l.DateUpdated.In(loc).Format(timeLayout),
		FraudFlags:      flags,
		UserEmail:       l.UserEmail,
	}
}

func toLoanResponses(loans []*domain.LoanApplication, loc *time.Location) []*LoanResponse {
	out := make([]*LoanResponse, 0, len(loans))
	for _, l := range loans {
		out = append(out, toLoanResponse(l, loc))
	}
	return out
}

// 列表缓存键，同一查询的参数顺序固定。
func listQueryKey(status domain.Status, ordering domain.Ordering, p pagination.Params) string {
	return fmt.Sprintf("status=%s:page=%d:size=%d:order=%s", status, p.Page, p.PageSize, ordering)
}

func userListKey(userID, query string) string { return "loans:list:user:" + userID + ":" + query }
func allListKey(query string) string           { return "loans:list:all:" + query }
func flaggedListKey(query string) string       { return "loans:flagged:" + query }

func userListPattern(userID string) string { return "loans:list:user:" + userID + ":*" }

const allListPattern = "loans:list:all:*"
