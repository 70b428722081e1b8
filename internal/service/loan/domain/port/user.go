package port

import (
	"context"

	"github.com/Abbracx/loan-be/internal/service/loan/domain"
)

// UserDirectory 是用户上下文暴露给贷款上下文的只读视图。
type UserDirectory interface {
	FindApplicant(ctx context.Context, userID string) (*domain.Applicant, error)
	// CountUsersByEmailDomain 统计邮箱以 "@domain" 结尾的用户数。
	CountUsersByEmailDomain(ctx context.Context, domain string) (int64, error)
}
