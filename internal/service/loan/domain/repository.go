// internal/service/loan/domain/repository.go
package domain

import (
	"context"
	"time"
)

// Ordering 是列表允许的排序字段，前缀 "-" 表示倒序。
type Ordering string

const (
	OrderDateAppliedDesc Ordering = "-date_applied"
	OrderDateAppliedAsc  Ordering = "date_applied"
	OrderAmountDesc      Ordering = "-amount_requested"
	OrderAmountAsc       Ordering = "amount_requested"
)

func (o Ordering) Valid() bool {
	switch o {
	case OrderDateAppliedDesc, OrderDateAppliedAsc, OrderAmountDesc, OrderAmountAsc:
		return true
	}
	return false
}

// ListQuery 描述一次过滤、排序、分页查询。OwnerID 为空表示不限用户。
type ListQuery struct {
	OwnerID  string
	Status   Status
	Ordering Ordering
	Offset   int
	Limit    int
}

// LoanRepository 定义了贷款申请聚合的持久化接口。
type LoanRepository interface {
	// Create 插入新的申请，并回填自增主键。
	Create(ctx context.Context, loan *LoanApplication) error
	FindByID(ctx context.Context, id string) (*LoanApplication, error)
	UpdateStatus(ctx context.Context, id string, status Status, updatedAt time.Time) error
	// AddFraudFlags 按输入顺序为每个原因写入一条标记。
	AddFraudFlags(ctx context.Context, loanID string, reasons []string, at time.Time) ([]FraudFlag, error)
	// CountByUserSince 统计用户在 since（含）之后提交的申请数。
	CountByUserSince(ctx context.Context, userID string, since time.Time) (int64, error)
	List(ctx context.Context, q ListQuery) ([]*LoanApplication, int64, error)
}
