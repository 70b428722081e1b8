package domain

import "context"

// UserOrdering 只允许按注册时间排序。
type UserOrdering string

const (
	OrderDateJoinedAsc  UserOrdering = "date_joined"
	OrderDateJoinedDesc UserOrdering = "-date_joined"
)

func (o UserOrdering) Valid() bool {
	return o == OrderDateJoinedAsc || o == OrderDateJoinedDesc
}

// UserListQuery Search 同时匹配 username、email、first_name、last_name。
type UserListQuery struct {
	Search   string
	Ordering UserOrdering
	Offset   int
	Limit    int
}

type UserRepository interface {
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// UpdateLoginState 只写入失败次数与锁定标记。
	UpdateLoginState(ctx context.Context, user *User) error
	// CountByEmailDomain 统计邮箱以 "@domain" 结尾的用户数。
	CountByEmailDomain(ctx context.Context, domain string) (int64, error)
	List(ctx context.Context, q UserListQuery) ([]*User, int64, error)
}

// PasswordHasher 是密码哈希的出站端口。
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) bool
}
