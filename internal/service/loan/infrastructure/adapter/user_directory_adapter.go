package adapter

import (
	"context"
	"errors"

	"github.com/Abbracx/loan-be/internal/service/loan/domain"
	userdomain "github.com/Abbracx/loan-be/internal/service/user/domain"
)

// UserDirectoryAdapter 通过用户仓储实现 port.UserDirectory，两个上下文运行在同一进程内。
type UserDirectoryAdapter struct {
	users userdomain.UserRepository
}

func NewUserDirectoryAdapter(users userdomain.UserRepository) *UserDirectoryAdapter {
	return &UserDirectoryAdapter{users: users}
}

func (a *UserDirectoryAdapter) FindApplicant(ctx context.Context, userID string) (*domain.Applicant, error) {
	u, err := a.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, userdomain.ErrUserNotFound) {
			return nil, domain.ErrApplicantNotFound
		}
		return nil, err
	}
	return &domain.Applicant{ID: u.ID, Email: u.Email}, nil
}

func (a *UserDirectoryAdapter) CountUsersByEmailDomain(ctx context.Context, emailDomain string) (int64, error) {
	return a.users.CountByEmailDomain(ctx, emailDomain)
}
