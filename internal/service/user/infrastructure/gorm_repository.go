package infrastructure

import (
	"context"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/Abbracx/loan-be/internal/service/user/domain"
)

// MySQL ER_DUP_ENTRY
const errDuplicateEntry = 1062

// GormUserRepository 是 UserRepository 的 GORM 实现
type GormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

var _ domain.UserRepository = (*GormUserRepository)(nil)

func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	model := FromDomainUser(user)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		var myErr *mysqldriver.MySQLError
		if errors.As(err, &myErr) && myErr.Number == errDuplicateEntry {
			return domain.ErrDuplicateUser
		}
		return err
	}
	user.PKID = model.PKID
	return nil
}

func (r *GormUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, "email = ?", email)
}

func (r *GormUserRepository) findOne(ctx context.Context, cond string, arg interface{}) (*domain.User, error) {
	var model UserModel
	if err := r.db.WithContext(ctx).Where(cond, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return ToDomainUser(&model), nil
}

func (r *GormUserRepository) UpdateLoginState(ctx context.Context, user *domain.User) error {
	return r.db.WithContext(ctx).
		Model(&UserModel{}).
		Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"failed_login_attempts": user.FailedLoginAttempts,
			"is_locked":             user.IsLocked,
		}).Error
}

func (r *GormUserRepository) CountByEmailDomain(ctx context.Context, domainName string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&UserModel{}).
		Where("email LIKE ?", "%@"+escapeLike(domainName)).
		Count(&n).Error
	return n, err
}

func (r *GormUserRepository) List(ctx context.Context, q domain.UserListQuery) ([]*domain.User, int64, error) {
	filter := func(db *gorm.DB) *gorm.DB {
		if q.Search == "" {
			return db
		}
		like := "%" + escapeLike(q.Search) + "%"
		return db.Where("username LIKE ? OR email LIKE ? OR first_name LIKE ? OR last_name LIKE ?", like, like, like, like)
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&UserModel{}).Scopes(filter).Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count users")
	}
	if total == 0 {
		return []*domain.User{}, 0, nil
	}

	order := "date_joined ASC, pkid ASC"
	if q.Ordering == domain.OrderDateJoinedDesc {
		order = "date_joined DESC, pkid DESC"
	}

	var models []UserModel
	err := r.db.WithContext(ctx).
		Scopes(filter).
		Order(order).
		Offset(q.Offset).
		Limit(q.Limit).
		Find(&models).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "list users")
	}

	users := make([]*domain.User, 0, len(models))
	for i := range models {
		users = append(users, ToDomainUser(&models[i]))
	}
	return users, total, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike 转义 LIKE 通配符，"a_b.com" 不会匹配 "axb.com"。
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
