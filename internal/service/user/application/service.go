// internal/service/user/application/service.go
package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Abbracx/loan-be/internal/pkg/auth"
	"github.com/Abbracx/loan-be/internal/pkg/logger"
	"github.com/Abbracx/loan-be/internal/pkg/metrics"
	"github.com/Abbracx/loan-be/internal/pkg/pagination"
	"github.com/Abbracx/loan-be/internal/service/user/domain"
)

const userListPattern = "users:list:*"

// Cache 是用户列表与详情的缓存端口。
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePattern(ctx context.Context, pattern string) error
}

// UserApplicationService 负责注册、登录（含失败锁定）与用户查询。
type UserApplicationService struct {
	repo            domain.UserRepository
	hasher          domain.PasswordHasher
	tokens          *auth.TokenManager
	cache           Cache
	cacheTTL        time.Duration
	maxFailedLogins int
	loc             *time.Location
	tracer          trace.Tracer
	now             func() time.Time
}

func NewUserApplicationService(repo domain.UserRepository, hasher domain.PasswordHasher, tokens *auth.TokenManager, cache Cache, cacheTTL time.Duration, maxFailedLogins int, loc *time.Location, tracer trace.Tracer) *UserApplicationService {
	if loc == nil {
		loc = time.UTC
	}
	return &UserApplicationService{
		repo: repo, hasher: hasher, tokens: tokens,
		cache: cache, cacheTTL: cacheTTL, maxFailedLogins: maxFailedLogins,
		loc: loc, tracer: tracer, now: time.Now,
	}
}

func (s *UserApplicationService) Register(ctx context.Context, req *RegisterRequest) (*RegisteredUserResponse, error) {
	ctx, span := s.tracer.Start(ctx, "app.Register")
	defer span.End()

	if req.Password != req.RePassword {
		return nil, errors.Wrap(domain.ErrInvalidUser, "the two password fields didn't match")
	}
	reg := domain.Registration{
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}
	user, err := domain.NewUser(reg, hash, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, user); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := s.cache.DeletePattern(ctx, userListPattern); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("failed to invalidate user list cache")
	}
	logger.Ctx(ctx).Info().Str("user", user.ID).Msg("✅ user registered")

	return &RegisteredUserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}, nil
}

// Login 密码错误时累计失败次数；密码正确但账户已锁定时返回 ErrAccountLocked。
func (s *UserApplicationService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	ctx, span := s.tracer.Start(ctx, "app.Login")
	defer span.End()

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("unknown_user").Inc()
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", user.ID))

	if !s.hasher.Compare(user.PasswordHash, password) {
		lockedNow := user.RegisterFailedLogin(s.maxFailedLogins)
		if err := s.repo.UpdateLoginState(ctx, user); err != nil {
			return nil, errors.Wrap(err, "record failed login")
		}
		if lockedNow {
			logger.Ctx(ctx).Warn().Str("user", user.ID).Msg("🛑 account locked due to failed attempts")
		}
		logger.Ctx(ctx).Warn().Str("user", user.ID).Int("attempts", user.FailedLoginAttempts).Msg("failed login attempt")
		metrics.LoginAttemptsTotal.WithLabelValues("bad_password").Inc()
		return nil, domain.ErrInvalidCredentials
	}
	if !user.IsActive {
		metrics.LoginAttemptsTotal.WithLabelValues("inactive").Inc()
		return nil, domain.ErrAccountInactive
	}
	if user.IsLocked {
		logger.Ctx(ctx).Warn().Str("user", user.ID).Msg("login attempt on locked account")
		metrics.LoginAttemptsTotal.WithLabelValues("locked").Inc()
		return nil, domain.ErrAccountLocked
	}

	user.ResetFailedLogins()
	if err := s.repo.UpdateLoginState(ctx, user); err != nil {
		return nil, errors.Wrap(err, "reset failed logins")
	}

	access, refresh, err := s.tokens.IssuePair(user.ID, user.IsStaff)
	if err != nil {
		return nil, errors.Wrap(err, "issue tokens")
	}
	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	logger.Ctx(ctx).Info().Str("user", user.ID).Msg("successful login")
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

func (s *UserApplicationService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	return s.tokens.Refresh(refreshToken)
}

func (s *UserApplicationService) Verify(ctx context.Context, token string) error {
	return s.tokens.Verify(token)
}

func (s *UserApplicationService) Me(ctx context.Context, p auth.Principal) (*UserResponse, error) {
	user, err := s.repo.FindByID(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	return toUserResponse(user, s.loc), nil
}

// List 管理员可以搜索全部用户；普通用户只能看到自己。
func (s *UserApplicationService) List(ctx context.Context, p auth.Principal, req ListUsersRequest) (*UserPage, error) {
	ctx, span := s.tracer.Start(ctx, "app.ListUsers")
	defer span.End()

	if !p.IsStaff {
		user, err := s.repo.FindByID(ctx, p.UserID)
		if err != nil {
			return nil, err
		}
		return pagination.NewPage([]*UserResponse{toUserResponse(user, s.loc)}, 1, pagination.NewParams(1, req.Page.PageSize)), nil
	}

	ordering := domain.OrderDateJoinedAsc
	if req.Ordering != "" {
		ordering = domain.UserOrdering(req.Ordering)
		if !ordering.Valid() {
			return nil, errors.Wrapf(domain.ErrInvalidUser, "unknown ordering %q", req.Ordering)
		}
	}

	key := fmt.Sprintf("users:list:search=%s:page=%d:size=%d:order=%s", req.Search, req.Page.Page, req.Page.PageSize, ordering)
	if raw, found, err := s.cache.Get(ctx, key); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache read failed")
	} else if found {
		var page UserPage
		if err := json.Unmarshal(raw, &page); err == nil {
			logger.Ctx(ctx).Info().Msg("Cache hit for users list")
			return &page, nil
		}
	}

	users, total, err := s.repo.List(ctx, domain.UserListQuery{
		Search:   req.Search,
		Ordering: ordering,
		Offset:   req.Page.Offset(),
		Limit:    req.Page.PageSize,
	})
	if err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	results := make([]*UserResponse, 0, len(users))
	for _, u := range users {
		results = append(results, toUserResponse(u, s.loc))
	}
	page := pagination.NewPage(results, total, req.Page)

	s.store(ctx, key, page)
	logger.Ctx(ctx).Info().Msg("Users list cached")
	return page, nil
}

// Get 普通用户查询他人时按不存在处理。
func (s *UserApplicationService) Get(ctx context.Context, p auth.Principal, id string) (*UserResponse, error) {
	ctx, span := s.tracer.Start(ctx, "app.GetUser")
	defer span.End()

	if !p.IsStaff && p.UserID != id {
		return nil, domain.ErrUserNotFound
	}

	key := "users:detail:" + id
	if raw, found, err := s.cache.Get(ctx, key); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache read failed")
	} else if found {
		var resp UserResponse
		if err := json.Unmarshal(raw, &resp); err == nil {
			logger.Ctx(ctx).Info().Str("user", id).Msg("Cache hit for user detail")
			return &resp, nil
		}
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toUserResponse(user, s.loc)
	s.store(ctx, key, resp)
	return resp, nil
}

func (s *UserApplicationService) store(ctx context.Context, key string, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cacheTTL); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}
