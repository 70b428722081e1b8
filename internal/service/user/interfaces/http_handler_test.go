package interfaces

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Abbracx/loan-be/internal/pkg/auth"
	"github.com/Abbracx/loan-be/internal/pkg/redis"
	"github.com/Abbracx/loan-be/internal/service/user/application"
	"github.com/Abbracx/loan-be/internal/service/user/domain"
	"github.com/Abbracx/loan-be/internal/service/user/infrastructure/adapter"
)

type memUserRepo struct {
	mu    sync.Mutex
	users []*domain.User
}

func (r *memUserRepo) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.users {
		if e.Email == u.Email || e.Username == u.Username {
			return domain.ErrDuplicateUser
		}
	}
	u.PKID = uint(len(r.users) + 1)
	cp := *u
	r.users = append(r.users, &cp)
	return nil
}

func (r *memUserRepo) find(match func(*domain.User) bool) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *memUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.ID == id })
}

func (r *memUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.Email == email })
}

func (r *memUserRepo) UpdateLoginState(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.users {
		if stored.ID == u.ID {
			stored.FailedLoginAttempts, stored.IsLocked = u.FailedLoginAttempts, u.IsLocked
			return nil
		}
	}
	return domain.ErrUserNotFound
}

func (r *memUserRepo) CountByEmailDomain(_ context.Context, d string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, u := range r.users {
		if strings.HasSuffix(u.Email, "@"+d) {
			n++
		}
	}
	return n, nil
}

func (r *memUserRepo) List(_ context.Context, q domain.UserListQuery) ([]*domain.User, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.User
	for _, u := range r.users {
		if q.Search == "" || strings.Contains(u.Username+" "+u.Email, q.Search) {
			cp := *u
			out = append(out, &cp)
		}
	}
	total := int64(len(out))
	if q.Offset >= len(out) {
		return nil, total, nil
	}
	out = out[q.Offset:]
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, total, nil
}

type testServer struct {
	engine *gin.Engine
	repo   *memUserRepo
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	repo := &memUserRepo{}
	tokens := auth.NewTokenManager("secret", time.Hour, 24*time.Hour)
	svc := application.NewUserApplicationService(repo, adapter.NewBcryptHasher(4), tokens,
		redis.NewCache(redis.Wrap(rdb), "loan_be"), time.Minute, 3, time.UTC, noop.NewTracerProvider().Tracer("test"))

	engine := gin.New()
	NewUserHandler(svc).RegisterRoutes(engine.Group("/api/v1"), auth.Middleware(tokens))
	return &testServer{engine: engine, repo: repo}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "JWT "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) register(t *testing.T, username, email string) application.RegisteredUserResponse {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/auth/users/", "", map[string]string{
		"username": username, "email": email,
		"first_name": "ada", "last_name": "obi",
		"password": "s3cretpass", "re_password": "s3cretpass",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp application.RegisteredUserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func (s *testServer) login(t *testing.T, email, password string) *httptest.ResponseRecorder {
	return s.do(t, http.MethodPost, "/api/v1/auth/jwt/create/", "", map[string]string{"email": email, "password": password})
}

func (s *testServer) tokens(t *testing.T, email string) application.TokenPair {
	t.Helper()
	w := s.login(t, email, "s3cretpass")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var pair application.TokenPair
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pair))
	return pair
}

func TestUserHandler_RegisterLoginMe(t *testing.T) {
	s := newTestServer(t)
	created := s.register(t, "ada", "ada@example.com")
	assert.NotEmpty(t, created.ID)

	pair := s.tokens(t, "ada@example.com")
	require.NotEmpty(t, pair.Access)
	require.NotEmpty(t, pair.Refresh)

	w := s.do(t, http.MethodGet, "/api/v1/auth/users/me/", pair.Access, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me application.UserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, created.ID, me.ID)
	assert.Equal(t, "Ada Obi", me.FullName)
}

func TestUserHandler_RegisterRejectsBadInput(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "ada", "ada@example.com")

	cases := []struct {
		name string
		body map[string]string
	}{
		{"password mismatch", map[string]string{"username": "b", "email": "b@x.com", "first_name": "b", "last_name": "b", "password": "s3cretpass", "re_password": "other-pass"}},
		{"short password", map[string]string{"username": "b", "email": "b@x.com", "first_name": "b", "last_name": "b", "password": "short", "re_password": "short"}},
		{"bad email", map[string]string{"username": "b", "email": "nope", "first_name": "b", "last_name": "b", "password": "s3cretpass", "re_password": "s3cretpass"}},
		{"duplicate email", map[string]string{"username": "b", "email": "ada@example.com", "first_name": "b", "last_name": "b", "password": "s3cretpass", "re_password": "s3cretpass"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/v1/auth/users/", "", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestUserHandler_LoginLocksAfterFailures(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "ada", "ada@example.com")

	assert.Equal(t, http.StatusNotFound, s.login(t, "ghost@example.com", "whatever").Code)

	for i := 0; i < 3; i++ {
		w := s.login(t, "ada@example.com", "wrong-password")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}

	w := s.login(t, "ada@example.com", "s3cretpass")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Account is locked")
}

func TestUserHandler_RefreshAndVerify(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "ada", "ada@example.com")
	pair := s.tokens(t, "ada@example.com")

	w := s.do(t, http.MethodPost, "/api/v1/auth/jwt/refresh/", "", map[string]string{"refresh": pair.Refresh})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"access"`)

	w = s.do(t, http.MethodPost, "/api/v1/auth/jwt/refresh/", "", map[string]string{"refresh": pair.Access})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/auth/jwt/verify/", "", map[string]string{"token": pair.Access})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/auth/jwt/verify/", "", map[string]string{"token": "not-a-jwt"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/auth/jwt/verify/", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUserHandler_RetrieveVisibility(t *testing.T) {
	s := newTestServer(t)
	ada := s.register(t, "ada", "ada@example.com")
	bob := s.register(t, "bob", "bob@example.com")
	adaTokens := s.tokens(t, "ada@example.com")

	w := s.do(t, http.MethodGet, "/api/v1/auth/users/"+ada.ID+"/", adaTokens.Access, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/auth/users/"+bob.ID+"/", adaTokens.Access, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/auth/users/", adaTokens.Access, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page application.UserPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.EqualValues(t, 1, page.Count)
	require.Len(t, page.Results, 1)
	assert.Equal(t, ada.ID, page.Results[0].ID)

	w = s.do(t, http.MethodGet, "/api/v1/auth/users/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUserHandler_StaffListsEveryone(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "ada", "ada@example.com")
	s.register(t, "bob", "bob@example.com")

	s.repo.mu.Lock()
	s.repo.users[0].IsStaff = true
	s.repo.mu.Unlock()
	staff := s.tokens(t, "ada@example.com")

	w := s.do(t, http.MethodGet, "/api/v1/auth/users/?search=bob", staff.Access, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page application.UserPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.EqualValues(t, 1, page.Count)

	w = s.do(t, http.MethodGet, "/api/v1/auth/users/?ordering=bogus", staff.Access, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
