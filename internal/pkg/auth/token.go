// internal/pkg/auth/token.go
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	ErrInvalidToken   = errors.New("token is invalid or expired")
	ErrWrongTokenType = errors.New("token has wrong type")
)

// Claims 是签发的 JWT 载荷，sub 为用户 UUID。
type Claims struct {
	IsStaff   bool   `json:"is_staff"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenManager 负责签发和校验 HS256 令牌。
type TokenManager struct {
	key        []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenManager(signingKey string, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		key:        []byte(signingKey),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// IssuePair 签发一对 access / refresh 令牌。
func (m *TokenManager) IssuePair(userID string, isStaff bool) (string, string, error) {
	access, err := m.issue(userID, isStaff, TokenTypeAccess, m.accessTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err := m.issue(userID, isStaff, TokenTypeRefresh, m.refreshTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// Refresh 用 refresh 令牌换取新的 access 令牌。
func (m *TokenManager) Refresh(refreshToken string) (string, error) {
	claims, err := m.Parse(refreshToken, TokenTypeRefresh)
	if err != nil {
		return "", err
	}
	return m.issue(claims.Subject, claims.IsStaff, TokenTypeAccess, m.accessTTL)
}

// Verify 校验任意类型的令牌。
func (m *TokenManager) Verify(token string) error {
	_, err := m.Parse(token, "")
	return err
}

// Parse 校验签名与有效期；expectedType 为空时不检查令牌类型。
func (m *TokenManager) Parse(token, expectedType string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return m.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil || !parsed.Valid {
		return nil, errors.Wrap(ErrInvalidToken, "parse token")
	}
	if claims.Subject == "" {
		return nil, errors.Wrap(ErrInvalidToken, "missing subject")
	}
	if expectedType != "" && claims.TokenType != expectedType {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

func (m *TokenManager) issue(userID string, isStaff bool, tokenType string, ttl time.Duration) (string, error) {
	now := m.now()
	claims := Claims{
		IsStaff:   isStaff,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}
