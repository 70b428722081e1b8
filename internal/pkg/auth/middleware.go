// internal/pkg/auth/middleware.go
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Principal 是已认证的调用方。
type Principal struct {
	UserID  string
	IsStaff bool
}

type principalKey struct{}

func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// 认证头支持的两种前缀。
var headerTypes = []string{"Bearer", "JWT"}

type middlewareOptions struct {
	queryParam string
}

type MiddlewareOption func(*middlewareOptions)

// WithQueryToken 允许在没有认证头时从查询参数读取令牌（WebSocket 握手使用）。
func WithQueryToken(param string) MiddlewareOption {
	return func(o *middlewareOptions) { o.queryParam = param }
}

// Middleware 校验 access 令牌并把 Principal 放入请求上下文。
func Middleware(tm *TokenManager, opts ...MiddlewareOption) gin.HandlerFunc {
	o := middlewareOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" && o.queryParam != "" {
			token = c.Query(o.queryParam)
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication credentials were not provided."})
			return
		}

		claims, err := tm.Parse(token, TokenTypeAccess)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Given token not valid for any token type"})
			return
		}

		p := Principal{UserID: claims.Subject, IsStaff: claims.IsStaff}
		c.Request = c.Request.WithContext(ContextWithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

func bearerToken(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	for _, t := range headerTypes {
		if strings.EqualFold(parts[0], t) {
			return parts[1]
		}
	}
	return ""
}
