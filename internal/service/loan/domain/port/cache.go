package port

import (
	"context"
	"time"
)

// Cache 是列表结果的缓存端口。
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePattern 删除所有匹配 glob 模式的键。
	DeletePattern(ctx context.Context, pattern string) error
}
