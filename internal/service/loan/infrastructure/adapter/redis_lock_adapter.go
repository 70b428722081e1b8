package adapter

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Abbracx/loan-be/internal/pkg/logger"
	"github.com/Abbracx/loan-be/internal/pkg/redis"
	"github.com/Abbracx/loan-be/internal/service/loan/domain/port"
)

const (
	releaseLockScriptName = "release_user_lock"
	lockRetryInterval     = 50 * time.Millisecond
)

// 只有持有者本人（token 相同）才能删除锁。
const releaseLockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisUserLocker 是没有配置 ZooKeeper 时使用的用户锁，SET NX PX 加锁。
type RedisUserLocker struct {
	redisClient *redis.Client
	keyPrefix   string
	timeout     time.Duration
	ttl         time.Duration
}

// NewRedisUserLocker 在创建时加载释放锁的 Lua 脚本。
func NewRedisUserLocker(redisClient *redis.Client, keyPrefix string, timeout, ttl time.Duration) (*RedisUserLocker, error) {
	if err := redisClient.LoadScriptFromContent(releaseLockScriptName, releaseLockScript); err != nil {
		return nil, err
	}
	return &RedisUserLocker{
		redisClient: redisClient,
		keyPrefix:   keyPrefix,
		timeout:     timeout,
		ttl:         ttl,
	}, nil
}

func (l *RedisUserLocker) key(userID string) string {
	return l.keyPrefix + ":lock:user:{" + userID + "}"
}

func (l *RedisUserLocker) Lock(ctx context.Context, userID string) (func(), error) {
	key := l.key(userID)
	token := uuid.NewString()
	rdb := l.redisClient.GetClient()

	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()
	for {
		ok, err := rdb.SetNX(waitCtx, key, token, l.ttl).Result()
		if err == nil && ok {
			break
		}
		if err != nil && waitCtx.Err() == nil {
			return nil, err
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, port.ErrLockTimeout
		case <-ticker.C:
		}
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if _, err := l.redisClient.RunScript(releaseCtx, releaseLockScriptName, []string{key}, token); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("user", userID).Msg("failed to release redis user lock")
		}
	}, nil
}
