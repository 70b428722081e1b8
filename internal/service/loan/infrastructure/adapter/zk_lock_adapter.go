package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/Abbracx/loan-be/internal/pkg/logger"
	"github.com/Abbracx/loan-be/internal/service/loan/domain/port"
	"github.com/Abbracx/loan-be/internal/zookeeper"
)

// ZkUserLocker 用 ZooKeeper 临时顺序节点实现按用户的分布式锁。
type ZkUserLocker struct {
	conn    zookeeper.Conn
	timeout time.Duration
}

func NewZkUserLocker(conn zookeeper.Conn, timeout time.Duration) *ZkUserLocker {
	return &ZkUserLocker{conn: conn, timeout: timeout}
}

func (l *ZkUserLocker) Lock(ctx context.Context, userID string) (func(), error) {
	lock, err := zookeeper.NewDistributedLock(l.conn, "loan-user-"+userID)
	if err != nil {
		return nil, err
	}
	if err := lock.Lock(ctx, l.timeout); err != nil {
		if errors.Is(err, zookeeper.ErrLockTimeout) {
			return nil, port.ErrLockTimeout
		}
		return nil, err
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("user", userID).Msg("failed to release zookeeper user lock")
		}
	}, nil
}
