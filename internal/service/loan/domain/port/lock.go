package port

import (
	"context"
	"errors"
)

var ErrLockTimeout = errors.New("timed out waiting for user lock")

// UserLocker 串行化同一用户的申请提交，保证频率统计不被并发绕过。
type UserLocker interface {
	// Lock 获取用户锁，返回的 release 必须被调用。
	Lock(ctx context.Context, userID string) (release func(), err error)
}
