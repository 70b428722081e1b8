// internal/zookeeper/lock.go
package zookeeper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
)

const (
	lockRoot   = "/distributed_locks" // 所有分布式锁的根节点
	nodePrefix = "lock-"
)

var ErrLockTimeout = errors.New("timeout waiting for lock")

// Conn 是分布式锁用到的 *zk.Conn 方法子集。
type Conn interface {
	Exists(path string) (bool, *zk.Stat, error)
	ExistsW(path string) (bool, *zk.Stat, <-chan zk.Event, error)
	Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error)
	CreateProtectedEphemeralSequential(path string, data []byte, acl []zk.ACL) (string, error)
	Children(path string) ([]string, *zk.Stat, error)
	Delete(path string, version int32) error
}

// Connect 建立到 ZooKeeper 集群的会话。
func Connect(servers []string, sessionTimeout time.Duration) (*zk.Conn, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, fmt.Errorf("failed to connect zookeeper: %w", err)
	}
	return conn, nil
}

// DistributedLock 定义了一个分布式锁对象
type DistributedLock struct {
	conn     Conn
	path     string // 锁的路径，例如 /distributed_locks/loan-user-123
	lockNode string // 成功获取锁后，自己创建的节点路径
}

// NewDistributedLock 创建一个新的分布式锁实例，并确保锁路径存在。
func NewDistributedLock(conn Conn, resourceID string) (*DistributedLock, error) {
	lockPath := lockRoot + "/" + resourceID
	for _, p := range []string{lockRoot, lockPath} {
		if err := ensureNode(conn, p); err != nil {
			return nil, err
		}
	}
	return &DistributedLock{conn: conn, path: lockPath}, nil
}

func ensureNode(conn Conn, path string) error {
	exists, _, err := conn.Exists(path)
	if err != nil {
		return fmt.Errorf("failed to check node %s: %w", path, err)
	}
	if exists {
		return nil
	}
	_, err = conn.Create(path, []byte(""), 0, zk.WorldACL(zk.PermAll))
	if err != nil && !errors.Is(err, zk.ErrNodeExists) {
		return fmt.Errorf("failed to create node %s: %w", path, err)
	}
	return nil
}

// Lock 尝试获取锁，直到成功、ctx 结束或 timeout 到期。
func (l *DistributedLock) Lock(ctx context.Context, timeout time.Duration) error {
	// 1. 在锁路径下创建一个临时顺序节点
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/"+nodePrefix, []byte(""), zk.WorldACL(zk.PermAll))
	if errors.Is(err, zk.ErrNoNode) {
		// 锁路径刚被上一个持有者清理掉
		if err = ensureNode(l.conn, l.path); err == nil {
			nodePath, err = l.conn.CreateProtectedEphemeralSequential(l.path+"/"+nodePrefix, []byte(""), zk.WorldACL(zk.PermAll))
		}
	}
	if err != nil {
		return fmt.Errorf("failed to create sequential node: %w", err)
	}
	l.lockNode = nodePath
	myNodeName := strings.TrimPrefix(l.lockNode, l.path+"/")

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		// 2. 获取锁路径下的所有子节点，按序号排序
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			l.release()
			return fmt.Errorf("failed to get children nodes: %w", err)
		}
		sortBySequence(children)

		// 3. 判断自己是否是最小的节点
		idx := indexOf(children, myNodeName)
		if idx < 0 {
			l.release()
			return errors.New("lock node disappeared, session may have expired")
		}
		if idx == 0 {
			return nil
		}

		// 4. 不是最小节点，监听前一个节点
		prevNodePath := l.path + "/" + children[idx-1]
		exists, _, eventChan, err := l.conn.ExistsW(prevNodePath)
		if err != nil {
			l.release()
			return fmt.Errorf("failed to watch previous node: %w", err)
		}
		if !exists {
			continue
		}

		select {
		case <-eventChan:
			// 前一个节点有变化，重新竞争
		case <-ctx.Done():
			l.release()
			return ctx.Err()
		case <-deadline.C:
			l.release()
			return ErrLockTimeout
		}
	}
}

// Unlock 释放锁
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return fmt.Errorf("failed to delete lock node: %w", err)
	}
	l.lockNode = ""

	// 没有等待者时删除锁路径，避免每个用户留下一个空节点
	err = l.conn.Delete(l.path, -1)
	if err != nil && !errors.Is(err, zk.ErrNotEmpty) && !errors.Is(err, zk.ErrNoNode) {
		return fmt.Errorf("failed to delete lock path: %w", err)
	}
	return nil
}

func (l *DistributedLock) release() {
	_ = l.Unlock()
}

// 受保护节点带有随机前缀 (_c_<guid>-lock-0000000001)，只能按末尾序号排序。
func sortBySequence(children []string) {
	sort.SliceStable(children, func(i, j int) bool {
		return sequenceOf(children[i]) < sequenceOf(children[j])
	})
}

func sequenceOf(node string) int64 {
	i := strings.LastIndex(node, nodePrefix)
	if i < 0 {
		return -1
	}
	n, err := strconv.ParseInt(node[i+len(nodePrefix):], 10, 64)
	if err != nil {
		return -1
	}
	return n
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
