// internal/pkg/redis/client.go
package redis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client 封装了 go-redis 的 UniversalClient，并管理预加载的 Lua 脚本。
type Client struct {
	client  redis.UniversalClient
	scripts map[string]*redis.Script
	mu      sync.RWMutex
}

// NewClient 根据逗号分隔的地址创建客户端；多个地址时使用集群模式。
func NewClient(addrs string) (*Client, error) {
	var list []string
	for _, a := range strings.Split(addrs, ",") {
		if a = strings.TrimSpace(a); a != "" {
			list = append(list, a)
		}
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("redis: no address configured")
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        list,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addrs, err)
	}
	return Wrap(rdb), nil
}

// Wrap 包装一个已有的客户端。
func Wrap(rdb redis.UniversalClient) *Client {
	return &Client{client: rdb, scripts: make(map[string]*redis.Script)}
}

func (c *Client) GetClient() redis.UniversalClient {
	return c.client
}

// LoadScriptFromContent 预加载脚本到 Redis 并以 name 缓存。
func (c *Client) LoadScriptFromContent(name, content string) error {
	script := redis.NewScript(content)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := script.Load(ctx, c.client).Err(); err != nil {
		return fmt.Errorf("redis: load script %s: %w", name, err)
	}
	c.mu.Lock()
	c.scripts[name] = script
	c.mu.Unlock()
	return nil
}

// RunScript 执行已加载的脚本，脚本缓存被清空时 go-redis 会自动回退到 EVAL。
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("redis: script %s not loaded", name)
	}
	return script.Run(ctx, c.client, keys, args...).Result()
}

func (c *Client) Close() error {
	return c.client.Close()
}
