// internal/pkg/redis/cache.go
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 200

// Cache 是带统一前缀的 KV 缓存，满足各服务的 port.Cache。
type Cache struct {
	client *Client
	prefix string
}

func NewCache(client *Client, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

func (c *Cache) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

// Get 未命中时返回 (nil, false, nil)。
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.GetClient().Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.GetClient().Set(ctx, c.key(key), value, ttl).Err()
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	return c.client.GetClient().Del(ctx, full...).Err()
}

// DeletePattern 通过 SCAN 删除匹配的 key；集群模式下逐个 master 扫描。
func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	match := c.key(pattern)
	if cluster, ok := c.client.GetClient().(*redis.ClusterClient); ok {
		return cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			return scanDelete(ctx, node, match)
		})
	}
	return scanDelete(ctx, c.client.GetClient(), match)
}

func scanDelete(ctx context.Context, rdb redis.Cmdable, match string) error {
	iter := rdb.Scan(ctx, 0, match, scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := rdb.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return rdb.Del(ctx, batch...).Err()
	}
	return nil
}
