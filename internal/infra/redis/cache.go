package redisx

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	logx "slacktranslator/pkg/logx"
)

// Cache is the key-value store behind the memoizer. Expiry is left to Redis:
// entries are never swept by this process.
type Cache struct {
	rdb *redis.Client
	log logx.Logger
}

func NewCache(rdb *redis.Client, log logx.Logger) *Cache {
	return &Cache{rdb: rdb, log: log}
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Get returns (nil, false, nil) on a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.log.Debug("cache miss", logx.String("key", key))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	c.log.Debug("cache hit", logx.String("key", key), logx.Int("bytes", len(b)))
	return b, true, nil
}

// Set stores val under key. ttl <= 0 stores without expiry.
func (c *Cache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return c.rdb.Set(ctx, key, val, ttl).Err()
}
