package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"slacktranslator/internal/config"
)

// Open connects to the Redis URL shared by the cache store and the job queue.
// The client is safe for concurrent use by every worker.
func Open(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, &config.Error{Key: "REDIS_URL", Reason: "invalid url", Err: err}
	}
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	// Blocking queue reads carry their own timeout; let the client extend
	// the socket deadline accordingly.
	opt.ContextTimeoutEnabled = true

	rdb := redis.NewClient(opt)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return rdb, nil
}
