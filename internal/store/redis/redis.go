// Package redis wraps go-redis client construction, grounded on
// Livepeer-FrameWorks' pkg/redis.NewClientFromURL.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultTimeout = 5 * time.Second

// NewClient builds a single-node Redis client from a redis:// URL and verifies
// connectivity with a bounded ping. Callers treat every subsequent store
// interaction as best-effort: see internal/cache, internal/ratelimit, and
// internal/robots for the graceful-degradation wrappers around this client.
func NewClient(redisURL string) (*goredis.Client, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = defaultTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = defaultTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = defaultTimeout
	}

	client := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
