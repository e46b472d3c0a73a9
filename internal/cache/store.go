// Package cache implements the response cache described in spec §4.5:
// fingerprinted entries, Redis-backed with graceful degradation on store
// failure. Grounded on original_source's cache.py, restructured onto
// github.com/redis/go-redis/v9 per the teacher's store layer conventions.
package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/r3co87/iris/internal/model"
)

// Store is the ResponseCache: get/put/invalidate over a fingerprint key, with
// every store interaction degrading to a miss/no-op rather than propagating.
type Store struct {
	redis   *goredis.Client
	enabled bool
	ttl     time.Duration
	logger  *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// New builds a Store. redisClient may be nil; enabled=false disables all
// reads/writes regardless of the client.
func New(redisClient *goredis.Client, enabled bool, ttl time.Duration, logger *zap.Logger) *Store {
	return &Store{redis: redisClient, enabled: enabled, ttl: ttl, logger: logger}
}

// Get returns the cached FetchResult for fingerprint, with Cached set to true,
// or (zero, false) on miss — including any backing-store failure.
func (s *Store) Get(ctx context.Context, fingerprint string) (model.FetchResult, bool) {
	if !s.enabled || s.redis == nil {
		s.misses.Add(1)
		return model.FetchResult{}, false
	}

	data, err := s.redis.Get(ctx, cacheKey(fingerprint)).Result()
	if err != nil {
		s.misses.Add(1)
		if err != goredis.Nil {
			s.logger.Debug("cache get failed", zap.String("fingerprint", fingerprint), zap.Error(err))
		}
		return model.FetchResult{}, false
	}

	var result model.FetchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		s.logger.Warn("cache entry decode failed", zap.String("fingerprint", fingerprint), zap.Error(err))
		s.misses.Add(1)
		return model.FetchResult{}, false
	}
	result.Cached = true
	s.hits.Add(1)
	return result, true
}

// Put stores result under fingerprint with the configured TTL (or ttlOverride
// when > 0). Per the invariant, entries whose Error is populated are never
// stored; failures to write are logged and swallowed.
func (s *Store) Put(ctx context.Context, fingerprint string, result model.FetchResult, ttlOverride time.Duration) {
	if !s.enabled || s.redis == nil || result.Error != nil {
		return
	}
	ttl := s.ttl
	if ttlOverride > 0 {
		ttl = ttlOverride
	}

	data, err := json.Marshal(result)
	if err != nil {
		s.logger.Warn("cache entry encode failed", zap.String("fingerprint", fingerprint), zap.Error(err))
		return
	}
	if err := s.redis.Set(ctx, cacheKey(fingerprint), data, ttl).Err(); err != nil {
		s.logger.Warn("cache put failed", zap.String("fingerprint", fingerprint), zap.Error(err))
	}
}

// Invalidate deletes the entry for fingerprint. Returns (false, nil) if the
// key was absent or the store is disabled/unreachable — DELETE /cache/{hash}
// is specified idempotent, so callers should not treat either as an error.
func (s *Store) Invalidate(ctx context.Context, fingerprint string) (bool, error) {
	if !s.enabled || s.redis == nil {
		return false, nil
	}
	n, err := s.redis.Del(ctx, cacheKey(fingerprint)).Result()
	if err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("fingerprint", fingerprint), zap.Error(err))
		return false, nil
	}
	return n > 0, nil
}

// Up reports whether the backing store is configured at all (not whether it
// is currently reachable — graceful degradation means that's never fatal).
func (s *Store) Up() bool {
	return s.enabled && s.redis != nil
}

// Stats returns the monotonic hit/miss counters, the concrete source of
// truth GET /health's cache.hits/cache.misses fields report.
func (s *Store) Stats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}

func cacheKey(fingerprint string) string {
	return "fetch:cache:" + fingerprint
}
