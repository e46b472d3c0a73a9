// Package ratelimit implements the per-domain token bucket described in
// spec §4.6: a distributed Redis-backed bucket with an in-process fallback,
// grounded on the teacher's internal/policy/ratelimit.Limiter and on
// original_source's rate_limiter.py token-bucket Lua script.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// tokenBucketScript atomically refills and consumes one token, returning 1 on
// success or the negative wait time in milliseconds until the next token is
// available. Ported from original_source/src/iris/rate_limiter.py verbatim.
const tokenBucketScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])

local data = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens = tonumber(data[1])
local last_refill = tonumber(data[2])

if tokens == nil then
    tokens = burst
    last_refill = now
end

local elapsed = now - last_refill
local new_tokens = elapsed * rate
tokens = math.min(burst, tokens + new_tokens)

if tokens >= 1 then
    tokens = tokens - 1
    redis.call('HMSET', key, 'tokens', tokens, 'last_refill', now)
    redis.call('EXPIRE', key, 3600)
    return 1
else
    local wait = (1 - tokens) / rate
    redis.call('HMSET', key, 'tokens', tokens, 'last_refill', now)
    redis.call('EXPIRE', key, 3600)
    return -wait * 1000
end
`

// Limiter enforces a per-registrable-domain token bucket: capacity = burst,
// refill rate = 1 token per minDelay. Redis is the distributed source of
// truth; a per-domain golang.org/x/time/rate.Limiter map is the in-process
// fallback when Redis is unreachable.
type Limiter struct {
	redis    *goredis.Client
	script   *goredis.Script
	burst    int
	rate     float64 // tokens/sec
	minDelay time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	fallback map[string]*rate.Limiter
}

// New builds a Limiter. redisClient may be nil, in which case Acquire always
// uses the in-process fallback.
func New(redisClient *goredis.Client, burst int, minDelay time.Duration, logger *zap.Logger) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	r := 1.0
	if minDelay > 0 {
		r = float64(time.Second) / float64(minDelay)
	}
	return &Limiter{
		redis:    redisClient,
		script:   goredis.NewScript(tokenBucketScript),
		burst:    burst,
		rate:     r,
		minDelay: minDelay,
		logger:   logger,
		fallback: make(map[string]*rate.Limiter),
	}
}

// Acquire blocks until a token is available for domain, per spec §4.6's
// refill/suspend/retry algorithm. It never returns an error except on context
// cancellation — store failures degrade to the in-process fallback.
func (l *Limiter) Acquire(ctx context.Context, domain string) error {
	if l.redis != nil {
		if err := l.acquireRedis(ctx, domain); err == nil {
			return nil
		} else if ctx.Err() != nil {
			return fmt.Errorf("rate limit acquire: %w", ctx.Err())
		} else {
			l.logger.Debug("rate limiter redis unavailable, falling back to memory",
				zap.String("domain", domain), zap.Error(err))
		}
	}
	return l.acquireLocal(ctx, domain)
}

func (l *Limiter) acquireRedis(ctx context.Context, domain string) error {
	key := fmt.Sprintf("rate:bucket:%s", domain)
	for {
		now := float64(time.Now().UnixNano()) / 1e9
		res, err := l.script.Run(ctx, l.redis, []string{key}, now, l.rate, l.burst).Result()
		if err != nil {
			return fmt.Errorf("token bucket script: %w", err)
		}
		val, ok := toFloat(res)
		if !ok {
			return fmt.Errorf("unexpected token bucket result type %T", res)
		}
		if val == 1 {
			return nil
		}
		waitMs := -val
		if waitMs < 0 {
			waitMs = 0
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(waitMs) * time.Millisecond):
		}
	}
}

func (l *Limiter) acquireLocal(ctx context.Context, domain string) error {
	l.mu.Lock()
	lim, ok := l.fallback[domain]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.rate), l.burst)
		l.fallback[domain] = lim
	}
	l.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
