package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLimiter_Acquire_AllowsUpToBurst(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lim := New(client, 2, time.Hour, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, lim.Acquire(ctx, "example.com"))
	require.NoError(t, lim.Acquire(ctx, "example.com"))
}

func TestLimiter_Acquire_BlocksUntilRefill(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lim := New(client, 1, 50*time.Millisecond, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, lim.Acquire(ctx, "example.com"))

	start := time.Now()
	require.NoError(t, lim.Acquire(ctx, "example.com"))
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestLimiter_Acquire_PerDomainIsolation(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lim := New(client, 1, time.Hour, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, lim.Acquire(ctx, "a.com"))
	require.NoError(t, lim.Acquire(ctx, "b.com"))
}

func TestLimiter_Acquire_FallsBackWhenRedisUnreachable(t *testing.T) {
	t.Parallel()

	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })

	lim := New(client, 2, time.Millisecond, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, lim.Acquire(ctx, "example.com"))
}

func TestLimiter_Acquire_NilRedisUsesFallback(t *testing.T) {
	t.Parallel()

	lim := New(nil, 2, time.Millisecond, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, lim.Acquire(ctx, "example.com"))
	require.NoError(t, lim.Acquire(ctx, "example.com"))
}

func TestLimiter_Acquire_ContextCanceled(t *testing.T) {
	t.Parallel()

	lim := New(nil, 1, time.Hour, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, lim.Acquire(ctx, "example.com"))

	cancelCtx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, lim.Acquire(cancelCtx, "example.com"))
}
