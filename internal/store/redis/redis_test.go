package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewClient_EmptyURL(t *testing.T) {
	t.Parallel()

	_, err := NewClient("")
	require.Error(t, err)
}

func TestNewClient_InvalidURL(t *testing.T) {
	t.Parallel()

	_, err := NewClient("not-a-redis-url")
	require.Error(t, err)
}

func TestNewClient_PingsAndConnects(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client, err := NewClient("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	require.NoError(t, client.Set(ctx, "k", "v", 0).Err())
	val, err := client.Get(ctx, "k").Result()
	require.NoError(t, err)
	require.Equal(t, "v", val)
}

func TestNewClient_UnreachableHostFails(t *testing.T) {
	t.Parallel()

	_, err := NewClient("redis://127.0.0.1:1")
	require.Error(t, err)
}
