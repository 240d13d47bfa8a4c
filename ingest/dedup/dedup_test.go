package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *RedisCache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, "test:dedup:")
}

func TestRedisCache_SeenOrMark(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	first, err := cache.SeenOrMark(ctx, "ACME-1", time.Minute)
	require.NoError(t, err)
	require.True(t, first, "first call should report a fresh sighting")

	second, err := cache.SeenOrMark(ctx, "ACME-1", time.Minute)
	require.NoError(t, err)
	require.False(t, second, "repeated key should not be a fresh sighting")

	other, err := cache.SeenOrMark(ctx, "ACME-2", time.Minute)
	require.NoError(t, err)
	require.True(t, other)
}
