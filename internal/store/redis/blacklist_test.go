package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuslink.app/internal/store/memory"
)

func setup(t *testing.T) (*miniredis.Miniredis, *redis.Client, *memory.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client, memory.New()
}

func TestAddWritesThroughWithTTL(t *testing.T) {
	mr, client, mem := setup(t)
	ctx := context.Background()
	cache := NewCache(client, mem.Blacklist(ctx))

	added, err := cache.Add(ctx, "j1", "u1", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, added)

	require.True(t, mr.Exists("blacklist:j1"))
	ttl := mr.TTL("blacklist:j1")
	assert.Greater(t, ttl, 59*time.Minute)
	assert.LessOrEqual(t, ttl, time.Hour)

	durable, err := mem.Blacklist(ctx).Contains(ctx, "j1")
	require.NoError(t, err)
	assert.True(t, durable)

	added, err = cache.Add(ctx, "j1", "u1", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, added, "second add of the same jti loses")
}

func TestExpiredTokenIsNotCached(t *testing.T) {
	mr, client, mem := setup(t)
	ctx := context.Background()
	cache := NewCache(client, mem.Blacklist(ctx))

	_, err := cache.Add(ctx, "old", "u1", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, mr.Exists("blacklist:old"))
}

func TestContainsReadsThrough(t *testing.T) {
	mr, client, mem := setup(t)
	ctx := context.Background()
	cache := NewCache(client, mem.Blacklist(ctx))

	require.NoError(t, mr.Set("blacklist:cached-only", "1"))
	ok, err := cache.Contains(ctx, "cached-only")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = mem.Blacklist(ctx).Add(ctx, "durable-only", "u1", time.Now().Add(time.Hour))
	require.NoError(t, err)
	ok, err = cache.Contains(ctx, "durable-only")
	require.NoError(t, err)
	assert.True(t, ok)
	require.True(t, mr.Exists("blacklist:durable-only"), "durable hit is copied into redis")
	assert.Greater(t, mr.TTL("blacklist:durable-only"), time.Duration(0))

	ok, err = cache.Contains(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("blacklist:unknown"), "misses are not cached")
}

func TestCacheOutageFallsBack(t *testing.T) {
	mr, client, mem := setup(t)
	ctx := context.Background()
	cache := NewCache(client, mem.Blacklist(ctx))
	mr.Close()

	added, err := cache.Add(ctx, "j2", "u1", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, added)

	ok, err := cache.Contains(ctx, "j2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWrapRoutesBlacklist(t *testing.T) {
	mr, client, mem := setup(t)
	ctx := context.Background()
	store := Wrap(mem, client)

	_, err := store.Blacklist(ctx).Add(ctx, "j3", "u1", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, mr.Exists("blacklist:j3"))
	assert.NotNil(t, store.Users(ctx))
}
