// Package redis caches revoked refresh token ids in front of the durable blacklist.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"campuslink.app/internal/auth"
	"campuslink.app/internal/obs"
)

const (
	keyPrefix = "blacklist:"
	// backfillTTL bounds how long a revoked id found only in the durable
	// store is kept in redis. Its real expiry is not known at lookup time.
	backfillTTL = 24 * time.Hour
)

// Cache is a write-through auth.Blacklist that also copies revoked ids found
// in the durable store back into redis. Misses are never cached, so a lookup
// for a live token still reaches the durable store. Cache failures fall back
// to it.
type Cache struct {
	client *redis.Client
	next   auth.Blacklist
}

var _ auth.Blacklist = (*Cache)(nil)

// Connect parses redisURL and pings the server.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// NewCache wraps next with client.
func NewCache(client *redis.Client, next auth.Blacklist) *Cache {
	return &Cache{client: client, next: next}
}

func key(jti string) string { return keyPrefix + jti }

// Add records jti durably first, then caches it until the token would expire anyway.
func (c *Cache) Add(ctx context.Context, jti, userID string, expiresAt time.Time) (bool, error) {
	added, err := c.next.Add(ctx, jti, userID, expiresAt)
	if err != nil {
		return false, err
	}
	c.remember(ctx, jti, time.Until(expiresAt))
	return added, nil
}

// Contains answers from redis when it can and from the durable store otherwise.
func (c *Cache) Contains(ctx context.Context, jti string) (bool, error) {
	n, err := c.client.Exists(ctx, key(jti)).Result()
	if err == nil && n > 0 {
		return true, nil
	}
	if err != nil {
		obs.Logger().Warn("blacklist cache read failed", zap.String("jti", jti), zap.Error(err))
	}
	revoked, derr := c.next.Contains(ctx, jti)
	if derr != nil {
		return false, derr
	}
	if revoked && err == nil {
		c.remember(ctx, jti, backfillTTL)
	}
	return revoked, nil
}

func (c *Cache) remember(ctx context.Context, jti string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := c.client.Set(ctx, key(jti), "1", ttl).Err(); err != nil {
		obs.Logger().Warn("blacklist cache write failed", zap.String("jti", jti), zap.Error(err))
	}
}

// Store routes Blacklist through a Cache and everything else to the wrapped store.
type Store struct {
	auth.Store
	cache *Cache
}

// Wrap returns inner with its blacklist cached in client.
func Wrap(inner auth.Store, client *redis.Client) *Store {
	return &Store{Store: inner, cache: NewCache(client, inner.Blacklist(context.Background()))}
}

func (s *Store) Blacklist(context.Context) auth.Blacklist { return s.cache }
