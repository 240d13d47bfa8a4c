// Package dedup provides the idempotency cache the event ingesters use
// to turn at-least-once delivery (webhook redeliveries, SSE reconnect
// replays) into the "idempotent workflow invocation" spec §4.4 requires.
package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache records which idempotency keys have already been seen.
type Cache interface {
	// SeenOrMark atomically checks whether key was already marked, and
	// if not, marks it with the given ttl. Returns true if this call is
	// the first sighting (the caller should proceed).
	SeenOrMark(ctx context.Context, key string, ttl time.Duration) (firstSighting bool, err error)
}

// RedisCache is a Cache backed by Redis SETNX, shared across
// orchestrator process restarts and replicas.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache builds a RedisCache against an already-constructed
// client, namespacing keys under prefix (e.g. "syncorch:dedup:").
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) SeenOrMark(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.prefix+key, 1, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}
