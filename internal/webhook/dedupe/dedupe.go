// Package dedupe short-circuits replayed webhook deliveries before they reach the database.
// The ledger state machine stays the authority; a lost cache entry only costs a redundant no-op.
package dedupe

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "payouts:webhook:delivery:"

// RedisDeduplicator remembers delivery IDs in Redis with SETNX and a TTL.
type RedisDeduplicator struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisDeduplicator creates a RedisDeduplicator.
func NewRedisDeduplicator(client redis.UniversalClient, ttl time.Duration) *RedisDeduplicator {
	return &RedisDeduplicator{client: client, ttl: ttl}
}

// Claim reports whether deliveryID is seen for the first time, recording it if so.
func (d *RedisDeduplicator) Claim(ctx context.Context, deliveryID string) (bool, error) {
	return d.client.SetNX(ctx, keyPrefix+deliveryID, "1", d.ttl).Result()
}

// Release forgets deliveryID so a redelivery is processed again.
func (d *RedisDeduplicator) Release(ctx context.Context, deliveryID string) error {
	return d.client.Del(ctx, keyPrefix+deliveryID).Err()
}

// NoopDeduplicator treats every delivery as new.
type NoopDeduplicator struct{}

// Claim always reports a first delivery.
func (NoopDeduplicator) Claim(context.Context, string) (bool, error) { return true, nil }

// Release does nothing.
func (NoopDeduplicator) Release(context.Context, string) error { return nil }
