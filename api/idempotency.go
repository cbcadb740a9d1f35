package api

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper stores idempotency keys in Redis so every instance rejects the
// same replayed request.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(scope, key string) string {
	return fmt.Sprintf("idem:%s:%s", scope, key)
}

// Add records the key if it does not already exist. It returns true when the
// key was newly added.
func (r *RedisDeduper) Add(ctx context.Context, scope, key string) (bool, error) {
	return r.client.SetNX(ctx, r.key(scope, key), 1, r.ttl).Result()
}

// Remove deletes a previously recorded key so the caller may retry.
func (r *RedisDeduper) Remove(ctx context.Context, scope, key string) error {
	return r.client.Del(ctx, r.key(scope, key)).Err()
}

// RedisRevoker records signed-out sessions in Redis. Entries expire with the
// credential they block.
type RedisRevoker struct {
	client *redis.Client
}

// NewRedisRevoker creates a revoker backed by client.
func NewRedisRevoker(client *redis.Client) *RedisRevoker {
	return &RedisRevoker{client: client}
}

func revokedKey(key string) string { return "revoked:" + key }

// Revoke blocks key until the given time. Past deadlines are ignored.
func (r *RedisRevoker) Revoke(ctx context.Context, key string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, revokedKey(key), 1, ttl).Err()
}

// Revoked reports whether key was signed out.
func (r *RedisRevoker) Revoked(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKey(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
