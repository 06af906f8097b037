package repository

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const suppressedKeyPrefix = "push:token:suppressed:"

// RedisRepository remembers registration ids that FCM reported as dead so
// later requests skip them.
type RedisRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRepository(client *redis.Client, ttl time.Duration) *RedisRepository {
	return &RedisRepository{
		client: client,
		ttl:    ttl,
	}
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// IsTokenSuppressed returns true if the token is currently marked as invalid.
func (r *RedisRepository) IsTokenSuppressed(ctx context.Context, token string) (bool, error) {
	exists, err := r.client.Exists(ctx, suppressedKeyPrefix+token).Result()
	if err != nil {
		return false, err
	}
	return exists == 1, nil
}

// SuppressToken stores a token in Redis with a TTL.
func (r *RedisRepository) SuppressToken(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.ttl
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return r.client.SetEX(ctx, suppressedKeyPrefix+token, "1", ttl).Err()
}

// ReleaseToken lifts a suppression. Device registration calls it so a
// re-registered token is attempted again.
func (r *RedisRepository) ReleaseToken(ctx context.Context, token string) error {
	return r.client.Del(ctx, suppressedKeyPrefix+token).Err()
}
