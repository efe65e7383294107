package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/tubegate/tubegate/internal/config"
	"github.com/tubegate/tubegate/internal/redis"
)

const redisKeyPrefix = "tubegate:cache:"

// RedisStore is the optional Redis persistent cache tier. TTLs are enforced
// server-side via EXPIRE, so no lazy pruning is needed.
type RedisStore struct {
	client redis.Client
}

// NewRedisStore connects to Redis using the configured endpoints.
func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	client, err := redis.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Get returns the payload for key and its server-side remaining TTL, or a
// miss when the key is absent or already expired.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, time.Duration, bool, error) {
	payload, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("cache get: %w", err)
	}
	remaining, err := s.client.TTL(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		return nil, 0, false, fmt.Errorf("cache ttl: %w", err)
	}
	// TTL reports negative values for missing or non-expiring keys; the key
	// may also have expired between the two commands. Treat both as a miss.
	if remaining <= 0 {
		return nil, 0, false, nil
	}
	return payload, remaining, true, nil
}

// Set stores the payload with the given TTL.
func (s *RedisStore) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, redisKeyPrefix+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Delete removes an entry. Missing keys are not an error.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, redisKeyPrefix+key).Err()
}

// Prune is a no-op: Redis expires keys itself.
func (s *RedisStore) Prune(context.Context) (int64, error) {
	return 0, nil
}

// Len counts entries under the cache prefix. SCAN-based, approximate under
// concurrent writes; used only for stats.
func (s *RedisStore) Len(ctx context.Context) (int64, error) {
	var n int64
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n, iter.Err()
}

// Ping checks Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
