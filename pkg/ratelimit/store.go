package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterStore shares the call counter between governors, possibly in
// different processes. Counts never decrease.
type CounterStore interface {
	// Start records now as the session start unless one is already stored,
	// and returns the effective start time.
	Start(ctx context.Context, now time.Time) (time.Time, error)

	// Incr increments the counter and returns the new value.
	Incr(ctx context.Context) (int64, error)

	// Count returns the current counter value.
	Count(ctx context.Context) (int64, error)
}

// RedisStore keeps the counter in Redis so several exporters can draw from one budget.
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStore creates a store whose keys are namespaced under prefix.
func NewRedisStore(redisClient *redis.Client, prefix string) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RedisStore) key(suffix string) string {
	if s.prefix == "" {
		return "slack:" + suffix
	}
	return "slack:" + s.prefix + ":" + suffix
}

// Start stores now as the session start if absent and returns the stored value.
func (s *RedisStore) Start(ctx context.Context, now time.Time) (time.Time, error) {
	key := s.key(RedisKeyStartedAt)

	pipe := s.redis.Pipeline()
	pipe.SetNX(ctx, key, now.UnixNano(), 0)
	get := pipe.Get(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return time.Time{}, fmt.Errorf("store session start in redis: %w", err)
	}

	nanos, err := strconv.ParseInt(get.Val(), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse session start: %w", err)
	}
	return time.Unix(0, nanos), nil
}

// Incr increments the shared call counter.
func (s *RedisStore) Incr(ctx context.Context) (int64, error) {
	n, err := s.redis.Incr(ctx, s.key(RedisKeyCalls)).Result()
	if err != nil {
		return 0, fmt.Errorf("incr call counter: %w", err)
	}
	return n, nil
}

// Count returns the shared call counter, 0 if it was never incremented.
func (s *RedisStore) Count(ctx context.Context) (int64, error) {
	n, err := s.redis.Get(ctx, s.key(RedisKeyCalls)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get call counter: %w", err)
	}
	return n, nil
}
