package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimiter ограничивает частоту операций по ключу
type RateLimiter interface {
	// Allow возвращает false, если лимит для ключа в текущем окне исчерпан
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RedisRateLimiter реализует RateLimiter фиксированным окном в Redis.
// Счетчик общий для всех узлов кластера.
type RedisRateLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisRateLimiter создает RedisRateLimiter
func NewRedisRateLimiter(client *redis.Client, prefix string) *RedisRateLimiter {
	if prefix == "" {
		prefix = "rate_limit"
	}
	return &RedisRateLimiter{client: client, prefix: prefix}
}

// Allow увеличивает счетчик ключа и сравнивает его с лимитом.
// TTL выставляется только при создании счетчика, поэтому окно не сдвигается.
func (r *RedisRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}

	redisKey := fmt.Sprintf("%s:%s", r.prefix, key)

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	// -1 означает ключ без TTL: счетчик только что создан
	if ttl.Val() < 0 {
		if err := r.client.PExpire(ctx, redisKey, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	return incr.Val() <= int64(limit), nil
}

// NoopRateLimiter пропускает все операции
type NoopRateLimiter struct{}

// Allow всегда возвращает true
func (NoopRateLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}
