package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisRateLimiter_Allow_DisabledLimit(t *testing.T) {
	limiter := NewRedisRateLimiter(nil, "")

	allowed, err := limiter.Allow(context.Background(), "user-1", 0, time.Minute)

	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisRateLimiter_Allow_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	limiter := NewRedisRateLimiter(client, "ce_submit")

	allowed, err := limiter.Allow(context.Background(), "user-1", 5, time.Minute)

	assert.Error(t, err)
	assert.False(t, allowed)
}

func TestNewRedisRateLimiter_DefaultPrefix(t *testing.T) {
	assert.Equal(t, "rate_limit", NewRedisRateLimiter(nil, "").prefix)
	assert.Equal(t, "ce_submit", NewRedisRateLimiter(nil, "ce_submit").prefix)
}

func TestNoopRateLimiter(t *testing.T) {
	allowed, err := NoopRateLimiter{}.Allow(context.Background(), "any", 1, time.Second)

	require.NoError(t, err)
	assert.True(t, allowed)
}
