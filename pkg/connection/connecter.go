package connection

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig содержит конфигурацию повторных попыток подключения
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// RetryFunc представляет операцию, которую нужно повторять
type RetryFunc func(ctx context.Context) error

// Permanent помечает ошибку как неповторяемую
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// NewBackOff строит экспоненциальную политику задержек по конфигурации
func NewBackOff(config RetryConfig) *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = config.InitialDelay
	policy.MaxInterval = config.MaxDelay
	policy.MaxElapsedTime = 0
	if config.Multiplier > 1 {
		policy.Multiplier = config.Multiplier
	}
	if !config.Jitter {
		policy.RandomizationFactor = 0
	}
	policy.Reset()
	return policy
}

// WithRetry выполняет операцию с экспоненциальной задержкой между попытками.
// Останавливается при отмене контекста или при ошибке, помеченной Permanent.
func WithRetry(ctx context.Context, config RetryConfig, operation RetryFunc) error {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	var lastErr error
	attempts := 0
	policy := backoff.WithContext(
		backoff.WithMaxRetries(NewBackOff(config), uint64(config.MaxAttempts-1)),
		ctx,
	)

	err := backoff.Retry(func() error {
		attempts++
		lastErr = operation(ctx)
		return lastErr
	}, policy)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("operation failed after %d attempts: %w", attempts, err)
}
