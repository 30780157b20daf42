package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"AnalysisPlatform/pkg/connection"
)

// Client представляет подключение к Redis
type Client struct {
	Client *redis.Client
}

// Config представляет конфигурацию Redis
type Config struct {
	Addr     string
	Password string
	DB       int
	// Параметры пула соединений
	PoolSize    int
	MinIdleConn int
	HealthCheck time.Duration
	// Параметры повторных попыток
	Retry connection.RetryConfig
}

// NewConfig создает конфигурацию по умолчанию
func NewConfig() *Config {
	return &Config{
		Addr:        "localhost:6379",
		PoolSize:    10,
		MinIdleConn: 2,
		HealthCheck: 30 * time.Second,
		Retry:       connection.DefaultRetryConfig(),
	}
}

// Connect устанавливает подключение к Redis с повторными попытками
func Connect(ctx context.Context, config *Config) (*Client, error) {
	options := &redis.Options{
		Addr:               config.Addr,
		Password:           config.Password,
		DB:                 config.DB,
		PoolSize:           config.PoolSize,
		MinIdleConns:       config.MinIdleConn,
		DialTimeout:        5 * time.Second,
		ReadTimeout:        3 * time.Second,
		WriteTimeout:       3 * time.Second,
		PoolTimeout:        4 * time.Second,
		IdleCheckFrequency: config.HealthCheck,
	}

	var client *redis.Client
	err := connection.WithRetry(ctx, config.Retry, func(ctx context.Context) error {
		c := redis.NewClient(options)
		if err := c.Ping(ctx).Err(); err != nil {
			_ = c.Close()
			return fmt.Errorf("failed to ping redis: %w", err)
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{Client: client}, nil
}

// Close закрывает подключение к Redis
func (r *Client) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// HealthCheck проверяет состояние подключения к Redis
func (r *Client) HealthCheck(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}
