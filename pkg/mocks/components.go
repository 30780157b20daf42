package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"AnalysisPlatform/pkg/logger"
)

// MockLogger имитирует pkg/logger.Logger
type MockLogger struct {
	mock.Mock
}

// NewPermissiveLogger возвращает MockLogger, принимающий любые записи
func NewPermissiveLogger() *MockLogger {
	m := &MockLogger{}
	for _, level := range []string{"Debug", "Info", "Warn", "Error"} {
		m.On(level, mock.AnythingOfType("string"), mock.Anything).Maybe()
	}
	m.On("With", mock.Anything).Return(m).Maybe()
	m.On("Sync").Return(nil).Maybe()
	return m
}

func (m *MockLogger) Debug(msg string, fields ...logger.Field) {
	m.Called(msg, fields)
}

func (m *MockLogger) Info(msg string, fields ...logger.Field) {
	m.Called(msg, fields)
}

func (m *MockLogger) Warn(msg string, fields ...logger.Field) {
	m.Called(msg, fields)
}

func (m *MockLogger) Error(msg string, fields ...logger.Field) {
	m.Called(msg, fields)
}

func (m *MockLogger) With(fields ...logger.Field) logger.Logger {
	args := m.Called(fields)
	return args.Get(0).(logger.Logger)
}

func (m *MockLogger) Sync() error {
	args := m.Called()
	return args.Error(0)
}

// MockRateLimiter имитирует pkg/ratelimit.RateLimiter
type MockRateLimiter struct {
	mock.Mock
}

func (m *MockRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}
