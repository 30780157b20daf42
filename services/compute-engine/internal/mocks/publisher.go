package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"AnalysisPlatform/pkg/rabbitmq"
)

// MockPublisher мок брокера событий
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, body []byte, options ...rabbitmq.PublishOption) error {
	args := m.Called(ctx, body, options)
	return args.Error(0)
}
