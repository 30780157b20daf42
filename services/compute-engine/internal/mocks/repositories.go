package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"AnalysisPlatform/services/compute-engine/internal/domain"
)

// MockTaskLifecycleRepository мок для TaskLifecycleRepository
type MockTaskLifecycleRepository struct {
	mock.Mock
}

func (m *MockTaskLifecycleRepository) Finish(ctx context.Context, task *domain.Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockTaskLifecycleRepository) CancelPending(ctx context.Context, taskUUID string, now time.Time) (*domain.Task, error) {
	args := m.Called(ctx, taskUUID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Task), args.Error(1)
}

func (m *MockTaskLifecycleRepository) CancelAllPending(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

func (m *MockTaskLifecycleRepository) CancelWornOut(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

// MockPropertyRepository мок для PropertyRepository
type MockPropertyRepository struct {
	mock.Mock
}

func (m *MockPropertyRepository) Get(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockPropertyRepository) Set(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockPropertyRepository) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// MockMessageRepository мок для MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) Insert(ctx context.Context, message *domain.TaskMessage) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockMessageRepository) ListByTask(ctx context.Context, taskUUID string) ([]*domain.TaskMessage, error) {
	args := m.Called(ctx, taskUUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.TaskMessage), args.Error(1)
}

func (m *MockMessageRepository) CountWarnings(ctx context.Context, taskUUIDs []string) (map[string]int, error) {
	args := m.Called(ctx, taskUUIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int), args.Error(1)
}

func (m *MockMessageRepository) InsertDismissed(ctx context.Context, dismissed *domain.DismissedMessage) error {
	args := m.Called(ctx, dismissed)
	return args.Error(0)
}

func (m *MockMessageRepository) ListDismissed(ctx context.Context, userUUID, projectUUID string) ([]domain.MessageType, error) {
	args := m.Called(ctx, userUUID, projectUUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.MessageType), args.Error(1)
}

// MockLockRepository мок для LockRepository
type MockLockRepository struct {
	mock.Mock
}

func (m *MockLockRepository) TryLock(ctx context.Context, name, holder string, ttl time.Duration) (*domain.LockInfo, error) {
	args := m.Called(ctx, name, holder, ttl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LockInfo), args.Error(1)
}

func (m *MockLockRepository) Release(ctx context.Context, name, holder string) error {
	args := m.Called(ctx, name, holder)
	return args.Error(0)
}

// MockWorkerRegistry мок для WorkerRegistry
type MockWorkerRegistry struct {
	mock.Mock
}

func (m *MockWorkerRegistry) Heartbeat(ctx context.Context, workerUUID string, ttl time.Duration) error {
	args := m.Called(ctx, workerUUID, ttl)
	return args.Error(0)
}

func (m *MockWorkerRegistry) Unregister(ctx context.Context, workerUUID string) error {
	args := m.Called(ctx, workerUUID)
	return args.Error(0)
}

func (m *MockWorkerRegistry) AliveWorkers(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
