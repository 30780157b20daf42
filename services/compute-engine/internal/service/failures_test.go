package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/pkg/mocks"
	"AnalysisPlatform/services/compute-engine/internal/domain"
	cemocks "AnalysisPlatform/services/compute-engine/internal/mocks"
	"AnalysisPlatform/services/compute-engine/internal/repository/memory"
)

var errStorage = fmt.Errorf("connection reset by peer")

func TestCancellationService_StorageFailure(t *testing.T) {
	lifecycle := &cemocks.MockTaskLifecycleRepository{}
	lifecycle.On("CancelPending", mock.Anything, "task-1", mock.Anything).Return(nil, errStorage)
	lifecycle.On("CancelAllPending", mock.Anything, mock.Anything).Return(0, errStorage)
	lifecycle.On("CancelWornOut", mock.Anything, mock.Anything).Return(0, errStorage)

	s := NewCancellationService(lifecycle, nil, mocks.NewPermissiveLogger())
	ctx := context.Background()

	_, err := s.Cancel(ctx, "task-1")
	assert.True(t, errors.IsCode(err, errors.ErrInternal))
	_, err = s.CancelAll(ctx)
	assert.True(t, errors.IsCode(err, errors.ErrInternal))
	_, err = s.CancelWornOuts(ctx)
	assert.True(t, errors.IsCode(err, errors.ErrInternal))

	lifecycle.AssertExpectations(t)
}

func TestCancellationService_Cancel_PublishesEvent(t *testing.T) {
	canceled := &domain.Task{UUID: "task-1", Type: domain.TaskTypeReport, Status: domain.TaskStatusCanceled}
	lifecycle := &cemocks.MockTaskLifecycleRepository{}
	lifecycle.On("CancelPending", mock.Anything, "task-1", mock.Anything).Return(canceled, nil)

	publisher := &cemocks.MockPublisher{}
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	log := mocks.NewPermissiveLogger()
	s := NewCancellationService(lifecycle, NewEventPublisher(publisher, log), log)

	task, err := s.Cancel(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, canceled, task)
	publisher.AssertExpectations(t)
}

func TestAdmissionService_PropertyFailure(t *testing.T) {
	properties := &cemocks.MockPropertyRepository{}
	properties.On("Set", mock.Anything, mock.Anything, "true").Return(errStorage)
	properties.On("Delete", mock.Anything, mock.Anything).Return(errStorage)
	properties.On("Get", mock.Anything, mock.Anything).Return("", false, errStorage)

	s := NewAdmissionService(properties, memory.NewTaskStore(memory.NewPropertyStore()), StaticWorkerCount{Count: 1}, mocks.NewPermissiveLogger())
	ctx := context.Background()

	assert.True(t, errors.IsCode(s.PauseWorkers(ctx), errors.ErrInternal))
	assert.True(t, errors.IsCode(s.ResumeWorkers(ctx), errors.ErrInternal))
	_, err := s.Status(ctx)
	assert.True(t, errors.IsCode(err, errors.ErrInternal))
}

func TestSubmissionService_PauseFlagUnreadable(t *testing.T) {
	properties := &cemocks.MockPropertyRepository{}
	properties.On("Get", mock.Anything, mock.Anything).Return("", false, errStorage)

	s := NewSubmissionService(memory.NewTaskStore(memory.NewPropertyStore()), properties, mocks.NewPermissiveLogger())
	_, err := s.Submit(context.Background(), domain.NewTaskSubmission(domain.TaskTypeReport, nil, ""))
	assert.True(t, errors.IsCode(err, errors.ErrInternal))
}

func TestMessageService_StorageFailure(t *testing.T) {
	repo := &cemocks.MockMessageRepository{}
	repo.On("Insert", mock.Anything, mock.Anything).Return(errStorage)
	repo.On("ListByTask", mock.Anything, "task-1").Return([]*domain.TaskMessage{
		domain.NewTaskMessage("task-1", domain.MessageTypeGeneric, "warn", time.Now()),
	}, nil)
	repo.On("ListDismissed", mock.Anything, "user-1", "p-1").Return(nil, errStorage)
	repo.On("CountWarnings", mock.Anything, []string{"task-1"}).Return(nil, errStorage)
	repo.On("InsertDismissed", mock.Anything, mock.Anything).Return(errStorage)

	s := NewMessageService(repo, mocks.NewPermissiveLogger())
	ctx := context.Background()

	err := s.AddMessage(ctx, "task-1", domain.MessageTypeGeneric, "text")
	assert.True(t, errors.IsCode(err, errors.ErrInternal))

	task := &domain.Task{UUID: "task-1", Component: domain.NewComponent("p-1", "")}
	_, err = s.ListWarnings(ctx, task, "user-1")
	assert.True(t, errors.IsCode(err, errors.ErrInternal))

	// без пользователя скрытые типы не запрашиваются
	warnings, err := s.ListWarnings(ctx, task, "")
	require.NoError(t, err)
	assert.Len(t, warnings, 1)

	_, err = s.WarningCounts(ctx, []string{"task-1"})
	assert.True(t, errors.IsCode(err, errors.ErrInternal))

	err = s.Dismiss(ctx, "user-1", "p-1", string(domain.MessageTypeBranchNCD90))
	assert.True(t, errors.IsCode(err, errors.ErrInternal))
}

func TestLockManager_StorageFailureIsNotAcquired(t *testing.T) {
	repo := &cemocks.MockLockRepository{}
	repo.On("TryLock", mock.Anything, JobWornOuts, "node-1", time.Second).Return(nil, errStorage).Once()
	repo.On("TryLock", mock.Anything, JobWornOuts, "node-1", time.Second).
		Return(nil, errors.New(errors.ErrConflict, "lock is held")).Once()
	metrics := newRecordingMetrics()

	locks := NewLockManager(repo, "node-1", metrics, mocks.NewPermissiveLogger())
	assert.False(t, locks.TryLock(context.Background(), JobWornOuts, time.Second))
	assert.False(t, locks.TryLock(context.Background(), JobWornOuts, time.Second))
	assert.False(t, locks.TryLock(context.Background(), JobWornOuts, 0))

	assert.Equal(t, []bool{false, false}, metrics.locks[JobWornOuts])
	repo.AssertExpectations(t)
}

func TestReconciliation_RegistryFailure(t *testing.T) {
	registry := &cemocks.MockWorkerRegistry{}
	registry.On("AliveWorkers", mock.Anything).Return(nil, errStorage)
	tasks := memory.NewTaskStore(memory.NewPropertyStore())
	log := mocks.NewPermissiveLogger()

	for _, strategy := range []ReconciliationStrategy{
		NewResetUnknownWorkers(tasks, registry, log),
		NewManualReconciliation(tasks, registry, log),
	} {
		_, err := strategy.Reconcile(context.Background())
		assert.True(t, errors.IsCode(err, errors.ErrInternal), strategy.Name())
	}
}

func TestJobScheduler_HeartbeatFailure(t *testing.T) {
	h := newHarness(t)
	registry := &cemocks.MockWorkerRegistry{}
	registry.On("Heartbeat", mock.Anything, mock.Anything, 30*time.Second).Return(errStorage)

	scheduler := NewJobScheduler(JobsConfig{HeartbeatTTL: 30 * time.Second}, JobsDependencies{
		Registry: registry,
		Pool:     h.pool,
		Logger:   h.log,
	})

	err := scheduler.Heartbeat(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrInternal))
}
