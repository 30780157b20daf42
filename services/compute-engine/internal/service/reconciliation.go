package service

import (
	"context"
	"fmt"
	"time"

	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/pkg/logger"
	"AnalysisPlatform/services/compute-engine/internal/repository"
)

// Имена стратегий восстановления задач упавших воркеров
const (
	ReconcileResetUnknownWorkers = "reset-unknown-workers"
	ReconcileManual              = "manual"
)

// NewReconciliationStrategy создает стратегию по имени из конфигурации
func NewReconciliationStrategy(name string, queue repository.QueueRepository, registry repository.WorkerRegistry, log logger.Logger) (ReconciliationStrategy, error) {
	switch name {
	case ReconcileResetUnknownWorkers, "":
		return NewResetUnknownWorkers(queue, registry, log), nil
	case ReconcileManual:
		return NewManualReconciliation(queue, registry, log), nil
	default:
		return nil, errors.New(errors.ErrValidation, fmt.Sprintf("unknown reconciliation strategy: %s", name))
	}
}

// ResetUnknownWorkers возвращает в PENDING задачи воркеров без действующего heartbeat.
// Счетчик запусков сохраняется, поэтому такие задачи не захватываются повторно,
// а отменяются заданием worn-outs.
type ResetUnknownWorkers struct {
	queue    repository.QueueRepository
	registry repository.WorkerRegistry
	logger   logger.Logger
	now      func() time.Time
}

// NewResetUnknownWorkers создает стратегию reset-unknown-workers
func NewResetUnknownWorkers(queue repository.QueueRepository, registry repository.WorkerRegistry, log logger.Logger) *ResetUnknownWorkers {
	return &ResetUnknownWorkers{queue: queue, registry: registry, logger: log, now: time.Now}
}

// Name возвращает имя стратегии
func (r *ResetUnknownWorkers) Name() string {
	return ReconcileResetUnknownWorkers
}

// Reconcile сбрасывает задачи неизвестных воркеров
func (r *ResetUnknownWorkers) Reconcile(ctx context.Context) (int, error) {
	alive, err := r.registry.AliveWorkers(ctx)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrInternal, "failed to list alive workers").WithContext(ctx)
	}

	count, err := r.queue.ResetUnknownWorkers(ctx, alive, r.now())
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrInternal, "failed to reset tasks of unknown workers").WithContext(ctx)
	}
	if count > 0 {
		r.logger.Warn("Tasks of unknown workers returned to queue",
			logger.Int("count", count),
			logger.Int("alive_workers", len(alive)),
			logger.CtxField(ctx),
		)
	}
	return count, nil
}

// ManualReconciliation только сообщает о задачах воркеров без heartbeat.
// Решение о таких задачах принимает оператор.
type ManualReconciliation struct {
	queue    repository.QueueRepository
	registry repository.WorkerRegistry
	logger   logger.Logger
}

// NewManualReconciliation создает стратегию manual
func NewManualReconciliation(queue repository.QueueRepository, registry repository.WorkerRegistry, log logger.Logger) *ManualReconciliation {
	return &ManualReconciliation{queue: queue, registry: registry, logger: log}
}

// Name возвращает имя стратегии
func (m *ManualReconciliation) Name() string {
	return ReconcileManual
}

// Reconcile возвращает число осиротевших задач, ничего не меняя
func (m *ManualReconciliation) Reconcile(ctx context.Context) (int, error) {
	alive, err := m.registry.AliveWorkers(ctx)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrInternal, "failed to list alive workers").WithContext(ctx)
	}
	known := make(map[string]struct{}, len(alive))
	for _, w := range alive {
		known[w] = struct{}{}
	}

	inProgress, err := m.queue.ListInProgress(ctx)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrInternal, "failed to list tasks in progress").WithContext(ctx)
	}

	orphans := 0
	for _, task := range inProgress {
		if _, ok := known[task.WorkerUUID]; ok {
			continue
		}
		orphans++
		startedAt := ""
		if task.StartedAt != nil {
			startedAt = task.StartedAt.Format(time.RFC3339)
		}
		m.logger.Warn("Task is in progress on a worker without heartbeat",
			logger.String("task_uuid", task.UUID),
			logger.String("worker_uuid", task.WorkerUUID),
			logger.String("started_at", startedAt),
			logger.CtxField(ctx),
		)
	}
	return orphans, nil
}
