package service

import (
	"context"
	"fmt"
	"time"

	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/pkg/logger"
	"AnalysisPlatform/services/compute-engine/internal/domain"
	"AnalysisPlatform/services/compute-engine/internal/repository"
)

// CancellationService отменяет задачи в ожидании.
// Отмена идемпотентна: отсутствующая, завершенная или уже выполняемая задача не является ошибкой.
type CancellationService struct {
	lifecycle repository.TaskLifecycleRepository
	events    *EventPublisher
	logger    logger.Logger
	now       func() time.Time
}

// NewCancellationService создает CancellationService
func NewCancellationService(lifecycle repository.TaskLifecycleRepository, events *EventPublisher, log logger.Logger) *CancellationService {
	return &CancellationService{
		lifecycle: lifecycle,
		events:    events,
		logger:    log,
		now:       time.Now,
	}
}

// Cancel отменяет задачу, если она еще в PENDING.
// Возвращает отмененную задачу или nil, если отменять было нечего.
func (s *CancellationService) Cancel(ctx context.Context, taskUUID string) (*domain.Task, error) {
	task, err := s.lifecycle.CancelPending(ctx, taskUUID, s.now())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to cancel task").
			WithDetails(fmt.Sprintf("task_uuid: %s", taskUUID)).
			WithContext(ctx)
	}
	if task == nil {
		s.logger.Debug("Nothing to cancel",
			logger.String("task_uuid", taskUUID),
			logger.CtxField(ctx),
		)
		return nil, nil
	}

	s.logger.Info("Task canceled",
		logger.String("task_uuid", task.UUID),
		logger.String("component_uuid", task.ComponentUUID()),
		logger.CtxField(ctx),
	)
	if s.events != nil {
		s.events.TaskFinished(ctx, task)
	}
	return task, nil
}

// CancelAll отменяет все задачи в PENDING.
// Задачи, взятые воркерами одновременно с отменой, продолжают выполняться.
func (s *CancellationService) CancelAll(ctx context.Context) (int, error) {
	count, err := s.lifecycle.CancelAllPending(ctx, s.now())
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrInternal, "failed to cancel pending tasks").WithContext(ctx)
	}
	s.logger.Info("Pending tasks canceled", logger.Int("count", count), logger.CtxField(ctx))
	return count, nil
}

// CancelWornOuts отменяет задачи, которые уже запускались и вернулись в очередь
func (s *CancellationService) CancelWornOuts(ctx context.Context) (int, error) {
	count, err := s.lifecycle.CancelWornOut(ctx, s.now())
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrInternal, "failed to cancel worn out tasks").WithContext(ctx)
	}
	if count > 0 {
		s.logger.Warn("Worn out tasks canceled", logger.Int("count", count), logger.CtxField(ctx))
	}
	return count, nil
}
