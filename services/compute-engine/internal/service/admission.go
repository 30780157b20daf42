package service

import (
	"context"
	"time"

	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/pkg/logger"
	"AnalysisPlatform/services/compute-engine/internal/domain"
	"AnalysisPlatform/services/compute-engine/internal/repository"
)

// AdmissionService управляет паузой обработки и сообщает состояние очереди.
// Флаг паузы хранится во внутренних свойствах, которые читает захват задачи,
// поэтому пауза видна всем узлам кластера одновременно с захватом.
type AdmissionService struct {
	properties  repository.PropertyRepository
	queue       repository.QueueRepository
	workerCount WorkerCountProvider
	logger      logger.Logger
	now         func() time.Time
}

// NewAdmissionService создает AdmissionService
func NewAdmissionService(properties repository.PropertyRepository, queue repository.QueueRepository, workerCount WorkerCountProvider, log logger.Logger) *AdmissionService {
	if workerCount == nil {
		workerCount = StaticWorkerCount{Count: 1}
	}
	return &AdmissionService{
		properties:  properties,
		queue:       queue,
		workerCount: workerCount,
		logger:      log,
		now:         time.Now,
	}
}

// PauseWorkers запрещает воркерам брать новые задачи. Выполняемые задачи завершаются.
func (s *AdmissionService) PauseWorkers(ctx context.Context) error {
	if err := s.properties.Set(ctx, repository.PropertyPauseWorkers, "true"); err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to pause workers").WithContext(ctx)
	}
	s.logger.Info("Workers paused", logger.CtxField(ctx))
	return nil
}

// ResumeWorkers снимает паузу
func (s *AdmissionService) ResumeWorkers(ctx context.Context) error {
	if err := s.properties.Delete(ctx, repository.PropertyPauseWorkers); err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to resume workers").WithContext(ctx)
	}
	s.logger.Info("Workers resumed", logger.CtxField(ctx))
	return nil
}

// IsPaused проверяет, запрошена ли пауза
func (s *AdmissionService) IsPaused(ctx context.Context) (bool, error) {
	value, ok, err := s.properties.Get(ctx, repository.PropertyPauseWorkers)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrInternal, "failed to read pause flag").WithContext(ctx)
	}
	return ok && value == "true", nil
}

// Status возвращает размер очереди и состояние паузы
func (s *AdmissionService) Status(ctx context.Context) (*domain.QueueStatus, error) {
	paused, err := s.IsPaused(ctx)
	if err != nil {
		return nil, err
	}

	counts, err := s.queue.CountByStatus(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to count tasks").WithContext(ctx)
	}

	status := &domain.QueueStatus{
		Pending:     counts[domain.TaskStatusPending],
		InProgress:  counts[domain.TaskStatusInProgress],
		PauseStatus: domain.ResolvePauseStatus(paused, counts[domain.TaskStatusInProgress]),
	}

	oldest, err := s.queue.OldestPendingCreatedAt(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to read pending time").WithContext(ctx)
	}
	if oldest != nil {
		ms := s.now().Sub(*oldest).Milliseconds()
		if ms < 0 {
			ms = 0
		}
		status.PendingTimeMs = &ms
	}
	return status, nil
}

// WorkerCount возвращает число воркеров узла. Изменяется только перенастройкой и перезапуском.
func (s *AdmissionService) WorkerCount() domain.WorkerCount {
	return s.workerCount.WorkerCount()
}
