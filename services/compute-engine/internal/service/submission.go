package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/pkg/logger"
	"AnalysisPlatform/services/compute-engine/internal/domain"
	"AnalysisPlatform/services/compute-engine/internal/repository"
)

// SubmitOption параметр постановки задачи
type SubmitOption int

const (
	// UniqueQueuePerEntity отклоняет задачу, если у проекта уже есть задача в очереди
	UniqueQueuePerEntity SubmitOption = iota + 1
)

// submitPausedMessage сообщение об отказе в приеме задач
const submitPausedMessage = "Compute Engine does not currently accept new tasks"

func hasOption(opts []SubmitOption, want SubmitOption) bool {
	for _, o := range opts {
		if o == want {
			return true
		}
	}
	return false
}

// SubmissionService ставит задачи в очередь.
// Выполнение задач отделено от постановки и выполняется пулом воркеров.
type SubmissionService struct {
	queue      repository.QueueRepository
	properties repository.PropertyRepository
	logger     logger.Logger
	now        func() time.Time
}

// NewSubmissionService создает SubmissionService
func NewSubmissionService(queue repository.QueueRepository, properties repository.PropertyRepository, log logger.Logger) *SubmissionService {
	return &SubmissionService{
		queue:      queue,
		properties: properties,
		logger:     log,
		now:        time.Now,
	}
}

// Submit ставит задачу в очередь в статусе PENDING
func (s *SubmissionService) Submit(ctx context.Context, submission *domain.TaskSubmission, opts ...SubmitOption) (*domain.Task, error) {
	if err := s.prepare(ctx, submission); err != nil {
		return nil, err
	}
	if err := s.checkSubmitAllowed(ctx); err != nil {
		return nil, err
	}

	var (
		task *domain.Task
		err  error
	)
	if hasOption(opts, UniqueQueuePerEntity) && submission.Component != nil {
		task, err = s.queue.InsertIfNoTaskForEntity(ctx, submission, s.now())
	} else {
		task, err = s.queue.Insert(ctx, submission, s.now())
	}
	if err != nil {
		if errors.IsCode(err, errors.ErrConflict) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to submit task").
			WithDetails(fmt.Sprintf("task_uuid: %s", submission.UUID)).
			WithContext(ctx)
	}

	s.logger.Info("Task submitted",
		logger.String("task_uuid", task.UUID),
		logger.String("type", string(task.Type)),
		logger.String("component_uuid", task.ComponentUUID()),
		logger.CtxField(ctx),
	)
	return task, nil
}

// MassSubmit ставит задачи одной транзакцией.
// С UniqueQueuePerEntity задачи проектов, у которых уже есть задачи в очереди, пропускаются.
func (s *SubmissionService) MassSubmit(ctx context.Context, submissions []*domain.TaskSubmission, opts ...SubmitOption) ([]*domain.Task, error) {
	if len(submissions) == 0 {
		return []*domain.Task{}, nil
	}
	for _, submission := range submissions {
		if err := s.prepare(ctx, submission); err != nil {
			return nil, err
		}
	}
	if err := s.checkSubmitAllowed(ctx); err != nil {
		return nil, err
	}

	tasks, err := s.queue.InsertMany(ctx, submissions, hasOption(opts, UniqueQueuePerEntity), s.now())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to submit tasks").
			WithDetails(fmt.Sprintf("count: %d", len(submissions))).
			WithContext(ctx)
	}

	s.logger.Info("Tasks submitted",
		logger.Int("requested", len(submissions)),
		logger.Int("submitted", len(tasks)),
		logger.CtxField(ctx),
	)
	return tasks, nil
}

func (s *SubmissionService) prepare(ctx context.Context, submission *domain.TaskSubmission) error {
	if submission == nil {
		return errors.New(errors.ErrValidation, "task submission is required").WithContext(ctx)
	}
	if submission.UUID == "" {
		submission.UUID = uuid.NewString()
	}
	if err := submission.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrValidation, "invalid task submission").
			WithDetails(err.Error()).
			WithContext(ctx)
	}
	return nil
}

func (s *SubmissionService) checkSubmitAllowed(ctx context.Context) error {
	paused, err := s.IsSubmitPaused(ctx)
	if err != nil {
		return err
	}
	if paused {
		return errors.New(errors.ErrConflict, submitPausedMessage).WithContext(ctx)
	}
	return nil
}

// PauseSubmit запрещает постановку новых задач
func (s *SubmissionService) PauseSubmit(ctx context.Context) error {
	if err := s.properties.Set(ctx, repository.PropertyPauseSubmit, "true"); err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to pause submit").WithContext(ctx)
	}
	s.logger.Info("Task submission paused", logger.CtxField(ctx))
	return nil
}

// ResumeSubmit снова разрешает постановку задач
func (s *SubmissionService) ResumeSubmit(ctx context.Context) error {
	if err := s.properties.Delete(ctx, repository.PropertyPauseSubmit); err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to resume submit").WithContext(ctx)
	}
	s.logger.Info("Task submission resumed", logger.CtxField(ctx))
	return nil
}

// IsSubmitPaused проверяет, приостановлена ли постановка задач
func (s *SubmissionService) IsSubmitPaused(ctx context.Context) (bool, error) {
	value, ok, err := s.properties.Get(ctx, repository.PropertyPauseSubmit)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrInternal, "failed to read submit pause flag").WithContext(ctx)
	}
	return ok && value == "true", nil
}
