package usecase

import (
	"context"

	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/pkg/logger"
	"AnalysisPlatform/services/compute-engine/internal/auth"
	"AnalysisPlatform/services/compute-engine/internal/domain"
	"AnalysisPlatform/services/compute-engine/internal/service"
)

// AdminUseCase операции администрирования очереди с проверкой прав
type AdminUseCase struct {
	admission    *service.AdmissionService
	submissions  *service.SubmissionService
	cancellation *service.CancellationService
	queries      *service.QueryService
	logger       logger.Logger
}

// NewAdminUseCase создает AdminUseCase
func NewAdminUseCase(
	admission *service.AdmissionService,
	submissions *service.SubmissionService,
	cancellation *service.CancellationService,
	queries *service.QueryService,
	logger logger.Logger,
) *AdminUseCase {
	return &AdminUseCase{
		admission:    admission,
		submissions:  submissions,
		cancellation: cancellation,
		queries:      queries,
		logger:       logger,
	}
}

// Pause останавливает захват новых задач. Выполняемые задачи доводятся до конца.
func (uc *AdminUseCase) Pause(ctx context.Context) error {
	if err := auth.RequireSystemAdmin(ctx); err != nil {
		return err
	}
	uc.audit(ctx, "pause")
	return uc.admission.PauseWorkers(ctx)
}

// Resume возобновляет захват задач
func (uc *AdminUseCase) Resume(ctx context.Context) error {
	if err := auth.RequireSystemAdmin(ctx); err != nil {
		return err
	}
	uc.audit(ctx, "resume")
	return uc.admission.ResumeWorkers(ctx)
}

// Status возвращает сводку по очереди
func (uc *AdminUseCase) Status(ctx context.Context) (*domain.QueueStatus, error) {
	if err := auth.RequireSystemAdmin(ctx); err != nil {
		return nil, err
	}
	return uc.admission.Status(ctx)
}

// WorkerCount возвращает число воркеров узла
func (uc *AdminUseCase) WorkerCount(ctx context.Context) (domain.WorkerCount, error) {
	if err := auth.RequireSystemAdmin(ctx); err != nil {
		return domain.WorkerCount{}, err
	}
	return uc.admission.WorkerCount(), nil
}

// Cancel отменяет задачу, если она еще ожидает выполнения.
// Для задачи в работе или уже завершенной возвращает ее текущее состояние без изменений.
// Для несуществующей задачи возвращает nil без ошибки.
func (uc *AdminUseCase) Cancel(ctx context.Context, taskUUID string) (*service.TaskView, error) {
	if taskUUID == "" {
		return nil, errors.New(errors.ErrValidation, "The 'id' parameter is missing").WithContext(ctx)
	}

	task, err := uc.queries.FindTask(ctx, taskUUID)
	if err != nil {
		if !errors.IsCode(err, errors.ErrNotFound) {
			return nil, err
		}
		// отсутствующую задачу отменять нечего, но о ее существовании знает только администратор
		if err := auth.RequireSystemAdmin(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err := requireTaskAdmin(ctx, task); err != nil {
		return nil, err
	}

	uc.audit(ctx, "cancel", logger.String("task_uuid", taskUUID))
	canceled, err := uc.cancellation.Cancel(ctx, taskUUID)
	if err != nil {
		return nil, err
	}
	if canceled != nil {
		return service.NewTaskView(canceled), nil
	}

	current, err := uc.queries.FindTask(ctx, taskUUID)
	if err != nil {
		return nil, err
	}
	return service.NewTaskView(current), nil
}

// CancelAll отменяет все задачи в PENDING
func (uc *AdminUseCase) CancelAll(ctx context.Context) (int, error) {
	if err := auth.RequireSystemAdmin(ctx); err != nil {
		return 0, err
	}
	uc.audit(ctx, "cancel_all")
	return uc.cancellation.CancelAll(ctx)
}

// PauseSubmit запрещает постановку новых задач
func (uc *AdminUseCase) PauseSubmit(ctx context.Context) error {
	if err := auth.RequireSystemAdmin(ctx); err != nil {
		return err
	}
	uc.audit(ctx, "submit_pause")
	return uc.submissions.PauseSubmit(ctx)
}

// ResumeSubmit разрешает постановку задач
func (uc *AdminUseCase) ResumeSubmit(ctx context.Context) error {
	if err := auth.RequireSystemAdmin(ctx); err != nil {
		return err
	}
	uc.audit(ctx, "submit_resume")
	return uc.submissions.ResumeSubmit(ctx)
}

func (uc *AdminUseCase) audit(ctx context.Context, action string, fields ...logger.Field) {
	fields = append(fields,
		logger.String("action", action),
		logger.String("identity", auth.FromContext(ctx).String()),
		logger.CtxField(ctx),
	)
	uc.logger.Info("Compute engine admin action", fields...)
}

// requireTaskAdmin проверяет права на задачу: права на ветку или на ее проект.
// Задачи без компонента администрирует только системный администратор.
func requireTaskAdmin(ctx context.Context, task *domain.Task) error {
	if task.Component == nil {
		return auth.RequireSystemAdmin(ctx)
	}
	identity, err := auth.RequireAuthenticated(ctx)
	if err != nil {
		return err
	}
	if identity.CanAdminister(task.ComponentUUID()) || identity.CanAdminister(task.EntityUUID()) {
		return nil
	}
	return errors.New(errors.ErrForbidden, "Insufficient privileges").WithContext(ctx)
}
