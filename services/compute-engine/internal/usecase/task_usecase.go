package usecase

import (
	"context"
	"fmt"
	"time"

	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/pkg/logger"
	"AnalysisPlatform/pkg/ratelimit"
	"AnalysisPlatform/services/compute-engine/internal/auth"
	"AnalysisPlatform/services/compute-engine/internal/repository"
	"AnalysisPlatform/services/compute-engine/internal/service"
)

// SubmitLimit лимит отправок отчетов на одного отправителя, Limit 0 отключает лимит
type SubmitLimit struct {
	Limit  int
	Window time.Duration
}

// TaskUseCase постановка отчетов и чтение состояния задач
type TaskUseCase struct {
	reports  *service.ReportSubmitter
	queries  *service.QueryService
	messages *service.MessageService
	limiter  ratelimit.RateLimiter
	limit    SubmitLimit
	logger   logger.Logger
}

// NewTaskUseCase создает TaskUseCase
func NewTaskUseCase(
	reports *service.ReportSubmitter,
	queries *service.QueryService,
	messages *service.MessageService,
	limiter ratelimit.RateLimiter,
	limit SubmitLimit,
	logger logger.Logger,
) *TaskUseCase {
	if limiter == nil {
		limiter = ratelimit.NoopRateLimiter{}
	}
	return &TaskUseCase{
		reports:  reports,
		queries:  queries,
		messages: messages,
		limiter:  limiter,
		limit:    limit,
		logger:   logger,
	}
}

// SubmitReport ставит отчет анализа в очередь от имени вызывающего
func (uc *TaskUseCase) SubmitReport(ctx context.Context, report service.ReportSubmission) (*service.SubmittedReport, error) {
	identity, err := auth.RequireAuthenticated(ctx)
	if err != nil {
		return nil, err
	}
	if err := uc.checkRateLimit(ctx, identity); err != nil {
		return nil, err
	}

	report.SubmitterUUID = identity.UserUUID
	return uc.reports.Submit(ctx, report)
}

// checkRateLimit ограничивает частоту отправок. Недоступность Redis не блокирует отправку.
func (uc *TaskUseCase) checkRateLimit(ctx context.Context, identity *auth.Identity) error {
	if uc.limit.Limit <= 0 {
		return nil
	}

	key := fmt.Sprintf("ce-submit:%s", identity)
	allowed, err := uc.limiter.Allow(ctx, key, uc.limit.Limit, uc.limit.Window)
	if err != nil {
		uc.logger.Warn("Rate limiter unavailable, submission allowed",
			logger.String("key", key),
			logger.Error(err),
			logger.CtxField(ctx),
		)
		return nil
	}
	if !allowed {
		return errors.New(errors.ErrRateLimited, "Too many analysis reports submitted, retry later").
			WithDetails(fmt.Sprintf("limit: %d per %s", uc.limit.Limit, uc.limit.Window)).
			WithContext(ctx)
	}
	return nil
}

// GetTask возвращает задачу из очереди или истории
func (uc *TaskUseCase) GetTask(ctx context.Context, taskUUID string, withWarnings bool) (*service.TaskView, error) {
	identity, err := auth.RequireAuthenticated(ctx)
	if err != nil {
		return nil, err
	}
	if taskUUID == "" {
		return nil, errors.New(errors.ErrValidation, "The 'id' parameter is missing").WithContext(ctx)
	}
	return uc.queries.GetTask(ctx, taskUUID, withWarnings, identity.UserUUID)
}

// Component возвращает очередь компонента и его последнюю завершенную задачу
func (uc *TaskUseCase) Component(ctx context.Context, componentUUID string) (*service.ComponentActivity, error) {
	if _, err := auth.RequireAuthenticated(ctx); err != nil {
		return nil, err
	}
	if componentUUID == "" {
		return nil, errors.New(errors.ErrValidation, "The 'component' parameter is missing").WithContext(ctx)
	}
	return uc.queries.Current(ctx, componentUUID)
}

// Activity возвращает историю задач. История всех компонентов доступна только администратору.
func (uc *TaskUseCase) Activity(ctx context.Context, filter repository.ActivityFilter) ([]*service.TaskView, error) {
	if filter.ComponentUUID == "" {
		if err := auth.RequireSystemAdmin(ctx); err != nil {
			return nil, err
		}
	} else if _, err := auth.RequireAuthenticated(ctx); err != nil {
		return nil, err
	}

	for _, status := range filter.Statuses {
		if !status.IsTerminal() {
			return nil, errors.New(errors.ErrValidation,
				fmt.Sprintf("Value of parameter 'status' (%s) must be one of: SUCCESS, FAILED, CANCELED", status)).WithContext(ctx)
		}
	}
	if filter.Type != "" && !filter.Type.IsValid() {
		return nil, errors.New(errors.ErrValidation, fmt.Sprintf("Unknown task type '%s'", filter.Type)).WithContext(ctx)
	}
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 100
	}
	return uc.queries.Activity(ctx, filter)
}

// Pending возвращает задачи компонента в очереди
func (uc *TaskUseCase) Pending(ctx context.Context, componentUUID string) ([]*service.TaskView, error) {
	if _, err := auth.RequireAuthenticated(ctx); err != nil {
		return nil, err
	}
	return uc.queries.ListPending(ctx, componentUUID)
}

// DismissWarning скрывает тип предупреждения для вызывающего пользователя в проекте
func (uc *TaskUseCase) DismissWarning(ctx context.Context, projectUUID, messageType string) error {
	identity, err := auth.RequireAuthenticated(ctx)
	if err != nil {
		return err
	}
	if identity.UserUUID == "" {
		return errors.New(errors.ErrUnauthorized, "A user account is required to dismiss messages").WithContext(ctx)
	}
	if projectUUID == "" {
		return errors.New(errors.ErrValidation, "The 'project' parameter is missing").WithContext(ctx)
	}
	return uc.messages.Dismiss(ctx, identity.UserUUID, projectUUID, messageType)
}
