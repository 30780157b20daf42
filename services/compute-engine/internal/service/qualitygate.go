package service

import (
	"context"
	stderrors "errors"
	"strings"

	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/pkg/logger"
	"AnalysisPlatform/pkg/validation"
	"AnalysisPlatform/services/compute-engine/internal/qualitygate"
	"AnalysisPlatform/services/compute-engine/internal/repository"
)

// Ограничение длины имени quality gate
const maxGateNameLength = 100

// QualityGateService управляет quality gate и оценивает по ним результаты анализа
type QualityGateService struct {
	repo      repository.QualityGateRepository
	catalog   qualitygate.MetricCatalog
	validator *qualitygate.ConditionValidator
	evaluator *qualitygate.Evaluator
	fields    *validation.Validator
	logger    logger.Logger
}

// NewQualityGateService создает QualityGateService
func NewQualityGateService(repo repository.QualityGateRepository, catalog qualitygate.MetricCatalog, config qualitygate.EvaluatorConfig, log logger.Logger) *QualityGateService {
	return &QualityGateService{
		repo:      repo,
		catalog:   catalog,
		validator: qualitygate.NewConditionValidator(catalog),
		evaluator: qualitygate.NewEvaluator(config),
		fields:    validation.NewValidator(),
		logger:    log,
	}
}

// CreateGate создает пустой quality gate
func (s *QualityGateService) CreateGate(ctx context.Context, name string) (*qualitygate.QualityGate, error) {
	name = strings.TrimSpace(name)
	if err := s.fields.ValidateRequiredFields(map[string]string{"name": name}); err != nil {
		return nil, err
	}
	if err := s.fields.ValidateStringLength(name, "name", 1, maxGateNameLength); err != nil {
		return nil, err
	}

	gate, err := s.repo.Create(ctx, name)
	if err != nil {
		return nil, wrapRepoErr(ctx, err, "failed to create quality gate")
	}

	s.logger.Info("Quality gate created",
		logger.Int64("gate_id", gate.ID),
		logger.String("name", gate.Name),
		logger.CtxField(ctx),
	)
	return gate, nil
}

// GetGate возвращает quality gate с условиями
func (s *QualityGateService) GetGate(ctx context.Context, id int64) (*qualitygate.QualityGate, error) {
	gate, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, wrapRepoErr(ctx, err, "failed to get quality gate")
	}
	return gate, nil
}

// GetGateByName возвращает quality gate по имени
func (s *QualityGateService) GetGateByName(ctx context.Context, name string) (*qualitygate.QualityGate, error) {
	gate, err := s.repo.GetByName(ctx, strings.TrimSpace(name))
	if err != nil {
		return nil, wrapRepoErr(ctx, err, "failed to get quality gate")
	}
	return gate, nil
}

// ListGates возвращает все quality gate
func (s *QualityGateService) ListGates(ctx context.Context) ([]*qualitygate.QualityGate, error) {
	gates, err := s.repo.List(ctx)
	if err != nil {
		return nil, wrapRepoErr(ctx, err, "failed to list quality gates")
	}
	return gates, nil
}

// DeleteGate удаляет quality gate. Gate по умолчанию удалить нельзя.
func (s *QualityGateService) DeleteGate(ctx context.Context, id int64) error {
	gate, err := s.GetGate(ctx, id)
	if err != nil {
		return err
	}
	if gate.IsDefault {
		return errors.New(errors.ErrValidation, "The default quality gate cannot be removed").WithContext(ctx)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return wrapRepoErr(ctx, err, "failed to delete quality gate")
	}
	s.logger.Info("Quality gate deleted", logger.Int64("gate_id", id), logger.CtxField(ctx))
	return nil
}

// SetDefault делает gate действующим для проектов без явной привязки
func (s *QualityGateService) SetDefault(ctx context.Context, id int64) error {
	if err := s.repo.SetDefault(ctx, id); err != nil {
		return wrapRepoErr(ctx, err, "failed to set default quality gate")
	}
	s.logger.Info("Default quality gate set", logger.Int64("gate_id", id), logger.CtxField(ctx))
	return nil
}

// AssignProject привязывает проект к gate
func (s *QualityGateService) AssignProject(ctx context.Context, gateID int64, projectUUID string) error {
	if err := s.fields.ValidateRequiredFields(map[string]string{"projectId": projectUUID}); err != nil {
		return err
	}
	if err := s.repo.AssignProject(ctx, projectUUID, gateID); err != nil {
		return wrapRepoErr(ctx, err, "failed to assign project")
	}
	return nil
}

// UnassignProject отвязывает проект, после чего для него действует gate по умолчанию
func (s *QualityGateService) UnassignProject(ctx context.Context, projectUUID string) error {
	if err := s.repo.UnassignProject(ctx, projectUUID); err != nil {
		return wrapRepoErr(ctx, err, "failed to unassign project")
	}
	return nil
}

// GateForProject возвращает gate проекта или gate по умолчанию.
// Возвращает NOT_FOUND, если нет ни того, ни другого.
func (s *QualityGateService) GateForProject(ctx context.Context, projectUUID string) (*qualitygate.QualityGate, error) {
	gate, err := s.repo.GetForProject(ctx, projectUUID)
	if err == nil {
		return gate, nil
	}
	if !errors.IsCode(err, errors.ErrNotFound) {
		return nil, wrapRepoErr(ctx, err, "failed to get project quality gate")
	}

	gate, err = s.repo.GetDefault(ctx)
	if err != nil {
		return nil, wrapRepoErr(ctx, err, "failed to get default quality gate")
	}
	return gate, nil
}

// CreateCondition проверяет условие и добавляет его в gate.
// Все нарушения возвращаются одной ошибкой VALIDATION_ERROR.
func (s *QualityGateService) CreateCondition(ctx context.Context, gateID int64, condition qualitygate.Condition) (qualitygate.Condition, error) {
	gate, err := s.GetGate(ctx, gateID)
	if err != nil {
		return condition, err
	}

	validated, err := s.validator.Validate(condition, gate.Conditions)
	if err != nil {
		return condition, withCtx(ctx, err)
	}

	created, err := s.repo.InsertCondition(ctx, gateID, validated)
	if err != nil {
		return condition, wrapRepoErr(ctx, err, "failed to create condition")
	}

	s.logger.Info("Quality gate condition created",
		logger.Int64("gate_id", gateID),
		logger.Int64("condition_id", created.ID),
		logger.String("metric", created.MetricKey),
		logger.CtxField(ctx),
	)
	return created, nil
}

// UpdateCondition заменяет условие с теми же проверками, что и при создании
func (s *QualityGateService) UpdateCondition(ctx context.Context, condition qualitygate.Condition) (qualitygate.Condition, error) {
	_, gateID, err := s.repo.GetCondition(ctx, condition.ID)
	if err != nil {
		return condition, wrapRepoErr(ctx, err, "failed to get condition")
	}
	gate, err := s.GetGate(ctx, gateID)
	if err != nil {
		return condition, err
	}

	others := make([]qualitygate.Condition, 0, len(gate.Conditions))
	for _, c := range gate.Conditions {
		if c.ID != condition.ID {
			others = append(others, c)
		}
	}

	validated, err := s.validator.Validate(condition, others)
	if err != nil {
		return condition, withCtx(ctx, err)
	}
	if err := s.repo.UpdateCondition(ctx, validated); err != nil {
		return condition, wrapRepoErr(ctx, err, "failed to update condition")
	}

	s.logger.Info("Quality gate condition updated",
		logger.Int64("gate_id", gateID),
		logger.Int64("condition_id", validated.ID),
		logger.CtxField(ctx),
	)
	return validated, nil
}

// DeleteCondition удаляет условие
func (s *QualityGateService) DeleteCondition(ctx context.Context, conditionID int64) error {
	if err := s.repo.DeleteCondition(ctx, conditionID); err != nil {
		return wrapRepoErr(ctx, err, "failed to delete condition")
	}
	s.logger.Info("Quality gate condition deleted", logger.Int64("condition_id", conditionID), logger.CtxField(ctx))
	return nil
}

// Evaluate оценивает измерения анализа проекта по его gate.
// Возвращает nil без ошибки, если для проекта не действует ни один gate.
func (s *QualityGateService) Evaluate(ctx context.Context, projectUUID string, measures qualitygate.MeasureLookup) (*qualitygate.EvaluatedQualityGate, error) {
	gate, err := s.GateForProject(ctx, projectUUID)
	if err != nil {
		if errors.IsCode(err, errors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	evaluated, err := s.evaluator.Evaluate(*gate, measures)
	if err != nil {
		return nil, withCtx(ctx, err)
	}
	return evaluated, nil
}

// Metrics возвращает метрики каталога, на которые можно ставить условия
func (s *QualityGateService) Metrics() []qualitygate.Metric {
	return s.catalog.Gateable()
}

// wrapRepoErr сохраняет код ошибок приложения и оборачивает остальные в INTERNAL_ERROR
func wrapRepoErr(ctx context.Context, err error, message string) error {
	var appErr *errors.Error
	if stderrors.As(err, &appErr) {
		return appErr.WithContext(ctx)
	}
	return errors.Wrap(err, errors.ErrInternal, message).WithContext(ctx)
}

func withCtx(ctx context.Context, err error) error {
	var appErr *errors.Error
	if stderrors.As(err, &appErr) {
		return appErr.WithContext(ctx)
	}
	return err
}
