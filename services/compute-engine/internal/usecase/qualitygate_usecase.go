package usecase

import (
	"context"

	"AnalysisPlatform/pkg/logger"
	"AnalysisPlatform/services/compute-engine/internal/auth"
	"AnalysisPlatform/services/compute-engine/internal/qualitygate"
	"AnalysisPlatform/services/compute-engine/internal/service"
)

// QualityGateUseCase управление quality gate с проверкой прав.
// Чтение доступно любому аутентифицированному пользователю, изменение только администратору.
type QualityGateUseCase struct {
	gates  *service.QualityGateService
	logger logger.Logger
}

// NewQualityGateUseCase создает QualityGateUseCase
func NewQualityGateUseCase(gates *service.QualityGateService, logger logger.Logger) *QualityGateUseCase {
	return &QualityGateUseCase{gates: gates, logger: logger}
}

func (uc *QualityGateUseCase) List(ctx context.Context) ([]*qualitygate.QualityGate, error) {
	if _, err := auth.RequireAuthenticated(ctx); err != nil {
		return nil, err
	}
	return uc.gates.ListGates(ctx)
}

func (uc *QualityGateUseCase) Show(ctx context.Context, id int64) (*qualitygate.QualityGate, error) {
	if _, err := auth.RequireAuthenticated(ctx); err != nil {
		return nil, err
	}
	return uc.gates.GetGate(ctx, id)
}

// ShowByName возвращает gate по имени
func (uc *QualityGateUseCase) ShowByName(ctx context.Context, name string) (*qualitygate.QualityGate, error) {
	if _, err := auth.RequireAuthenticated(ctx); err != nil {
		return nil, err
	}
	return uc.gates.GetGateByName(ctx, name)
}

// ForProject возвращает gate, который действует для проекта
func (uc *QualityGateUseCase) ForProject(ctx context.Context, projectUUID string) (*qualitygate.QualityGate, error) {
	if _, err := auth.RequireAuthenticated(ctx); err != nil {
		return nil, err
	}
	return uc.gates.GateForProject(ctx, projectUUID)
}

func (uc *QualityGateUseCase) Create(ctx context.Context, name string) (*qualitygate.QualityGate, error) {
	if err := uc.requireGateAdmin(ctx, "create"); err != nil {
		return nil, err
	}
	return uc.gates.CreateGate(ctx, name)
}

func (uc *QualityGateUseCase) Delete(ctx context.Context, id int64) error {
	if err := uc.requireGateAdmin(ctx, "delete"); err != nil {
		return err
	}
	return uc.gates.DeleteGate(ctx, id)
}

func (uc *QualityGateUseCase) SetAsDefault(ctx context.Context, id int64) error {
	if err := uc.requireGateAdmin(ctx, "set_as_default"); err != nil {
		return err
	}
	return uc.gates.SetDefault(ctx, id)
}

// Select привязывает проект к gate. Достаточно прав администратора проекта.
func (uc *QualityGateUseCase) Select(ctx context.Context, gateID int64, projectUUID string) error {
	if err := auth.RequireComponentAdmin(ctx, projectUUID); err != nil {
		return err
	}
	return uc.gates.AssignProject(ctx, gateID, projectUUID)
}

// Deselect отвязывает проект от gate
func (uc *QualityGateUseCase) Deselect(ctx context.Context, projectUUID string) error {
	if err := auth.RequireComponentAdmin(ctx, projectUUID); err != nil {
		return err
	}
	return uc.gates.UnassignProject(ctx, projectUUID)
}

func (uc *QualityGateUseCase) CreateCondition(ctx context.Context, gateID int64, condition qualitygate.Condition) (qualitygate.Condition, error) {
	if err := uc.requireGateAdmin(ctx, "create_condition"); err != nil {
		return condition, err
	}
	return uc.gates.CreateCondition(ctx, gateID, condition)
}

func (uc *QualityGateUseCase) UpdateCondition(ctx context.Context, condition qualitygate.Condition) (qualitygate.Condition, error) {
	if err := uc.requireGateAdmin(ctx, "update_condition"); err != nil {
		return condition, err
	}
	return uc.gates.UpdateCondition(ctx, condition)
}

func (uc *QualityGateUseCase) DeleteCondition(ctx context.Context, conditionID int64) error {
	if err := uc.requireGateAdmin(ctx, "delete_condition"); err != nil {
		return err
	}
	return uc.gates.DeleteCondition(ctx, conditionID)
}

// Metrics возвращает метрики, на которые можно ставить условия
func (uc *QualityGateUseCase) Metrics(ctx context.Context) ([]qualitygate.Metric, error) {
	if _, err := auth.RequireAuthenticated(ctx); err != nil {
		return nil, err
	}
	return uc.gates.Metrics(), nil
}

func (uc *QualityGateUseCase) requireGateAdmin(ctx context.Context, action string) error {
	if err := auth.RequireSystemAdmin(ctx); err != nil {
		return err
	}
	uc.logger.Info("Quality gate admin action",
		logger.String("action", action),
		logger.String("identity", auth.FromContext(ctx).String()),
		logger.CtxField(ctx),
	)
	return nil
}
