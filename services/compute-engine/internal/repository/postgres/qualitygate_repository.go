package postgres

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"AnalysisPlatform/pkg/database"
	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/services/compute-engine/internal/qualitygate"
	"AnalysisPlatform/services/compute-engine/internal/repository"
)

const uniqueViolation = "23505"

const conditionColumns = `id, qgate_id, metric_key, value_kind, operator, warning_threshold, error_threshold, on_leak_period`

// QualityGateRepository реализация хранилища quality gate в PostgreSQL
type QualityGateRepository struct {
	db DB
}

// NewQualityGateRepository создает новый экземпляр QualityGateRepository
func NewQualityGateRepository(db DB) repository.QualityGateRepository {
	return &QualityGateRepository{db: db}
}

// Create создает пустой gate
func (r *QualityGateRepository) Create(ctx context.Context, name string) (*qualitygate.QualityGate, error) {
	gate := &qualitygate.QualityGate{Name: name, Conditions: []qualitygate.Condition{}}
	err := r.db.QueryRow(ctx, `INSERT INTO quality_gates (name) VALUES ($1) RETURNING id`, name).Scan(&gate.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errors.New(errors.ErrConflict, "Name has already been taken").
				WithDetails(fmt.Sprintf("name: %s", name)).
				WithContext(ctx)
		}
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to create quality gate").WithContext(ctx)
	}
	return gate, nil
}

// Get возвращает gate с условиями
func (r *QualityGateRepository) Get(ctx context.Context, id int64) (*qualitygate.QualityGate, error) {
	return r.getOne(ctx, `SELECT id, name, is_default FROM quality_gates WHERE id = $1`, fmt.Sprintf("id: %d", id), id)
}

// GetByName возвращает gate по имени
func (r *QualityGateRepository) GetByName(ctx context.Context, name string) (*qualitygate.QualityGate, error) {
	return r.getOne(ctx, `SELECT id, name, is_default FROM quality_gates WHERE name = $1`, fmt.Sprintf("name: %s", name), name)
}

// GetDefault возвращает gate по умолчанию
func (r *QualityGateRepository) GetDefault(ctx context.Context) (*qualitygate.QualityGate, error) {
	return r.getOne(ctx, `SELECT id, name, is_default FROM quality_gates WHERE is_default`, "default")
}

// GetForProject возвращает gate, явно привязанный к проекту
func (r *QualityGateRepository) GetForProject(ctx context.Context, projectUUID string) (*qualitygate.QualityGate, error) {
	return r.getOne(ctx, `
		SELECT g.id, g.name, g.is_default FROM quality_gates g
		JOIN project_qgates pq ON pq.qgate_id = g.id
		WHERE pq.project_uuid = $1`, fmt.Sprintf("project_uuid: %s", projectUUID), projectUUID)
}

// List возвращает все gate, отсортированные по имени
func (r *QualityGateRepository) List(ctx context.Context) ([]*qualitygate.QualityGate, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, is_default FROM quality_gates ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to list quality gates").WithContext(ctx)
	}
	gates, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*qualitygate.QualityGate, error) {
		return scanGate(row)
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to scan quality gates").WithContext(ctx)
	}
	if err := r.loadConditions(ctx, gates...); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to load conditions").WithContext(ctx)
	}
	return gates, nil
}

// Delete удаляет gate вместе с условиями и привязками
func (r *QualityGateRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM quality_gates WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to delete quality gate").WithContext(ctx)
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.ErrNotFound, "quality gate not found").
			WithDetails(fmt.Sprintf("id: %d", id)).
			WithContext(ctx)
	}
	return nil
}

// SetDefault делает gate единственным gate по умолчанию
func (r *QualityGateRepository) SetDefault(ctx context.Context, id int64) error {
	var found bool
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE quality_gates SET is_default = FALSE WHERE is_default AND id <> $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `UPDATE quality_gates SET is_default = TRUE WHERE id = $1`, id)
		if err != nil {
			return err
		}
		found = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to set default quality gate").WithContext(ctx)
	}
	if !found {
		return errors.New(errors.ErrNotFound, "quality gate not found").
			WithDetails(fmt.Sprintf("id: %d", id)).
			WithContext(ctx)
	}
	return nil
}

// AssignProject привязывает проект к gate
func (r *QualityGateRepository) AssignProject(ctx context.Context, projectUUID string, gateID int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO project_qgates (project_uuid, qgate_id) VALUES ($1, $2)
		ON CONFLICT (project_uuid) DO UPDATE SET qgate_id = EXCLUDED.qgate_id`, projectUUID, gateID)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to assign project to quality gate").
			WithDetails(fmt.Sprintf("project_uuid: %s, gate_id: %d", projectUUID, gateID)).
			WithContext(ctx)
	}
	return nil
}

// UnassignProject отвязывает проект
func (r *QualityGateRepository) UnassignProject(ctx context.Context, projectUUID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM project_qgates WHERE project_uuid = $1`, projectUUID); err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to unassign project").WithContext(ctx)
	}
	return nil
}

// InsertCondition добавляет условие в gate
func (r *QualityGateRepository) InsertCondition(ctx context.Context, gateID int64, c qualitygate.Condition) (qualitygate.Condition, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO quality_gate_conditions (qgate_id, metric_key, value_kind, operator,
			warning_threshold, error_threshold, on_leak_period)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		gateID, c.MetricKey, string(c.Kind), string(c.Operator),
		nullString(c.WarningThreshold), nullString(c.ErrorThreshold), c.OnLeakPeriod).Scan(&c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return c, errors.New(errors.ErrConflict, fmt.Sprintf("Condition on metric '%s' already exists.", c.MetricKey)).
				WithContext(ctx)
		}
		return c, errors.Wrap(err, errors.ErrInternal, "failed to insert condition").
			WithDetails(fmt.Sprintf("gate_id: %d, metric: %s", gateID, c.MetricKey)).
			WithContext(ctx)
	}
	return c, nil
}

// UpdateCondition обновляет условие
func (r *QualityGateRepository) UpdateCondition(ctx context.Context, c qualitygate.Condition) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE quality_gate_conditions
		SET metric_key = $2, value_kind = $3, operator = $4, warning_threshold = $5,
			error_threshold = $6, on_leak_period = $7
		WHERE id = $1`,
		c.ID, c.MetricKey, string(c.Kind), string(c.Operator),
		nullString(c.WarningThreshold), nullString(c.ErrorThreshold), c.OnLeakPeriod)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.New(errors.ErrConflict, fmt.Sprintf("Condition on metric '%s' already exists.", c.MetricKey)).
				WithContext(ctx)
		}
		return errors.Wrap(err, errors.ErrInternal, "failed to update condition").WithContext(ctx)
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.ErrNotFound, "condition not found").
			WithDetails(fmt.Sprintf("id: %d", c.ID)).
			WithContext(ctx)
	}
	return nil
}

// DeleteCondition удаляет условие
func (r *QualityGateRepository) DeleteCondition(ctx context.Context, conditionID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM quality_gate_conditions WHERE id = $1`, conditionID)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to delete condition").WithContext(ctx)
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.ErrNotFound, "condition not found").
			WithDetails(fmt.Sprintf("id: %d", conditionID)).
			WithContext(ctx)
	}
	return nil
}

// GetCondition возвращает условие и id его gate
func (r *QualityGateRepository) GetCondition(ctx context.Context, conditionID int64) (qualitygate.Condition, int64, error) {
	c, gateID, err := scanCondition(r.db.QueryRow(ctx,
		`SELECT `+conditionColumns+` FROM quality_gate_conditions WHERE id = $1`, conditionID))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return c, 0, errors.New(errors.ErrNotFound, "condition not found").
				WithDetails(fmt.Sprintf("id: %d", conditionID)).
				WithContext(ctx)
		}
		return c, 0, errors.Wrap(err, errors.ErrInternal, "failed to get condition").WithContext(ctx)
	}
	return c, gateID, nil
}

func (r *QualityGateRepository) getOne(ctx context.Context, query, details string, args ...any) (*qualitygate.QualityGate, error) {
	gate, err := scanGate(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New(errors.ErrNotFound, "quality gate not found").
				WithDetails(details).
				WithContext(ctx)
		}
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to get quality gate").
			WithDetails(details).
			WithContext(ctx)
	}
	if err := r.loadConditions(ctx, gate); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to load conditions").WithContext(ctx)
	}
	return gate, nil
}

func (r *QualityGateRepository) loadConditions(ctx context.Context, gates ...*qualitygate.QualityGate) error {
	if len(gates) == 0 {
		return nil
	}
	byID := make(map[int64]*qualitygate.QualityGate, len(gates))
	ids := make([]int64, 0, len(gates))
	for _, g := range gates {
		g.Conditions = []qualitygate.Condition{}
		byID[g.ID] = g
		ids = append(ids, g.ID)
	}

	rows, err := r.db.Query(ctx, `SELECT `+conditionColumns+` FROM quality_gate_conditions
		WHERE qgate_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		c, gateID, err := scanCondition(rows)
		if err != nil {
			return err
		}
		if g, ok := byID[gateID]; ok {
			g.Conditions = append(g.Conditions, c)
		}
	}
	return rows.Err()
}

func scanGate(row pgx.Row) (*qualitygate.QualityGate, error) {
	var g qualitygate.QualityGate
	if err := row.Scan(&g.ID, &g.Name, &g.IsDefault); err != nil {
		return nil, err
	}
	return &g, nil
}

func scanCondition(row pgx.Row) (qualitygate.Condition, int64, error) {
	var c qualitygate.Condition
	var gateID int64
	var kind, operator string
	var warning, errorAt *string

	if err := row.Scan(&c.ID, &gateID, &c.MetricKey, &kind, &operator, &warning, &errorAt, &c.OnLeakPeriod); err != nil {
		return c, 0, err
	}
	c.Kind = qualitygate.ValueKind(kind)
	c.Operator = qualitygate.Operator(operator)
	c.WarningThreshold = derefString(warning)
	c.ErrorThreshold = derefString(errorAt)
	return c, gateID, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
