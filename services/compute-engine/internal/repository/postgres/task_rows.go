package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"AnalysisPlatform/services/compute-engine/internal/domain"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func insertSubmission(ctx context.Context, tx execer, submission *domain.TaskSubmission, task *domain.Task) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO ce_queue (uuid, task_type, component_uuid, entity_uuid, submitter_uuid, status,
			execution_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $7)`,
		task.UUID,
		string(task.Type),
		nullString(task.ComponentUUID()),
		nullString(task.EntityUUID()),
		nullString(task.SubmitterUUID),
		string(task.Status),
		task.CreatedAt,
	)
	if err != nil {
		return err
	}

	for i, ch := range task.Characteristics {
		if _, err := tx.Exec(ctx, `
			INSERT INTO ce_task_characteristics (task_uuid, kee, text_value, position)
			VALUES ($1, $2, $3, $4)`, task.UUID, ch.Key, ch.Value, i); err != nil {
			return err
		}
	}

	if submission.Input != nil {
		if _, err := tx.Exec(ctx, `
			INSERT INTO ce_task_input (task_uuid, input_data, created_at)
			VALUES ($1, $2, $3)`, task.UUID, submission.Input, task.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

// lockAndCheckEntity сериализует постановку задач одного проекта до конца транзакции
func lockAndCheckEntity(ctx context.Context, tx execer, entityUUID string) (bool, error) {
	if entityUUID == "" {
		return false, nil
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, entityUUID); err != nil {
		return false, err
	}
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ce_queue WHERE entity_uuid = $1)`, entityUUID).Scan(&exists)
	return exists, err
}

// lockAndCheckInProgress сериализует захват задач одного проекта и проверяет,
// есть ли у проекта другая задача в IN_PROGRESS, видимая после взятия блокировки
func lockAndCheckInProgress(ctx context.Context, tx execer, entityUUID, taskUUID string) (bool, error) {
	if entityUUID == "" {
		return false, nil
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, entityUUID); err != nil {
		return false, err
	}
	var busy bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM ce_queue
			WHERE entity_uuid = $1 AND status = 'IN_PROGRESS' AND uuid <> $2)`,
		entityUUID, taskUUID).Scan(&busy)
	return busy, err
}

func insertActivity(ctx context.Context, tx execer, task *domain.Task) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO ce_activity (uuid, task_type, component_uuid, entity_uuid, submitter_uuid, status,
			worker_uuid, execution_count, created_at, updated_at, started_at, analysis_uuid,
			error_message, error_stacktrace, error_type, executed_at, execution_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		task.UUID,
		string(task.Type),
		nullString(task.ComponentUUID()),
		nullString(task.EntityUUID()),
		nullString(task.SubmitterUUID),
		string(task.Status),
		nullString(task.WorkerUUID),
		task.ExecutionCount,
		task.CreatedAt,
		task.UpdatedAt,
		task.StartedAt,
		nullString(task.AnalysisUUID),
		nullString(task.ErrorMessage),
		nullString(task.ErrorStacktrace),
		nullString(task.ErrorType),
		task.ExecutedAt,
		task.ExecutionTimeMs,
	)
	return err
}

func scanQueueTask(row pgx.Row) (*domain.Task, error) {
	var task domain.Task
	var taskType, status string
	var componentUUID, entityUUID, submitter, worker *string

	err := row.Scan(
		&task.UUID,
		&taskType,
		&componentUUID,
		&entityUUID,
		&submitter,
		&status,
		&worker,
		&task.ExecutionCount,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.StartedAt,
	)
	if err != nil {
		return nil, err
	}

	fillTask(&task, taskType, status, componentUUID, entityUUID, submitter, worker)
	return &task, nil
}

func scanActivityTask(row pgx.Row) (*domain.Task, error) {
	var task domain.Task
	var taskType, status string
	var componentUUID, entityUUID, submitter, worker *string
	var analysis, errorMessage, stacktrace, errorType *string

	err := row.Scan(
		&task.UUID,
		&taskType,
		&componentUUID,
		&entityUUID,
		&submitter,
		&status,
		&worker,
		&task.ExecutionCount,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.StartedAt,
		&analysis,
		&errorMessage,
		&stacktrace,
		&errorType,
		&task.ExecutedAt,
		&task.ExecutionTimeMs,
	)
	if err != nil {
		return nil, err
	}

	fillTask(&task, taskType, status, componentUUID, entityUUID, submitter, worker)
	task.AnalysisUUID = derefString(analysis)
	task.ErrorMessage = derefString(errorMessage)
	task.ErrorStacktrace = derefString(stacktrace)
	task.ErrorType = derefString(errorType)
	return &task, nil
}

func fillTask(task *domain.Task, taskType, status string, componentUUID, entityUUID, submitter, worker *string) {
	task.Type = domain.TaskType(taskType)
	task.Status = domain.TaskStatus(status)
	if componentUUID != nil {
		task.Component = domain.NewComponent(*componentUUID, derefString(entityUUID))
	}
	task.SubmitterUUID = derefString(submitter)
	task.WorkerUUID = derefString(worker)
}

// loadCharacteristics заполняет характеристики задач одним запросом
func loadCharacteristics(ctx context.Context, db queryer, tasks ...*domain.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	byUUID := make(map[string]*domain.Task, len(tasks))
	uuids := make([]string, 0, len(tasks))
	for _, task := range tasks {
		byUUID[task.UUID] = task
		uuids = append(uuids, task.UUID)
	}

	rows, err := db.Query(ctx, `
		SELECT task_uuid, kee, text_value FROM ce_task_characteristics
		WHERE task_uuid = ANY($1)
		ORDER BY task_uuid, position`, uuids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var taskUUID, key string
		var value *string
		if err := rows.Scan(&taskUUID, &key, &value); err != nil {
			return err
		}
		if task, ok := byUUID[taskUUID]; ok {
			task.Characteristics = append(task.Characteristics, domain.Characteristic{Key: key, Value: derefString(value)})
		}
	}
	return rows.Err()
}
