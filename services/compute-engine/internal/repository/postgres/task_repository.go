package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"AnalysisPlatform/pkg/database"
	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/services/compute-engine/internal/domain"
	"AnalysisPlatform/services/compute-engine/internal/repository"
)

const queueColumns = `uuid, task_type, component_uuid, entity_uuid, submitter_uuid, status,
	worker_uuid, execution_count, created_at, updated_at, started_at`

const activityColumns = queueColumns + `, analysis_uuid, error_message, error_stacktrace, error_type,
	executed_at, execution_time_ms`

// claimQuery выбирает самую старую задачу в PENDING, которая ни разу не запускалась,
// у проекта которой нет задачи в работе, при условии что обработка не приостановлена.
// SKIP LOCKED гарантирует, что конкурирующие воркеры получат разные задачи.
const claimQuery = `
	UPDATE ce_queue q
	SET status = 'IN_PROGRESS',
		worker_uuid = $1,
		execution_count = q.execution_count + 1,
		started_at = $2,
		updated_at = $2
	WHERE q.uuid = (
		SELECT c.uuid FROM ce_queue c
		WHERE c.status = 'PENDING'
			AND c.execution_count = 0
			AND NOT EXISTS (
				SELECT 1 FROM internal_properties p
				WHERE p.kee = $3 AND p.text_value = 'true')
			AND (c.entity_uuid IS NULL OR NOT EXISTS (
				SELECT 1 FROM ce_queue r
				WHERE r.status = 'IN_PROGRESS' AND r.entity_uuid = c.entity_uuid))
		ORDER BY c.created_at, c.uuid
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	)
	AND q.status = 'PENDING'
	RETURNING ` + queueColumns

// claimAttempts сколько раз Claim ищет задачу, если выбранная оказалась у занятого проекта
const claimAttempts = 3

var errEntityBusy = stderrors.New("entity already has a task in progress")

// TaskRepository реализация очереди и истории задач в PostgreSQL
type TaskRepository struct {
	db DB
}

var (
	_ repository.QueueRepository         = (*TaskRepository)(nil)
	_ repository.TaskLifecycleRepository = (*TaskRepository)(nil)
	_ repository.ActivityRepository      = (*TaskRepository)(nil)
)

// NewTaskRepository создает новый экземпляр TaskRepository
func NewTaskRepository(db DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Insert ставит задачу в очередь
func (r *TaskRepository) Insert(ctx context.Context, submission *domain.TaskSubmission, now time.Time) (*domain.Task, error) {
	task := submission.ToTask(now)

	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return insertSubmission(ctx, tx, submission, task)
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to insert task").
			WithDetails(fmt.Sprintf("task_uuid: %s, type: %s", task.UUID, task.Type)).
			WithContext(ctx)
	}

	return task, nil
}

// InsertIfNoTaskForEntity ставит задачу, только если у проекта нет задач в очереди
func (r *TaskRepository) InsertIfNoTaskForEntity(ctx context.Context, submission *domain.TaskSubmission, now time.Time) (*domain.Task, error) {
	task := submission.ToTask(now)

	var exists bool
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		exists, err = lockAndCheckEntity(ctx, tx, task.EntityUUID())
		if err != nil || exists {
			return err
		}
		return insertSubmission(ctx, tx, submission, task)
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to insert task").
			WithDetails(fmt.Sprintf("task_uuid: %s, entity_uuid: %s", task.UUID, task.EntityUUID())).
			WithContext(ctx)
	}
	if exists {
		return nil, errors.New(errors.ErrConflict, "a task is already queued for this project").
			WithDetails(fmt.Sprintf("entity_uuid: %s", task.EntityUUID())).
			WithContext(ctx)
	}

	return task, nil
}

// InsertMany ставит задачи одной транзакцией
func (r *TaskRepository) InsertMany(ctx context.Context, submissions []*domain.TaskSubmission, unique bool, now time.Time) ([]*domain.Task, error) {
	var tasks []*domain.Task

	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		tasks = tasks[:0]
		seen := make(map[string]struct{})
		for _, submission := range submissions {
			task := submission.ToTask(now)
			if unique && task.EntityUUID() != "" {
				if _, ok := seen[task.EntityUUID()]; ok {
					continue
				}
				exists, err := lockAndCheckEntity(ctx, tx, task.EntityUUID())
				if err != nil {
					return err
				}
				if exists {
					continue
				}
				seen[task.EntityUUID()] = struct{}{}
			}
			if err := insertSubmission(ctx, tx, submission, task); err != nil {
				return err
			}
			tasks = append(tasks, task)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to insert tasks").
			WithDetails(fmt.Sprintf("count: %d", len(submissions))).
			WithContext(ctx)
	}

	return tasks, nil
}

// Get возвращает задачу из очереди
func (r *TaskRepository) Get(ctx context.Context, taskUUID string) (*domain.Task, error) {
	query := `SELECT ` + queueColumns + ` FROM ce_queue WHERE uuid = $1`

	task, err := scanQueueTask(r.db.QueryRow(ctx, query, taskUUID))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New(errors.ErrNotFound, "task not found in queue").
				WithDetails(fmt.Sprintf("task_uuid: %s", taskUUID)).
				WithContext(ctx)
		}
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to get task").
			WithDetails(fmt.Sprintf("task_uuid: %s", taskUUID)).
			WithContext(ctx)
	}

	if err := loadCharacteristics(ctx, r.db, task); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to load task characteristics").WithContext(ctx)
	}
	return task, nil
}

// ListByComponent возвращает задачи очереди компонента или проекта
func (r *TaskRepository) ListByComponent(ctx context.Context, componentUUID string) ([]*domain.Task, error) {
	query := `SELECT ` + queueColumns + ` FROM ce_queue
		WHERE component_uuid = $1 OR entity_uuid = $1
		ORDER BY created_at, uuid`

	return r.queryQueue(ctx, "failed to list queue for component", query, componentUUID)
}

// ListInProgress возвращает все задачи в работе
func (r *TaskRepository) ListInProgress(ctx context.Context) ([]*domain.Task, error) {
	query := `SELECT ` + queueColumns + ` FROM ce_queue WHERE status = 'IN_PROGRESS' ORDER BY started_at`

	return r.queryQueue(ctx, "failed to list tasks in progress", query)
}

// Claim атомарно отдает воркеру самую старую доступную задачу
func (r *TaskRepository) Claim(ctx context.Context, workerUUID string, now time.Time) (*domain.Task, error) {
	for attempt := 0; attempt < claimAttempts; attempt++ {
		task, err := r.claimOnce(ctx, workerUUID, now)
		if stderrors.Is(err, errEntityBusy) {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrInternal, "failed to claim task").
				WithDetails(fmt.Sprintf("worker_uuid: %s", workerUUID)).
				WithContext(ctx)
		}
		if task == nil {
			return nil, nil
		}

		if err := loadCharacteristics(ctx, r.db, task); err != nil {
			return nil, errors.Wrap(err, errors.ErrInternal, "failed to load task characteristics").WithContext(ctx)
		}
		return task, nil
	}
	return nil, nil
}

// claimOnce переводит задачу в IN_PROGRESS и под advisory-блокировкой проекта
// перепроверяет, что другой задачи проекта в работе нет. Иначе транзакция откатывается.
func (r *TaskRepository) claimOnce(ctx context.Context, workerUUID string, now time.Time) (*domain.Task, error) {
	var task *domain.Task
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		claimed, err := scanQueueTask(tx.QueryRow(ctx, claimQuery, workerUUID, now, repository.PropertyPauseWorkers))
		if err != nil {
			if stderrors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}

		busy, err := lockAndCheckInProgress(ctx, tx, claimed.EntityUUID(), claimed.UUID)
		if err != nil {
			return err
		}
		if busy {
			return errEntityBusy
		}
		task = claimed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// CountByStatus возвращает количество задач очереди по статусам
func (r *TaskRepository) CountByStatus(ctx context.Context) (map[domain.TaskStatus]int, error) {
	rows, err := r.db.Query(ctx, `SELECT status, count(*) FROM ce_queue GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to count queue").WithContext(ctx)
	}
	defer rows.Close()

	counts := map[domain.TaskStatus]int{
		domain.TaskStatusPending:    0,
		domain.TaskStatusInProgress: 0,
	}
	for rows.Next() {
		var status domain.TaskStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(err, errors.ErrInternal, "failed to scan queue count").WithContext(ctx)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to count queue").WithContext(ctx)
	}
	return counts, nil
}

// OldestPendingCreatedAt возвращает время постановки самой старой задачи в PENDING
func (r *TaskRepository) OldestPendingCreatedAt(ctx context.Context) (*time.Time, error) {
	var oldest *time.Time
	err := r.db.QueryRow(ctx, `SELECT min(created_at) FROM ce_queue WHERE status = 'PENDING'`).Scan(&oldest)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to get oldest pending task").WithContext(ctx)
	}
	return oldest, nil
}

// ResetForWorker возвращает задачи воркера в PENDING
func (r *TaskRepository) ResetForWorker(ctx context.Context, workerUUID string, now time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE ce_queue
		SET status = 'PENDING', worker_uuid = NULL, started_at = NULL, updated_at = $2
		WHERE status = 'IN_PROGRESS' AND worker_uuid = $1`, workerUUID, now)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrInternal, "failed to reset worker tasks").
			WithDetails(fmt.Sprintf("worker_uuid: %s", workerUUID)).
			WithContext(ctx)
	}
	return int(tag.RowsAffected()), nil
}

// ResetUnknownWorkers возвращает в PENDING задачи воркеров, которых нет в списке
func (r *TaskRepository) ResetUnknownWorkers(ctx context.Context, knownWorkers []string, now time.Time) (int, error) {
	if knownWorkers == nil {
		knownWorkers = []string{}
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE ce_queue
		SET status = 'PENDING', worker_uuid = NULL, started_at = NULL, updated_at = $2
		WHERE status = 'IN_PROGRESS'
			AND (worker_uuid IS NULL OR NOT (worker_uuid = ANY($1)))`, knownWorkers, now)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrInternal, "failed to reset tasks of unknown workers").WithContext(ctx)
	}
	return int(tag.RowsAffected()), nil
}

// GetInput возвращает входные данные задачи
func (r *TaskRepository) GetInput(ctx context.Context, taskUUID string) ([]byte, error) {
	var data []byte
	err := r.db.QueryRow(ctx, `SELECT input_data FROM ce_task_input WHERE task_uuid = $1`, taskUUID).Scan(&data)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New(errors.ErrNotFound, "task input not found").
				WithDetails(fmt.Sprintf("task_uuid: %s", taskUUID)).
				WithContext(ctx)
		}
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to get task input").WithContext(ctx)
	}
	return data, nil
}

// Finish переносит задачу воркера из очереди в историю
func (r *TaskRepository) Finish(ctx context.Context, task *domain.Task) error {
	var owned bool
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM ce_queue WHERE uuid = $1 AND status = 'IN_PROGRESS' AND worker_uuid = $2`,
			task.UUID, task.WorkerUUID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		owned = true
		if err := insertActivity(ctx, tx, task); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `DELETE FROM ce_task_input WHERE task_uuid = $1`, task.UUID)
		return err
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to finish task").
			WithDetails(fmt.Sprintf("task_uuid: %s, status: %s", task.UUID, task.Status)).
			WithContext(ctx)
	}
	if !owned {
		return errors.New(errors.ErrConflict, "task is no longer in progress for this worker").
			WithDetails(fmt.Sprintf("task_uuid: %s, worker_uuid: %s", task.UUID, task.WorkerUUID)).
			WithContext(ctx)
	}
	return nil
}

// CancelPending отменяет задачу в PENDING
func (r *TaskRepository) CancelPending(ctx context.Context, taskUUID string, now time.Time) (*domain.Task, error) {
	tasks, err := r.cancelWhere(ctx, now, `uuid = $1 AND status = 'PENDING'`, taskUUID)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return tasks[0], nil
}

// CancelAllPending отменяет все задачи в PENDING
func (r *TaskRepository) CancelAllPending(ctx context.Context, now time.Time) (int, error) {
	tasks, err := r.cancelWhere(ctx, now, `status = 'PENDING'`)
	return len(tasks), err
}

// CancelWornOut отменяет задачи в PENDING, которые уже запускались
func (r *TaskRepository) CancelWornOut(ctx context.Context, now time.Time) (int, error) {
	tasks, err := r.cancelWhere(ctx, now, `status = 'PENDING' AND execution_count >= 1`)
	return len(tasks), err
}

func (r *TaskRepository) cancelWhere(ctx context.Context, now time.Time, where string, args ...any) ([]*domain.Task, error) {
	var canceled []*domain.Task

	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `DELETE FROM ce_queue WHERE `+where+` RETURNING `+queueColumns, args...)
		if err != nil {
			return err
		}
		canceled, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Task, error) {
			return scanQueueTask(row)
		})
		if err != nil {
			return err
		}
		if len(canceled) == 0 {
			return nil
		}
		if err := loadCharacteristics(ctx, tx, canceled...); err != nil {
			return err
		}

		uuids := make([]string, 0, len(canceled))
		for _, task := range canceled {
			task.Cancel(now)
			if err := insertActivity(ctx, tx, task); err != nil {
				return err
			}
			uuids = append(uuids, task.UUID)
		}
		_, err = tx.Exec(ctx, `DELETE FROM ce_task_input WHERE task_uuid = ANY($1)`, uuids)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to cancel tasks").
			WithDetails(fmt.Sprintf("where: %s", where)).
			WithContext(ctx)
	}
	return canceled, nil
}

// GetActivity возвращает задачу из истории
func (r *TaskRepository) GetActivity(ctx context.Context, taskUUID string) (*domain.Task, error) {
	query := `SELECT ` + activityColumns + ` FROM ce_activity WHERE uuid = $1`

	task, err := scanActivityTask(r.db.QueryRow(ctx, query, taskUUID))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New(errors.ErrNotFound, "task not found").
				WithDetails(fmt.Sprintf("task_uuid: %s", taskUUID)).
				WithContext(ctx)
		}
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to get task activity").WithContext(ctx)
	}

	if err := loadCharacteristics(ctx, r.db, task); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to load task characteristics").WithContext(ctx)
	}
	return task, nil
}

// LastForComponent возвращает последнюю завершенную задачу компонента
func (r *TaskRepository) LastForComponent(ctx context.Context, componentUUID string) (*domain.Task, error) {
	tasks, err := r.List(ctx, repository.ActivityFilter{ComponentUUID: componentUUID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return tasks[0], nil
}

// List возвращает историю по фильтру, новые задачи первыми
func (r *TaskRepository) List(ctx context.Context, filter repository.ActivityFilter) ([]*domain.Task, error) {
	var conditions []string
	var args []any

	if filter.ComponentUUID != "" {
		args = append(args, filter.ComponentUUID)
		conditions = append(conditions, fmt.Sprintf("component_uuid = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		conditions = append(conditions, fmt.Sprintf("task_type = $%d", len(args)))
	}

	query := `SELECT ` + activityColumns + ` FROM ce_activity`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY executed_at DESC, created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to list task activity").WithContext(ctx)
	}
	tasks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Task, error) {
		return scanActivityTask(row)
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to scan task activity").WithContext(ctx)
	}

	if err := loadCharacteristics(ctx, r.db, tasks...); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to load task characteristics").WithContext(ctx)
	}
	return tasks, nil
}

func (r *TaskRepository) queryQueue(ctx context.Context, message, query string, args ...any) ([]*domain.Task, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, message).WithContext(ctx)
	}
	tasks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Task, error) {
		return scanQueueTask(row)
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, message).WithContext(ctx)
	}
	if err := loadCharacteristics(ctx, r.db, tasks...); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to load task characteristics").WithContext(ctx)
	}
	return tasks, nil
}

