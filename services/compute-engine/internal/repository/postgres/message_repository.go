package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/services/compute-engine/internal/domain"
	"AnalysisPlatform/services/compute-engine/internal/repository"
)

// MessageRepository реализация хранилища сообщений задач в PostgreSQL
type MessageRepository struct {
	db DB
}

// NewMessageRepository создает новый экземпляр MessageRepository
func NewMessageRepository(db DB) repository.MessageRepository {
	return &MessageRepository{db: db}
}

// Insert добавляет сообщение
func (r *MessageRepository) Insert(ctx context.Context, message *domain.TaskMessage) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO ce_task_message (uuid, task_uuid, message, message_type, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		message.UUID, message.TaskUUID, message.Text, string(message.Type), message.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to insert task message").
			WithDetails(fmt.Sprintf("task_uuid: %s, type: %s", message.TaskUUID, message.Type)).
			WithContext(ctx)
	}
	return nil
}

// ListByTask возвращает сообщения задачи в порядке создания
func (r *MessageRepository) ListByTask(ctx context.Context, taskUUID string) ([]*domain.TaskMessage, error) {
	rows, err := r.db.Query(ctx, `
		SELECT uuid, task_uuid, message, message_type, created_at
		FROM ce_task_message
		WHERE task_uuid = $1
		ORDER BY created_at, uuid`, taskUUID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to list task messages").WithContext(ctx)
	}

	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.TaskMessage, error) {
		var m domain.TaskMessage
		var messageType string
		if err := row.Scan(&m.UUID, &m.TaskUUID, &m.Text, &messageType, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Type = domain.MessageType(messageType)
		return &m, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to scan task messages").WithContext(ctx)
	}
	return messages, nil
}

// CountWarnings возвращает количество предупреждений для каждой задачи
func (r *MessageRepository) CountWarnings(ctx context.Context, taskUUIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(taskUUIDs))
	if len(taskUUIDs) == 0 {
		return counts, nil
	}

	warningTypes := make([]string, 0)
	for _, t := range domain.WarningTypes() {
		warningTypes = append(warningTypes, string(t))
	}

	rows, err := r.db.Query(ctx, `
		SELECT task_uuid, count(*) FROM ce_task_message
		WHERE task_uuid = ANY($1) AND message_type = ANY($2)
		GROUP BY task_uuid`, taskUUIDs, warningTypes)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to count warnings").WithContext(ctx)
	}
	defer rows.Close()

	for rows.Next() {
		var taskUUID string
		var count int
		if err := rows.Scan(&taskUUID, &count); err != nil {
			return nil, errors.Wrap(err, errors.ErrInternal, "failed to scan warning count").WithContext(ctx)
		}
		counts[taskUUID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to count warnings").WithContext(ctx)
	}
	return counts, nil
}

// InsertDismissed сохраняет отметку о скрытии; повторная отметка игнорируется
func (r *MessageRepository) InsertDismissed(ctx context.Context, dismissed *domain.DismissedMessage) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO user_dismissed_messages (uuid, user_uuid, project_uuid, message_type, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_uuid, project_uuid, message_type) DO NOTHING`,
		dismissed.UUID, dismissed.UserUUID, dismissed.ProjectUUID, string(dismissed.Type), dismissed.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to dismiss message").
			WithDetails(fmt.Sprintf("project_uuid: %s, type: %s", dismissed.ProjectUUID, dismissed.Type)).
			WithContext(ctx)
	}
	return nil
}

// ListDismissed возвращает типы, скрытые пользователем для проекта
func (r *MessageRepository) ListDismissed(ctx context.Context, userUUID, projectUUID string) ([]domain.MessageType, error) {
	rows, err := r.db.Query(ctx, `
		SELECT message_type FROM user_dismissed_messages
		WHERE user_uuid = $1 AND project_uuid = $2`, userUUID, projectUUID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to list dismissed messages").WithContext(ctx)
	}

	types, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.MessageType, error) {
		var t string
		err := row.Scan(&t)
		return domain.MessageType(t), err
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to scan dismissed messages").WithContext(ctx)
	}
	return types, nil
}
