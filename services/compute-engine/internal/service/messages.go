package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/pkg/logger"
	"AnalysisPlatform/services/compute-engine/internal/domain"
	"AnalysisPlatform/services/compute-engine/internal/repository"
)

// MessageService журнал сообщений задач и скрытие типов сообщений пользователями
type MessageService struct {
	messages repository.MessageRepository
	logger   logger.Logger
	now      func() time.Time
}

// NewMessageService создает MessageService
func NewMessageService(messages repository.MessageRepository, log logger.Logger) *MessageService {
	return &MessageService{
		messages: messages,
		logger:   log,
		now:      time.Now,
	}
}

// AddMessage добавляет сообщение к задаче. Вызывается только исполнителем задачи.
func (s *MessageService) AddMessage(ctx context.Context, taskUUID string, messageType domain.MessageType, text string) error {
	if _, ok := domain.ParseMessageType(string(messageType)); !ok {
		return errors.New(errors.ErrValidation, fmt.Sprintf("Unknown message type '%s'", messageType)).WithContext(ctx)
	}
	if strings.TrimSpace(text) == "" {
		return errors.New(errors.ErrValidation, "Message text must not be empty").WithContext(ctx)
	}

	message := domain.NewTaskMessage(taskUUID, messageType, text, s.now())
	if err := s.messages.Insert(ctx, message); err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to add task message").
			WithDetails(fmt.Sprintf("task_uuid: %s", taskUUID)).
			WithContext(ctx)
	}
	return nil
}

// ListMessages возвращает сообщения задачи в порядке добавления
func (s *MessageService) ListMessages(ctx context.Context, taskUUID string) ([]*domain.TaskMessage, error) {
	messages, err := s.messages.ListByTask(ctx, taskUUID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to list task messages").
			WithDetails(fmt.Sprintf("task_uuid: %s", taskUUID)).
			WithContext(ctx)
	}
	return messages, nil
}

// ListWarnings возвращает предупреждения задачи без типов, скрытых пользователем для ее проекта
func (s *MessageService) ListWarnings(ctx context.Context, task *domain.Task, userUUID string) ([]*domain.TaskMessage, error) {
	messages, err := s.ListMessages(ctx, task.UUID)
	if err != nil {
		return nil, err
	}

	dismissed := map[domain.MessageType]struct{}{}
	if userUUID != "" && task.EntityUUID() != "" {
		types, err := s.messages.ListDismissed(ctx, userUUID, task.EntityUUID())
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrInternal, "failed to list dismissed messages").WithContext(ctx)
		}
		for _, t := range types {
			dismissed[t] = struct{}{}
		}
	}

	warnings := make([]*domain.TaskMessage, 0, len(messages))
	for _, m := range messages {
		if !m.Type.IsWarning() {
			continue
		}
		if _, ok := dismissed[m.Type]; ok {
			continue
		}
		warnings = append(warnings, m)
	}
	return warnings, nil
}

// WarningCounts возвращает количество предупреждений по задачам
func (s *MessageService) WarningCounts(ctx context.Context, taskUUIDs []string) (map[string]int, error) {
	if len(taskUUIDs) == 0 {
		return map[string]int{}, nil
	}
	counts, err := s.messages.CountWarnings(ctx, taskUUIDs)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to count warnings").WithContext(ctx)
	}
	return counts, nil
}

// Dismiss скрывает тип сообщения для пользователя и проекта.
// Повторное скрытие не является ошибкой. Неизвестный тип дает NOT_FOUND, нескрываемый дает VALIDATION_ERROR.
func (s *MessageService) Dismiss(ctx context.Context, userUUID, projectUUID, messageType string) error {
	t, ok := domain.ParseMessageType(messageType)
	if !ok {
		return errors.New(errors.ErrNotFound, fmt.Sprintf("Message type '%s' not found", messageType)).WithContext(ctx)
	}
	if !t.IsDismissible() {
		return errors.New(errors.ErrValidation, fmt.Sprintf("Message type '%s' cannot be dismissed", messageType)).WithContext(ctx)
	}

	err := s.messages.InsertDismissed(ctx, &domain.DismissedMessage{
		UUID:        uuid.NewString(),
		UserUUID:    userUUID,
		ProjectUUID: projectUUID,
		Type:        t,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to dismiss message").
			WithDetails(fmt.Sprintf("user_uuid: %s, project_uuid: %s, type: %s", userUUID, projectUUID, t)).
			WithContext(ctx)
	}

	s.logger.Info("Message type dismissed",
		logger.String("user_uuid", userUUID),
		logger.String("project_uuid", projectUUID),
		logger.String("type", string(t)),
		logger.CtxField(ctx),
	)
	return nil
}
