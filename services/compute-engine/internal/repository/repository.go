package repository

import (
	"context"
	"time"

	"AnalysisPlatform/services/compute-engine/internal/domain"
	"AnalysisPlatform/services/compute-engine/internal/qualitygate"
)

// QueueRepository хранилище задач в очереди (PENDING и IN_PROGRESS).
// Переходы между очередью и историей выполняются атомарно.
type QueueRepository interface {
	// Insert ставит задачу в очередь вместе с характеристиками и входными данными
	Insert(ctx context.Context, submission *domain.TaskSubmission, now time.Time) (*domain.Task, error)

	// InsertIfNoTaskForEntity ставит задачу, только если у проекта нет других задач в очереди.
	// Возвращает ErrConflict, если такая задача уже есть.
	InsertIfNoTaskForEntity(ctx context.Context, submission *domain.TaskSubmission, now time.Time) (*domain.Task, error)

	// InsertMany ставит задачи одной транзакцией.
	// При unique задачи для проектов, у которых уже есть задачи в очереди, пропускаются.
	InsertMany(ctx context.Context, submissions []*domain.TaskSubmission, unique bool, now time.Time) ([]*domain.Task, error)

	// Get возвращает задачу из очереди, ErrNotFound если ее нет
	Get(ctx context.Context, taskUUID string) (*domain.Task, error)

	// ListByComponent возвращает задачи очереди компонента в порядке постановки
	ListByComponent(ctx context.Context, componentUUID string) ([]*domain.Task, error)

	// ListInProgress возвращает все задачи в работе
	ListInProgress(ctx context.Context) ([]*domain.Task, error)

	// Claim атомарно выбирает самую старую доступную задачу и отдает ее воркеру.
	// Возвращает nil без ошибки, если доступных задач нет или обработка приостановлена.
	Claim(ctx context.Context, workerUUID string, now time.Time) (*domain.Task, error)

	// CountByStatus возвращает количество задач очереди по статусам
	CountByStatus(ctx context.Context) (map[domain.TaskStatus]int, error)

	// OldestPendingCreatedAt возвращает время постановки самой старой задачи в ожидании
	OldestPendingCreatedAt(ctx context.Context) (*time.Time, error)

	// ResetForWorker возвращает задачи воркера в PENDING, сохраняя счетчик попыток
	ResetForWorker(ctx context.Context, workerUUID string, now time.Time) (int, error)

	// ResetUnknownWorkers возвращает в PENDING задачи всех воркеров, кроме перечисленных
	ResetUnknownWorkers(ctx context.Context, knownWorkers []string, now time.Time) (int, error)

	// GetInput возвращает входные данные задачи
	GetInput(ctx context.Context, taskUUID string) ([]byte, error)
}

// TaskLifecycleRepository переводит задачи из очереди в историю
type TaskLifecycleRepository interface {
	// Finish удаляет задачу воркера из очереди и записывает ее в историю.
	// Возвращает ErrConflict, если задача больше не принадлежит воркеру.
	Finish(ctx context.Context, task *domain.Task) error

	// CancelPending отменяет задачу, если она в PENDING.
	// Возвращает nil без ошибки, если задачи нет в очереди или она уже в работе.
	CancelPending(ctx context.Context, taskUUID string, now time.Time) (*domain.Task, error)

	// CancelAllPending отменяет все задачи в PENDING и возвращает их количество
	CancelAllPending(ctx context.Context, now time.Time) (int, error)

	// CancelWornOut отменяет задачи в PENDING, которые уже запускались
	CancelWornOut(ctx context.Context, now time.Time) (int, error)
}

// ActivityRepository хранилище истории задач
type ActivityRepository interface {
	// GetActivity возвращает задачу из истории, ErrNotFound если ее нет
	GetActivity(ctx context.Context, taskUUID string) (*domain.Task, error)

	// LastForComponent возвращает последнюю завершенную задачу компонента или nil
	LastForComponent(ctx context.Context, componentUUID string) (*domain.Task, error)

	// List возвращает историю в обратном хронологическом порядке
	List(ctx context.Context, filter ActivityFilter) ([]*domain.Task, error)
}

// ActivityFilter фильтр истории задач
type ActivityFilter struct {
	ComponentUUID string
	Statuses      []domain.TaskStatus
	Type          domain.TaskType
	Limit         int
}

// MessageRepository хранилище сообщений задач и скрытых пользователями типов
type MessageRepository interface {
	// Insert добавляет сообщение
	Insert(ctx context.Context, message *domain.TaskMessage) error

	// ListByTask возвращает сообщения задачи в порядке создания
	ListByTask(ctx context.Context, taskUUID string) ([]*domain.TaskMessage, error)

	// CountWarnings возвращает количество предупреждений по задачам
	CountWarnings(ctx context.Context, taskUUIDs []string) (map[string]int, error)

	// InsertDismissed сохраняет отметку о скрытии. Повторная отметка ничего не меняет.
	InsertDismissed(ctx context.Context, dismissed *domain.DismissedMessage) error

	// ListDismissed возвращает типы, скрытые пользователем для проекта
	ListDismissed(ctx context.Context, userUUID, projectUUID string) ([]domain.MessageType, error)
}

// PropertyRepository хранилище внутренних свойств кластера
type PropertyRepository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Ключи внутренних свойств
const (
	PropertyPauseWorkers = "ce.pause"
	PropertyPauseSubmit  = "ce.submit.pause"
)

// LockRepository кластерные блокировки с ограниченным временем жизни
type LockRepository interface {
	// TryLock берет блокировку. Возвращает ErrConflict, если она занята другим владельцем.
	TryLock(ctx context.Context, name, holder string, ttl time.Duration) (*domain.LockInfo, error)

	// Release освобождает блокировку, если она принадлежит holder
	Release(ctx context.Context, name, holder string) error
}

// WorkerRegistry реестр живых воркеров кластера
type WorkerRegistry interface {
	// Heartbeat отмечает воркер живым на ttl
	Heartbeat(ctx context.Context, workerUUID string, ttl time.Duration) error

	// Unregister удаляет воркер из реестра
	Unregister(ctx context.Context, workerUUID string) error

	// AliveWorkers возвращает воркеров с действующей отметкой
	AliveWorkers(ctx context.Context) ([]string, error)
}

// ProjectRepository хранилище проектов
type ProjectRepository interface {
	// GetOrCreate возвращает проект по ключу, создавая его при отсутствии
	GetOrCreate(ctx context.Context, key, name string) (*domain.Project, error)

	// GetByKey возвращает проект по ключу, ErrNotFound если его нет
	GetByKey(ctx context.Context, key string) (*domain.Project, error)
}

// QualityGateRepository хранилище quality gate и условий
type QualityGateRepository interface {
	Create(ctx context.Context, name string) (*qualitygate.QualityGate, error)
	Get(ctx context.Context, id int64) (*qualitygate.QualityGate, error)
	GetByName(ctx context.Context, name string) (*qualitygate.QualityGate, error)
	List(ctx context.Context) ([]*qualitygate.QualityGate, error)
	Delete(ctx context.Context, id int64) error

	// SetDefault делает gate единственным gate по умолчанию
	SetDefault(ctx context.Context, id int64) error
	// GetDefault возвращает gate по умолчанию, ErrNotFound если он не назначен
	GetDefault(ctx context.Context) (*qualitygate.QualityGate, error)

	// AssignProject привязывает проект к gate
	AssignProject(ctx context.Context, projectUUID string, gateID int64) error
	// UnassignProject отвязывает проект; после этого действует gate по умолчанию
	UnassignProject(ctx context.Context, projectUUID string) error
	// GetForProject возвращает явно привязанный gate, ErrNotFound если привязки нет
	GetForProject(ctx context.Context, projectUUID string) (*qualitygate.QualityGate, error)

	InsertCondition(ctx context.Context, gateID int64, condition qualitygate.Condition) (qualitygate.Condition, error)
	UpdateCondition(ctx context.Context, condition qualitygate.Condition) error
	DeleteCondition(ctx context.Context, conditionID int64) error
	// GetCondition возвращает условие и id его gate
	GetCondition(ctx context.Context, conditionID int64) (qualitygate.Condition, int64, error)
}
