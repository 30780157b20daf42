package domain

import "time"

// PauseStatus состояние приостановки обработки очереди
type PauseStatus string

const (
	PauseStatusResumed PauseStatus = "RESUMED"
	// PauseStatusPausing новые задачи не берутся, но часть еще выполняется
	PauseStatusPausing PauseStatus = "PAUSING"
	PauseStatusPaused  PauseStatus = "PAUSED"
)

// ResolvePauseStatus вычисляет статус по флагу паузы и числу задач в работе
func ResolvePauseStatus(pauseRequested bool, inProgress int) PauseStatus {
	switch {
	case !pauseRequested:
		return PauseStatusResumed
	case inProgress > 0:
		return PauseStatusPausing
	default:
		return PauseStatusPaused
	}
}

// WorkerCount текущее количество воркеров и возможность его изменить
type WorkerCount struct {
	Value             int  `json:"value"`
	CanSetWorkerCount bool `json:"canSetWorkerCount"`
}

// LockInfo информация о кластерной блокировке
type LockInfo struct {
	Name      string    `json:"name"`
	Holder    string    `json:"holder"`
	LockedAt  time.Time `json:"locked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// QueueStatus сводка по очереди
type QueueStatus struct {
	Pending     int         `json:"pending"`
	InProgress  int         `json:"inProgress"`
	PauseStatus PauseStatus `json:"pauseStatus"`

	// Возраст самой старой задачи в ожидании
	PendingTimeMs *int64 `json:"pendingTime,omitempty"`
}

// Project компонент верхнего уровня, которому принадлежат задачи анализа
type Project struct {
	UUID      string    `json:"uuid"`
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
