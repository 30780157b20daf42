package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskType представляет тип задачи анализа
type TaskType string

const (
	TaskTypeReport        TaskType = "REPORT"
	TaskTypeProjectExport TaskType = "PROJECT_EXPORT"
	TaskTypeIssueSync     TaskType = "ISSUE_SYNC"
	TaskTypeAuditPurge    TaskType = "AUDIT_PURGE"
)

var knownTaskTypes = map[TaskType]struct{}{
	TaskTypeReport:        {},
	TaskTypeProjectExport: {},
	TaskTypeIssueSync:     {},
	TaskTypeAuditPurge:    {},
}

// IsValid проверяет, что тип задачи известен
func (t TaskType) IsValid() bool {
	_, ok := knownTaskTypes[t]
	return ok
}

// IsProjectAnalysis возвращает true для задач, результат которых оценивается quality gate
func (t TaskType) IsProjectAnalysis() bool {
	return t == TaskTypeReport
}

// TaskTypes возвращает все известные типы задач
func TaskTypes() []TaskType {
	return []TaskType{TaskTypeReport, TaskTypeProjectExport, TaskTypeIssueSync, TaskTypeAuditPurge}
}

// TaskStatus представляет статус задачи
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusSuccess    TaskStatus = "SUCCESS"
	TaskStatusFailed     TaskStatus = "FAILED"
	TaskStatusCanceled   TaskStatus = "CANCELED"
)

// IsTerminal возвращает true для статусов, которые хранятся только в истории
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusSuccess, TaskStatusFailed, TaskStatusCanceled:
		return true
	default:
		return false
	}
}

// IsValid проверяет, что статус известен
func (s TaskStatus) IsValid() bool {
	return s == TaskStatusPending || s == TaskStatusInProgress || s.IsTerminal()
}

// Component ссылается на компонент (ветку или pull request) и на проект, которому он принадлежит.
// EntityUUID используется для сериализации задач одного проекта.
type Component struct {
	UUID       string `json:"uuid"`
	EntityUUID string `json:"entity_uuid"`
}

// NewComponent создает ссылку на компонент; пустой entityUUID означает, что компонент сам является проектом
func NewComponent(componentUUID, entityUUID string) *Component {
	if entityUUID == "" {
		entityUUID = componentUUID
	}
	return &Component{UUID: componentUUID, EntityUUID: entityUUID}
}

// Task представляет задачу в очереди или в истории.
// Поля результата заполняются только при переходе в терминальный статус.
type Task struct {
	UUID            string          `json:"id"`
	Type            TaskType        `json:"type"`
	Component       *Component      `json:"component,omitempty"`
	Characteristics Characteristics `json:"characteristics,omitempty"`
	SubmitterUUID   string          `json:"submitter_uuid,omitempty"`
	Status          TaskStatus      `json:"status"`
	WorkerUUID      string          `json:"worker_uuid,omitempty"`
	ExecutionCount  int             `json:"execution_count"`
	CreatedAt       time.Time       `json:"submitted_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`

	// Результат выполнения
	ExecutedAt      *time.Time `json:"executed_at,omitempty"`
	ExecutionTimeMs *int64     `json:"execution_time_ms,omitempty"`
	AnalysisUUID    string     `json:"analysis_id,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	ErrorStacktrace string     `json:"error_stacktrace,omitempty"`
	ErrorType       string     `json:"error_type,omitempty"`
	WarningCount    int        `json:"warning_count"`
}

// ComponentUUID возвращает UUID компонента или пустую строку для задач без компонента
func (t *Task) ComponentUUID() string {
	if t.Component == nil {
		return ""
	}
	return t.Component.UUID
}

// EntityUUID возвращает UUID проекта или пустую строку для задач без компонента
func (t *Task) EntityUUID() string {
	if t.Component == nil {
		return ""
	}
	return t.Component.EntityUUID
}

// MarkInProgress переводит задачу в IN_PROGRESS для указанного воркера
func (t *Task) MarkInProgress(workerUUID string, now time.Time) {
	t.Status = TaskStatusInProgress
	t.WorkerUUID = workerUUID
	t.ExecutionCount++
	t.StartedAt = &now
	t.UpdatedAt = now
}

// Complete фиксирует успешный результат
func (t *Task) Complete(analysisUUID string, now time.Time) {
	t.finish(TaskStatusSuccess, now)
	t.AnalysisUUID = analysisUUID
}

// Fail фиксирует ошибку выполнения
func (t *Task) Fail(message, stacktrace, errorType string, now time.Time) {
	t.finish(TaskStatusFailed, now)
	t.ErrorMessage = truncate(message, MaxErrorMessageLength)
	t.ErrorStacktrace = stacktrace
	t.ErrorType = truncate(errorType, MaxErrorTypeLength)
}

// Cancel переводит задачу в CANCELED
func (t *Task) Cancel(now time.Time) {
	t.finish(TaskStatusCanceled, now)
}

func (t *Task) finish(status TaskStatus, now time.Time) {
	t.Status = status
	t.ExecutedAt = &now
	t.UpdatedAt = now
	if t.StartedAt != nil {
		ms := now.Sub(*t.StartedAt).Milliseconds()
		t.ExecutionTimeMs = &ms
	}
}

// Ограничения на длину полей ошибки
const (
	MaxErrorMessageLength = 1000
	MaxErrorTypeLength    = 20
)

func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max])
}

// TaskSubmission описывает задачу, которую нужно поставить в очередь
type TaskSubmission struct {
	UUID            string
	Type            TaskType
	Component       *Component
	Characteristics Characteristics
	SubmitterUUID   string

	// Input содержит полезную нагрузку задачи, например архив отчета
	Input []byte
}

// NewTaskSubmission создает заявку с новым UUID
func NewTaskSubmission(taskType TaskType, component *Component, submitterUUID string) *TaskSubmission {
	return &TaskSubmission{
		UUID:          uuid.NewString(),
		Type:          taskType,
		Component:     component,
		SubmitterUUID: submitterUUID,
	}
}

// Validate проверяет заявку
func (s *TaskSubmission) Validate() error {
	if s.UUID == "" {
		return fmt.Errorf("task uuid is required")
	}
	if !s.Type.IsValid() {
		return fmt.Errorf("unknown task type: %s", s.Type)
	}
	if s.Component != nil && s.Component.UUID == "" {
		return fmt.Errorf("component uuid is required when component is set")
	}
	return nil
}

// ToTask создает задачу в статусе PENDING
func (s *TaskSubmission) ToTask(now time.Time) *Task {
	return &Task{
		UUID:            s.UUID,
		Type:            s.Type,
		Component:       s.Component,
		Characteristics: s.Characteristics,
		SubmitterUUID:   s.SubmitterUUID,
		Status:          TaskStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
