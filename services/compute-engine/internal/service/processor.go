package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"AnalysisPlatform/services/compute-engine/internal/domain"
	"AnalysisPlatform/services/compute-engine/internal/qualitygate"
)

// TaskProcessor выполняет задачу определенного типа.
// Ошибка выполнения сохраняется в задаче как FAILED и не прерывает работу воркера.
type TaskProcessor interface {
	Process(ctx context.Context, task *domain.Task, input []byte) (*ProcessingResult, error)
}

// ProcessorFunc адаптер функции к TaskProcessor
type ProcessorFunc func(ctx context.Context, task *domain.Task, input []byte) (*ProcessingResult, error)

// Process вызывает f
func (f ProcessorFunc) Process(ctx context.Context, task *domain.Task, input []byte) (*ProcessingResult, error) {
	return f(ctx, task, input)
}

// ProcessingResult результат успешного выполнения
type ProcessingResult struct {
	AnalysisUUID string
	Measures     qualitygate.Measures
	Messages     []ProcessorMessage
}

// ProcessorMessage сообщение, поднятое во время выполнения задачи
type ProcessorMessage struct {
	Type domain.MessageType `json:"type"`
	Text string             `json:"text"`
}

// ExecutionError типизированная ошибка выполнения.
// Поля переносятся в error_message, error_stacktrace и error_type задачи.
type ExecutionError struct {
	Message    string
	Stacktrace string
	Type       string
}

// Error возвращает сообщение об ошибке
func (e *ExecutionError) Error() string {
	if e.Type == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ProcessorRegistry сопоставляет типы задач с обработчиками
type ProcessorRegistry struct {
	mu         sync.RWMutex
	processors map[domain.TaskType]TaskProcessor
}

// NewProcessorRegistry создает пустой реестр
func NewProcessorRegistry() *ProcessorRegistry {
	return &ProcessorRegistry{processors: make(map[domain.TaskType]TaskProcessor)}
}

// Register регистрирует обработчик типа задачи, заменяя предыдущий
func (r *ProcessorRegistry) Register(taskType domain.TaskType, processor TaskProcessor) *ProcessorRegistry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[taskType] = processor
	return r
}

// Get возвращает обработчик типа задачи
func (r *ProcessorRegistry) Get(taskType domain.TaskType) (TaskProcessor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processors[taskType]
	return p, ok
}

// Types возвращает зарегистрированные типы
func (r *ProcessorRegistry) Types() []domain.TaskType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]domain.TaskType, 0, len(r.processors))
	for _, t := range domain.TaskTypes() {
		if _, ok := r.processors[t]; ok {
			types = append(types, t)
		}
	}
	return types
}

// ReportPayload формат отчета, который принимает JSONReportProcessor
type ReportPayload struct {
	AnalysisID string                         `json:"analysisId,omitempty"`
	Measures   map[string]qualitygate.Measure `json:"measures"`
	Messages   []ProcessorMessage             `json:"messages,omitempty"`
}

// JSONReportProcessor обрабатывает отчеты анализа, уже содержащие вычисленные измерения.
// Разбор исходного кода и вычисление метрик выполняются сканером до отправки отчета.
type JSONReportProcessor struct{}

// Process разбирает отчет из входных данных задачи
func (JSONReportProcessor) Process(_ context.Context, task *domain.Task, input []byte) (*ProcessingResult, error) {
	if len(input) == 0 {
		return nil, &ExecutionError{
			Message: fmt.Sprintf("Analysis report of task %s is empty", task.UUID),
			Type:    "MISSING_REPORT",
		}
	}

	var payload ReportPayload
	if err := json.Unmarshal(input, &payload); err != nil {
		return nil, &ExecutionError{
			Message: fmt.Sprintf("Analysis report of task %s is malformed: %v", task.UUID, err),
			Type:    "INVALID_REPORT",
		}
	}

	for _, m := range payload.Messages {
		if _, ok := domain.ParseMessageType(string(m.Type)); !ok {
			return nil, &ExecutionError{
				Message: fmt.Sprintf("Unknown message type '%s' in analysis report", m.Type),
				Type:    "INVALID_REPORT",
			}
		}
	}

	analysisID := payload.AnalysisID
	if analysisID == "" {
		analysisID = uuid.NewString()
	}

	return &ProcessingResult{
		AnalysisUUID: analysisID,
		Measures:     qualitygate.Measures(payload.Measures),
		Messages:     payload.Messages,
	}, nil
}
