package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sony/gobreaker"

	"AnalysisPlatform/pkg/logger"
	"AnalysisPlatform/pkg/rabbitmq"
	"AnalysisPlatform/services/compute-engine/internal/domain"
	"AnalysisPlatform/services/compute-engine/internal/qualitygate"
)

// Ключи маршрутизации событий
const (
	RoutingKeyTaskFinished         = "ce.task.finished"
	RoutingKeyQualityGateEvaluated = "ce.qualitygate.evaluated"
)

// TaskFinishedEvent событие о переходе задачи в терминальный статус
type TaskFinishedEvent struct {
	TaskUUID        string            `json:"taskId"`
	Type            domain.TaskType   `json:"type"`
	Status          domain.TaskStatus `json:"status"`
	ComponentUUID   string            `json:"componentId,omitempty"`
	AnalysisUUID    string            `json:"analysisId,omitempty"`
	ErrorMessage    string            `json:"errorMessage,omitempty"`
	ExecutionTimeMs *int64            `json:"executionTimeMs,omitempty"`
	ExecutedAt      *time.Time        `json:"executedAt,omitempty"`
}

// QualityGateEvent событие об оценке quality gate анализа.
// Conditions содержит один итоговый результат на метрику.
type QualityGateEvent struct {
	TaskUUID                          string                           `json:"taskId"`
	ProjectUUID                       string                           `json:"projectId"`
	AnalysisUUID                      string                           `json:"analysisId"`
	GateName                          string                           `json:"qualityGate"`
	Status                            qualitygate.EvaluationStatus     `json:"status"`
	Conditions                        []qualitygate.EvaluatedCondition `json:"conditions"`
	IgnoredConditionsOnSmallChangeset bool                             `json:"ignoredConditions"`
}

// EventPublisher публикует события очереди в RabbitMQ.
// Ошибки публикации только логируются: событие не влияет на результат задачи.
// Circuit breaker перестает обращаться к брокеру после серии отказов.
type EventPublisher struct {
	publisher Publisher
	breaker   *gobreaker.CircuitBreaker
	logger    logger.Logger
}

// NewEventPublisher создает EventPublisher. Без publisher события только логируются.
func NewEventPublisher(publisher Publisher, log logger.Logger) *EventPublisher {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "rabbitmq-events",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Event publisher circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	})

	return &EventPublisher{
		publisher: publisher,
		breaker:   breaker,
		logger:    log,
	}
}

// TaskFinished публикует событие о завершении задачи
func (p *EventPublisher) TaskFinished(ctx context.Context, task *domain.Task) {
	p.publish(ctx, RoutingKeyTaskFinished, task.UUID, TaskFinishedEvent{
		TaskUUID:        task.UUID,
		Type:            task.Type,
		Status:          task.Status,
		ComponentUUID:   task.ComponentUUID(),
		AnalysisUUID:    task.AnalysisUUID,
		ErrorMessage:    task.ErrorMessage,
		ExecutionTimeMs: task.ExecutionTimeMs,
		ExecutedAt:      task.ExecutedAt,
	})
}

// QualityGateEvaluated публикует результат оценки quality gate
func (p *EventPublisher) QualityGateEvaluated(ctx context.Context, task *domain.Task, evaluated *qualitygate.EvaluatedQualityGate) {
	p.publish(ctx, RoutingKeyQualityGateEvaluated, task.UUID, QualityGateEvent{
		TaskUUID:                          task.UUID,
		ProjectUUID:                       task.EntityUUID(),
		AnalysisUUID:                      task.AnalysisUUID,
		GateName:                          evaluated.Gate.Name,
		Status:                            evaluated.Status,
		Conditions:                        evaluated.MetricConditions(),
		IgnoredConditionsOnSmallChangeset: evaluated.IgnoredConditionsOnSmallChangeset,
	})
}

func (p *EventPublisher) publish(ctx context.Context, routingKey, messageID string, event interface{}) {
	if p.publisher == nil {
		p.logger.Debug("RabbitMQ not configured, skipping event",
			logger.String("routing_key", routingKey),
			logger.String("task_uuid", messageID),
		)
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to serialize event",
			logger.String("routing_key", routingKey),
			logger.Error(err),
		)
		return
	}

	_, err = p.breaker.Execute(func() (interface{}, error) {
		return nil, p.publisher.Publish(ctx, body,
			rabbitmq.WithRoutingKey(routingKey),
			rabbitmq.WithMessageID(messageID),
		)
	})
	if err != nil {
		p.logger.Warn("Failed to publish event",
			logger.String("routing_key", routingKey),
			logger.String("task_uuid", messageID),
			logger.Error(err),
			logger.CtxField(ctx),
		)
		return
	}

	p.logger.Debug("Event published",
		logger.String("routing_key", routingKey),
		logger.String("task_uuid", messageID),
	)
}
