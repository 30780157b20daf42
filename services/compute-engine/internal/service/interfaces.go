package service

import (
	"context"
	"time"

	"AnalysisPlatform/pkg/rabbitmq"
	"AnalysisPlatform/services/compute-engine/internal/domain"
)

// Publisher публикует сообщения в брокер. Реализуется rabbitmq.Producer.
type Publisher interface {
	Publish(ctx context.Context, body []byte, options ...rabbitmq.PublishOption) error
}

// MetricsRecorder метрики очереди и воркеров. Реализуется metrics.Metrics.
type MetricsRecorder interface {
	SetQueueSize(status string, size float64)
	ObserveTask(taskType, status string, duration time.Duration)
	ObserveQualityGate(status string)
	ObserveLock(name string, acquired bool)
}

// WorkerCountProvider сообщает число воркеров узла
type WorkerCountProvider interface {
	WorkerCount() domain.WorkerCount
}

// ReconciliationStrategy возвращает в работу задачи воркеров, которые перестали отвечать
type ReconciliationStrategy interface {
	Name() string
	// Reconcile возвращает число обработанных осиротевших задач
	Reconcile(ctx context.Context) (int, error)
}

// StaticWorkerCount число воркеров из конфигурации
type StaticWorkerCount struct {
	Count  int
	CanSet bool
}

// WorkerCount возвращает настроенное значение, но не меньше одного воркера
func (s StaticWorkerCount) WorkerCount() domain.WorkerCount {
	count := s.Count
	if count < 1 {
		count = 1
	}
	return domain.WorkerCount{Value: count, CanSetWorkerCount: s.CanSet}
}

type noopMetrics struct{}

func (noopMetrics) SetQueueSize(string, float64) {}
func (noopMetrics) ObserveTask(string, string, time.Duration) {}
func (noopMetrics) ObserveQualityGate(string) {}
func (noopMetrics) ObserveLock(string, bool) {}

func metricsOrNoop(m MetricsRecorder) MetricsRecorder {
	if m == nil {
		return noopMetrics{}
	}
	return m
}
