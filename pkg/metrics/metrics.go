package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Metrics представляет систему метрик сервиса
type Metrics struct {
	// HTTP
	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ErrorsCount     *prometheus.CounterVec

	// Очередь задач
	QueueSize      *prometheus.GaugeVec
	TasksProcessed *prometheus.CounterVec
	TaskDuration   *prometheus.HistogramVec

	// Quality gate и координация
	QualityGateEvaluations *prometheus.CounterVec
	LockAcquisitions       *prometheus.CounterVec

	registry prometheus.Gatherer

	// OpenTelemetry Tracer
	Tracer trace.Tracer `json:"-"`
}

// NewMetrics создает метрики и регистрирует их в реестре.
// Если reg равен nil, используется глобальный реестр Prometheus.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	m := &Metrics{
		RequestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help: "Duration of HTTP requests in seconds", Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		ErrorsCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
		QueueSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "queue", Name: "size",
			Help: "Number of tasks in the queue by status",
		}, []string{"status"}),
		TasksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tasks", Name: "processed_total",
			Help: "Total number of finished tasks by type and status",
		}, []string{"type", "status"}),
		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "tasks", Name: "duration_seconds",
			Help: "Task execution duration in seconds", Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"type"}),
		QualityGateEvaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "qualitygate", Name: "evaluations_total",
			Help: "Total number of quality gate evaluations by status",
		}, []string{"status"}),
		LockAcquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "lock", Name: "acquisitions_total",
			Help: "Cluster lock acquisition attempts by lock name and result",
		}, []string{"name", "result"}),
		registry: gatherer,
		Tracer:   otel.Tracer(namespace),
	}

	for _, collector := range []prometheus.Collector{
		m.RequestCount, m.RequestDuration, m.ErrorsCount,
		m.QueueSize, m.TasksProcessed, m.TaskDuration,
		m.QualityGateEvaluations, m.LockAcquisitions,
	} {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}

	return m
}

// GetHandler возвращает HTTP обработчик для эндпоинта /metrics
func (m *Metrics) GetHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware собирает метрики и открывает span для каждого HTTP запроса
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := m.Tracer.Start(r.Context(), r.URL.Path)
		defer span.End()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(wrapped, r.WithContext(ctx))

		duration := time.Since(start).Seconds()
		endpoint := r.URL.Path

		m.RequestCount.WithLabelValues(r.Method, endpoint, fmt.Sprintf("%d", wrapped.statusCode)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(duration)

		if wrapped.statusCode >= 400 {
			errorType := "client_error"
			if wrapped.statusCode >= 500 {
				errorType = "server_error"
			}
			m.ErrorsCount.WithLabelValues(r.Method, endpoint, errorType).Inc()
		}

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.url", r.URL.String()),
			attribute.Int("http.status_code", wrapped.statusCode),
		)
	})
}

// responseWriter перехватывает статус ответа
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader перехватывает установку статуса
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// InitializeOpenTelemetry устанавливает глобальный провайдер трассировки.
// Возвращает функцию остановки провайдера.
func InitializeOpenTelemetry(serviceName, version string) func(context.Context) error {
	tp := tracesdk.NewTracerProvider(
		tracesdk.WithSampler(tracesdk.ParentBased(tracesdk.TraceIDRatioBased(0.1))),
		tracesdk.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", version),
		)),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}

// SetQueueSize устанавливает размер очереди для статуса
func (m *Metrics) SetQueueSize(status string, size float64) {
	m.QueueSize.WithLabelValues(status).Set(size)
}

// ObserveTask учитывает завершенную задачу
func (m *Metrics) ObserveTask(taskType, status string, duration time.Duration) {
	m.TasksProcessed.WithLabelValues(taskType, status).Inc()
	m.TaskDuration.WithLabelValues(taskType).Observe(duration.Seconds())
}

// ObserveQualityGate учитывает результат оценки quality gate
func (m *Metrics) ObserveQualityGate(status string) {
	m.QualityGateEvaluations.WithLabelValues(status).Inc()
}

// ObserveLock учитывает попытку захвата блокировки
func (m *Metrics) ObserveLock(name string, acquired bool) {
	result := "skipped"
	if acquired {
		result = "acquired"
	}
	m.LockAcquisitions.WithLabelValues(name, result).Inc()
}
