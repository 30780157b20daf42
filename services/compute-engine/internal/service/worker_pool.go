package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"AnalysisPlatform/pkg/connection"
	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/pkg/logger"
	"AnalysisPlatform/services/compute-engine/internal/domain"
	"AnalysisPlatform/services/compute-engine/internal/qualitygate"
	"AnalysisPlatform/services/compute-engine/internal/repository"
)

// PoolConfig настройки пула воркеров
type PoolConfig struct {
	// NodeID стабильный идентификатор узла, из него выводятся UUID воркеров
	NodeID string
	// WorkerCount число одновременно выполняемых задач на узле
	WorkerCount int
	// PollInterval начальная задержка опроса пустой очереди
	PollInterval time.Duration
	// MaxPollInterval предел роста задержки опроса
	MaxPollInterval time.Duration
	// ShutdownTimeout сколько Stop ждет завершения выполняемых задач
	ShutdownTimeout time.Duration
}

// Validate проверяет настройки пула
func (c PoolConfig) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node id is required")
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("worker count must be positive, got %d", c.WorkerCount)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.MaxPollInterval < c.PollInterval {
		return fmt.Errorf("max poll interval must not be less than poll interval")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	return nil
}

// PoolDependencies зависимости пула воркеров
type PoolDependencies struct {
	Queue      repository.QueueRepository
	Lifecycle  repository.TaskLifecycleRepository
	Admission  *AdmissionService
	Processors *ProcessorRegistry
	Messages   *MessageService
	Gates      *QualityGateService
	Events     *EventPublisher
	Metrics    MetricsRecorder
	Logger     logger.Logger
}

// WorkerPool выполняет задачи очереди в WorkerCount горутинах.
// Захват задачи атомарен в хранилище, поэтому узлы кластера не координируются между собой.
type WorkerPool struct {
	config     PoolConfig
	queue      repository.QueueRepository
	lifecycle  repository.TaskLifecycleRepository
	admission  *AdmissionService
	processors *ProcessorRegistry
	messages   *MessageService
	gates      *QualityGateService
	events     *EventPublisher
	metrics    MetricsRecorder
	logger     logger.Logger
	now        func() time.Time

	workerUUIDs []string

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	claimed   atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
}

// NewWorkerPool создает пул воркеров
func NewWorkerPool(config PoolConfig, deps PoolDependencies) (*WorkerPool, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrValidation, "invalid worker pool config").
			WithDetails(err.Error())
	}

	workerUUIDs := make([]string, config.WorkerCount)
	for i := range workerUUIDs {
		workerUUIDs[i] = WorkerUUID(config.NodeID, i)
	}

	return &WorkerPool{
		config:      config,
		queue:       deps.Queue,
		lifecycle:   deps.Lifecycle,
		admission:   deps.Admission,
		processors:  deps.Processors,
		messages:    deps.Messages,
		gates:       deps.Gates,
		events:      deps.Events,
		metrics:     metricsOrNoop(deps.Metrics),
		logger:      deps.Logger,
		now:         time.Now,
		workerUUIDs: workerUUIDs,
	}, nil
}

// WorkerUUID возвращает UUID воркера, одинаковый между перезапусками узла.
// По нему после перезапуска находятся задачи, которые воркер не успел завершить.
func WorkerUUID(nodeID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("ce-worker/%s/%d", nodeID, index))).String()
}

// WorkerUUIDs возвращает UUID воркеров узла
func (p *WorkerPool) WorkerUUIDs() []string {
	return append([]string(nil), p.workerUUIDs...)
}

// Start запускает воркеров. Повторный вызов ничего не делает.
func (p *WorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	p.logger.Info("Starting worker pool",
		logger.String("node_id", p.config.NodeID),
		logger.Int("worker_count", p.config.WorkerCount),
		logger.CtxField(ctx),
	)

	group, groupCtx := errgroup.WithContext(runCtx)
	for _, workerUUID := range p.workerUUIDs {
		group.Go(func() error {
			return p.runWorker(groupCtx, workerUUID)
		})
	}

	done := p.done
	go func() {
		if err := group.Wait(); err != nil {
			p.logger.Error("Worker pool stopped with error", logger.Error(err))
		}
		close(done)
	}()

	return nil
}

// Stop перестает брать задачи и ждет завершения выполняемых не дольше ShutdownTimeout
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	p.logger.Info("Stopping worker pool", logger.CtxField(ctx))
	cancel()

	select {
	case <-done:
		p.logger.Info("Worker pool stopped", logger.CtxField(ctx))
		return nil
	case <-time.After(p.config.ShutdownTimeout):
		p.logger.Warn("Worker pool stop timeout",
			logger.Duration("timeout", p.config.ShutdownTimeout),
			logger.CtxField(ctx),
		)
		return errors.New(errors.ErrInternal, "worker pool stop timeout").WithContext(ctx)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning проверяет, запущен ли пул
func (p *WorkerPool) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Stats возвращает счетчики пула
func (p *WorkerPool) Stats() map[string]interface{} {
	return map[string]interface{}{
		"is_running":   p.IsRunning(),
		"node_id":      p.config.NodeID,
		"worker_count": p.config.WorkerCount,
		"worker_uuids": p.WorkerUUIDs(),
		"claimed":      p.claimed.Load(),
		"succeeded":    p.succeeded.Load(),
		"failed":       p.failed.Load(),
	}
}

// runWorker цикл одного воркера. Ошибки отдельных задач не останавливают цикл.
func (p *WorkerPool) runWorker(ctx context.Context, workerUUID string) error {
	log := p.logger.With(logger.String("worker_uuid", workerUUID))

	// задачи, оставшиеся от прошлого запуска этого воркера
	if n, err := p.queue.ResetForWorker(ctx, workerUUID, p.now()); err != nil {
		log.Error("Failed to reset tasks of worker", logger.Error(err))
	} else if n > 0 {
		log.Warn("Tasks of previous run returned to queue", logger.Int("count", n))
	}

	idle := connection.NewBackOff(connection.RetryConfig{
		InitialDelay: p.config.PollInterval,
		MaxDelay:     p.config.MaxPollInterval,
		Multiplier:   2.0,
		Jitter:       true,
	})

	for {
		if ctx.Err() != nil {
			return nil
		}

		processed, err := p.RunOnce(ctx, workerUUID)
		if err != nil {
			log.Error("Worker iteration failed", logger.Error(err))
		}
		if processed {
			idle.Reset()
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(idle.NextBackOff()):
		}
	}
}

// RunOnce берет одну задачу и выполняет ее до терминального статуса.
// Возвращает false, если задач нет или обработка приостановлена.
func (p *WorkerPool) RunOnce(ctx context.Context, workerUUID string) (bool, error) {
	paused, err := p.admission.IsPaused(ctx)
	if err != nil {
		return false, err
	}
	if paused {
		return false, nil
	}

	task, err := p.queue.Claim(ctx, workerUUID, p.now())
	if err != nil {
		return false, errors.Wrap(err, errors.ErrInternal, "failed to claim task").
			WithDetails(fmt.Sprintf("worker_uuid: %s", workerUUID)).
			WithContext(ctx)
	}
	if task == nil {
		return false, nil
	}
	p.claimed.Add(1)

	// начатая задача доводится до конца даже при остановке пула
	p.execute(context.WithoutCancel(ctx), task)
	return true, nil
}

func (p *WorkerPool) execute(ctx context.Context, task *domain.Task) {
	log := p.logger.With(
		logger.String("worker_uuid", task.WorkerUUID),
		logger.String("task_uuid", task.UUID),
		logger.String("type", string(task.Type)),
	)
	log.Info("Executing task", logger.String("component_uuid", task.ComponentUUID()))

	input, err := p.queue.GetInput(ctx, task.UUID)
	if err != nil && !errors.IsCode(err, errors.ErrNotFound) {
		log.Warn("Failed to load task input", logger.Error(err))
	}

	result, procErr := p.process(ctx, task, input)
	if procErr != nil {
		execErr := asExecutionError(procErr)
		task.Fail(execErr.Message, execErr.Stacktrace, execErr.Type, p.now())
		log.Warn("Task failed",
			logger.String("error_type", execErr.Type),
			logger.String("error_message", execErr.Message),
		)
	} else {
		task.Complete(result.AnalysisUUID, p.now())
		p.recordMessages(ctx, task, result.Messages, log)
		if task.Type.IsProjectAnalysis() {
			p.evaluateQualityGate(ctx, task, result.Measures, log)
		}
	}

	if counts, err := p.messages.WarningCounts(ctx, []string{task.UUID}); err == nil {
		task.WarningCount = counts[task.UUID]
	}

	if err := p.lifecycle.Finish(ctx, task); err != nil {
		if errors.IsCode(err, errors.ErrConflict) {
			log.Warn("Task is no longer owned by worker, result dropped")
			return
		}
		log.Error("Failed to finish task", logger.Error(err))
		return
	}

	switch task.Status {
	case domain.TaskStatusSuccess:
		p.succeeded.Add(1)
	case domain.TaskStatusFailed:
		p.failed.Add(1)
	}

	var duration time.Duration
	if task.ExecutionTimeMs != nil {
		duration = time.Duration(*task.ExecutionTimeMs) * time.Millisecond
	}
	p.metrics.ObserveTask(string(task.Type), string(task.Status), duration)
	if p.events != nil {
		p.events.TaskFinished(ctx, task)
	}

	log.Info("Task finished",
		logger.String("status", string(task.Status)),
		logger.Duration("duration", duration),
	)
}

// process вызывает обработчик задачи и превращает панику в ошибку выполнения
func (p *WorkerPool) process(ctx context.Context, task *domain.Task, input []byte) (result *ProcessingResult, err error) {
	processor, ok := p.processors.Get(task.Type)
	if !ok {
		return nil, &ExecutionError{
			Message: fmt.Sprintf("No processor registered for task type %s", task.Type),
			Type:    "UNSUPPORTED_TYPE",
		}
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			result = nil
			err = &ExecutionError{
				Message:    fmt.Sprintf("panic: %v", recovered),
				Stacktrace: string(debug.Stack()),
				Type:       "PANIC",
			}
		}
	}()

	result, err = processor.Process(ctx, task, input)
	if err == nil && result == nil {
		result = &ProcessingResult{}
	}
	return result, err
}

func asExecutionError(err error) *ExecutionError {
	var execErr *ExecutionError
	if stderrors.As(err, &execErr) {
		return execErr
	}
	return &ExecutionError{Message: err.Error(), Type: "EXECUTION_ERROR"}
}

func (p *WorkerPool) recordMessages(ctx context.Context, task *domain.Task, messages []ProcessorMessage, log logger.Logger) {
	for _, m := range messages {
		if err := p.messages.AddMessage(ctx, task.UUID, m.Type, m.Text); err != nil {
			log.Warn("Failed to record task message", logger.String("message_type", string(m.Type)), logger.Error(err))
		}
	}
}

// evaluateQualityGate оценивает анализ проекта. Результат записывается сообщениями задачи
// и не меняет ее статус.
func (p *WorkerPool) evaluateQualityGate(ctx context.Context, task *domain.Task, measures qualitygate.Measures, log logger.Logger) {
	if p.gates == nil || task.EntityUUID() == "" {
		return
	}
	if measures == nil {
		measures = qualitygate.Measures{}
	}

	evaluated, err := p.gates.Evaluate(ctx, task.EntityUUID(), measures)
	if err != nil {
		log.Warn("Quality gate evaluation failed", logger.Error(err))
		p.addMessage(ctx, task, domain.MessageTypeGeneric, fmt.Sprintf("Quality gate could not be evaluated: %v", err), log)
		return
	}
	if evaluated == nil {
		log.Debug("No quality gate applies to project")
		return
	}

	p.metrics.ObserveQualityGate(string(evaluated.Status))
	for _, text := range QualityGateMessages(evaluated) {
		p.addMessage(ctx, task, domain.MessageTypeInfo, text, log)
	}
	if p.events != nil {
		p.events.QualityGateEvaluated(ctx, task, evaluated)
	}

	log.Info("Quality gate evaluated",
		logger.String("quality_gate", evaluated.Gate.Name),
		logger.String("status", string(evaluated.Status)),
		logger.Bool("ignored_conditions", evaluated.IgnoredConditionsOnSmallChangeset),
	)
}

func (p *WorkerPool) addMessage(ctx context.Context, task *domain.Task, t domain.MessageType, text string, log logger.Logger) {
	if err := p.messages.AddMessage(ctx, task.UUID, t, text); err != nil {
		log.Warn("Failed to record task message", logger.Error(err))
	}
}

// QualityGateMessages текст сообщений о результате оценки: общий статус и по строке на каждую
// сработавшую метрику. Для метрики берется худший из результатов ее условий.
func QualityGateMessages(evaluated *qualitygate.EvaluatedQualityGate) []string {
	messages := []string{fmt.Sprintf("Quality gate status: %s", evaluated.Status)}

	for _, c := range evaluated.MetricConditions() {
		if c.Status == qualitygate.StatusOK {
			continue
		}
		value := "no value"
		if c.Value != nil {
			value = *c.Value
		}
		period := ""
		if c.Condition.OnLeakPeriod {
			period = " on new code"
		}
		messages = append(messages, fmt.Sprintf("Condition on metric '%s'%s is %s: %s %s (value %s)",
			c.Condition.MetricKey, period, c.Status,
			strings.ToLower(c.Condition.Operator.ShortName()), thresholdOf(c), value))
	}

	if evaluated.IgnoredConditionsOnSmallChangeset {
		messages = append(messages, "Some conditions on coverage and duplication were ignored because of the small number of new lines")
	}
	return messages
}

func thresholdOf(c qualitygate.EvaluatedCondition) string {
	if c.Status == qualitygate.StatusError {
		return c.Condition.ErrorThreshold
	}
	return c.Condition.WarningThreshold
}
