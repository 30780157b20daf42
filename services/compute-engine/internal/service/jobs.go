package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/pkg/logger"
	"AnalysisPlatform/services/compute-engine/internal/domain"
	"AnalysisPlatform/services/compute-engine/internal/repository"
)

// Имена периодических заданий. Они же имена кластерных блокировок.
const (
	JobQueueMetrics = "ce.queue.metrics"
	JobWornOuts     = "ce.worn-outs"
	JobReconcile    = "ce.reconcile"
	JobHeartbeat    = "ce.heartbeat"
)

// JobsConfig расписания периодических заданий в формате cron с секундами или @every
type JobsConfig struct {
	QueueMetricsSchedule string
	WornOutSchedule      string
	ReconcileSchedule    string
	HeartbeatSchedule    string
	HeartbeatTTL         time.Duration
}

// JobsDependencies зависимости планировщика заданий
type JobsDependencies struct {
	Locks          *LockManager
	Admission      *AdmissionService
	Cancellation   *CancellationService
	Reconciliation ReconciliationStrategy
	Registry       repository.WorkerRegistry
	Pool           *WorkerPool
	Metrics        MetricsRecorder
	Logger         logger.Logger
}

// JobScheduler запускает периодические задания очереди.
// Кластерные задания выполняются под блокировкой и безопасны при повторном выполнении.
// Heartbeat выполняется на каждом узле без блокировки.
type JobScheduler struct {
	config         JobsConfig
	locks          *LockManager
	admission      *AdmissionService
	cancellation   *CancellationService
	reconciliation ReconciliationStrategy
	registry       repository.WorkerRegistry
	pool           *WorkerPool
	metrics        MetricsRecorder
	logger         logger.Logger

	cron      *cron.Cron
	mu        sync.Mutex
	isRunning bool
	entryIDs  map[string]cron.EntryID
}

// NewJobScheduler создает планировщик заданий
func NewJobScheduler(config JobsConfig, deps JobsDependencies) *JobScheduler {
	return &JobScheduler{
		config:         config,
		locks:          deps.Locks,
		admission:      deps.Admission,
		cancellation:   deps.Cancellation,
		reconciliation: deps.Reconciliation,
		registry:       deps.Registry,
		pool:           deps.Pool,
		metrics:        metricsOrNoop(deps.Metrics),
		logger:         deps.Logger,
		cron:           cron.New(cron.WithSeconds()),
		entryIDs:       make(map[string]cron.EntryID),
	}
}

type job struct {
	name     string
	schedule string
	locked   bool
	run      func(ctx context.Context) error
}

func (s *JobScheduler) jobs() []job {
	jobs := []job{
		{name: JobQueueMetrics, schedule: s.config.QueueMetricsSchedule, locked: true, run: s.RefreshQueueMetrics},
		{name: JobWornOuts, schedule: s.config.WornOutSchedule, locked: true, run: s.CancelWornOuts},
	}
	if s.reconciliation != nil && s.registry != nil {
		jobs = append(jobs, job{name: JobReconcile, schedule: s.config.ReconcileSchedule, locked: true, run: s.Reconcile})
	}
	if s.registry != nil && s.pool != nil {
		jobs = append(jobs, job{name: JobHeartbeat, schedule: s.config.HeartbeatSchedule, run: s.Heartbeat})
	}
	return jobs
}

// Start регистрирует задания и запускает cron
func (s *JobScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}

	s.logger.Info("Starting job scheduler", logger.CtxField(ctx))

	// узел отмечается живым до первой сверки, иначе его задачи сочтут осиротевшими
	if s.registry != nil && s.pool != nil {
		if err := s.Heartbeat(ctx); err != nil {
			s.logger.Error("Initial heartbeat failed", logger.Error(err), logger.CtxField(ctx))
		}
	}

	for _, j := range s.jobs() {
		if j.schedule == "" {
			continue
		}
		lockFor, err := lockDuration(j.schedule)
		if err != nil {
			return errors.Wrap(err, errors.ErrValidation, "invalid job schedule").
				WithDetails(fmt.Sprintf("job: %s, schedule: %s", j.name, j.schedule)).
				WithContext(ctx)
		}

		entryID, err := s.cron.AddFunc(j.schedule, func() {
			s.runJob(context.Background(), j, lockFor)
		})
		if err != nil {
			return errors.Wrap(err, errors.ErrValidation, "failed to schedule job").
				WithDetails(fmt.Sprintf("job: %s, schedule: %s", j.name, j.schedule)).
				WithContext(ctx)
		}
		s.entryIDs[j.name] = entryID

		s.logger.Debug("Job scheduled",
			logger.String("job", j.name),
			logger.String("schedule", j.schedule),
			logger.Bool("locked", j.locked),
			logger.CtxField(ctx),
		)
	}

	s.cron.Start()
	s.isRunning = true
	s.logger.Info("Job scheduler started", logger.Int("jobs", len(s.entryIDs)), logger.CtxField(ctx))
	return nil
}

// Stop останавливает cron и ждет выполняемые задания не дольше 30 секунд
func (s *JobScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return nil
	}

	s.logger.Info("Stopping job scheduler", logger.CtxField(ctx))
	stopped := s.cron.Stop()

	select {
	case <-stopped.Done():
		s.logger.Info("Job scheduler stopped", logger.CtxField(ctx))
	case <-time.After(30 * time.Second):
		s.logger.Warn("Job scheduler stop timeout after 30 seconds", logger.CtxField(ctx))
	case <-ctx.Done():
	}

	if s.registry != nil && s.pool != nil {
		for _, workerUUID := range s.pool.WorkerUUIDs() {
			if err := s.registry.Unregister(ctx, workerUUID); err != nil {
				s.logger.Warn("Failed to unregister worker", logger.String("worker_uuid", workerUUID), logger.Error(err))
			}
		}
	}

	s.isRunning = false
	return nil
}

// IsRunning проверяет, запущен ли планировщик
func (s *JobScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Stats возвращает статистику планировщика
func (s *JobScheduler) Stats() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]string, len(s.entryIDs))
	for name, id := range s.entryIDs {
		if entry := s.cron.Entry(id); entry.Valid() {
			next[name] = entry.Next.Format(time.RFC3339)
		}
	}
	return map[string]interface{}{
		"is_running": s.isRunning,
		"jobs":       len(s.entryIDs),
		"next_run":   next,
	}
}

func (s *JobScheduler) runJob(ctx context.Context, j job, lockFor time.Duration) {
	if j.locked && !s.locks.TryLock(ctx, j.name, lockFor) {
		return
	}

	start := time.Now()
	if err := j.run(ctx); err != nil {
		s.logger.Error("Job failed",
			logger.String("job", j.name),
			logger.Error(err),
		)
		return
	}
	s.logger.Debug("Job completed",
		logger.String("job", j.name),
		logger.Duration("elapsed", time.Since(start)),
	)
}

// lockDuration вычисляет время блокировки задания: чуть меньше периода расписания,
// чтобы следующий запуск на любом узле мог снова взять блокировку
func lockDuration(schedule string) (time.Duration, error) {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(schedule)
	if err != nil {
		return 0, err
	}
	first := sched.Next(time.Now())
	period := sched.Next(first).Sub(first)
	lockFor := period * 9 / 10
	if lockFor < time.Second {
		lockFor = time.Second
	}
	return lockFor, nil
}

// RefreshQueueMetrics обновляет метрики размера очереди
func (s *JobScheduler) RefreshQueueMetrics(ctx context.Context) error {
	status, err := s.admission.Status(ctx)
	if err != nil {
		return err
	}
	s.metrics.SetQueueSize(string(domain.TaskStatusPending), float64(status.Pending))
	s.metrics.SetQueueSize(string(domain.TaskStatusInProgress), float64(status.InProgress))
	return nil
}

// CancelWornOuts отменяет задачи, которые уже запускались и вернулись в очередь
func (s *JobScheduler) CancelWornOuts(ctx context.Context) error {
	_, err := s.cancellation.CancelWornOuts(ctx)
	return err
}

// Reconcile применяет стратегию восстановления задач упавших воркеров
func (s *JobScheduler) Reconcile(ctx context.Context) error {
	count, err := s.reconciliation.Reconcile(ctx)
	if err != nil {
		return err
	}
	s.logger.Debug("Reconciliation completed",
		logger.String("strategy", s.reconciliation.Name()),
		logger.Int("orphans", count),
	)
	return nil
}

// Heartbeat отмечает воркеров узла живыми
func (s *JobScheduler) Heartbeat(ctx context.Context) error {
	for _, workerUUID := range s.pool.WorkerUUIDs() {
		if err := s.registry.Heartbeat(ctx, workerUUID, s.config.HeartbeatTTL); err != nil {
			return errors.Wrap(err, errors.ErrInternal, "failed to write heartbeat").
				WithDetails(fmt.Sprintf("worker_uuid: %s", workerUUID)).
				WithContext(ctx)
		}
	}
	return nil
}
