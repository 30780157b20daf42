package service

import (
	"context"
	"time"

	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/pkg/logger"
	"AnalysisPlatform/services/compute-engine/internal/repository"
)

// LockManager кластерные блокировки для периодических заданий.
// Блокировка рекомендательная: занятая блокировка означает, что работу в этот раз делает другой узел.
type LockManager struct {
	repo    repository.LockRepository
	holder  string
	metrics MetricsRecorder
	logger  logger.Logger
}

// NewLockManager создает LockManager; holder идентифицирует узел
func NewLockManager(repo repository.LockRepository, holder string, metrics MetricsRecorder, log logger.Logger) *LockManager {
	return &LockManager{
		repo:    repo,
		holder:  holder,
		metrics: metricsOrNoop(metrics),
		logger:  log,
	}
}

// Holder возвращает идентификатор владельца блокировок этого узла
func (m *LockManager) Holder() string {
	return m.holder
}

// TryLock берет блокировку name на duration и не ждет, если она занята.
// Блокировка истекает сама, даже если ее не освободили.
// Ошибки хранилища логируются и считаются неудачей захвата.
func (m *LockManager) TryLock(ctx context.Context, name string, duration time.Duration) bool {
	if duration <= 0 {
		m.logger.Warn("Lock duration must be positive",
			logger.String("lock", name),
			logger.Duration("duration", duration),
			logger.CtxField(ctx),
		)
		return false
	}

	info, err := m.repo.TryLock(ctx, name, m.holder, duration)
	if err != nil {
		m.metrics.ObserveLock(name, false)
		if errors.IsCode(err, errors.ErrConflict) {
			m.logger.Debug("Lock is already held",
				logger.String("lock", name),
				logger.CtxField(ctx),
			)
			return false
		}
		m.logger.Error("Failed to acquire lock",
			logger.String("lock", name),
			logger.String("holder", m.holder),
			logger.Error(err),
			logger.CtxField(ctx),
		)
		return false
	}

	m.metrics.ObserveLock(name, true)
	m.logger.Debug("Lock acquired",
		logger.String("lock", name),
		logger.String("holder", m.holder),
		logger.String("expires_at", info.ExpiresAt.Format(time.RFC3339)),
		logger.CtxField(ctx),
	)
	return true
}

// Release освобождает блокировку раньше срока
func (m *LockManager) Release(ctx context.Context, name string) {
	if err := m.repo.Release(ctx, name, m.holder); err != nil {
		m.logger.Error("Failed to release lock",
			logger.String("lock", name),
			logger.String("holder", m.holder),
			logger.Error(err),
			logger.CtxField(ctx),
		)
	}
}
