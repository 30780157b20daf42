package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/services/compute-engine/internal/domain"
	"AnalysisPlatform/services/compute-engine/internal/repository"
)

// LockRepository кластерные блокировки на строках таблицы ce_locks.
// Просроченную блокировку может забрать любой узел.
type LockRepository struct {
	db  DB
	now func() time.Time
}

// NewLockRepository создает новый экземпляр LockRepository
func NewLockRepository(db DB) repository.LockRepository {
	return &LockRepository{db: db, now: time.Now}
}

// TryLock берет блокировку, если строки нет или срок прежней блокировки истек.
// Владелец не продлевает свою блокировку повторным вызовом.
func (r *LockRepository) TryLock(ctx context.Context, name, holder string, ttl time.Duration) (*domain.LockInfo, error) {
	now := r.now()
	info := &domain.LockInfo{Name: name, Holder: holder, LockedAt: now, ExpiresAt: now.Add(ttl)}

	var acquiredBy string
	err := r.db.QueryRow(ctx, `
		INSERT INTO ce_locks (name, holder, locked_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE
			SET holder = EXCLUDED.holder, locked_at = EXCLUDED.locked_at, expires_at = EXCLUDED.expires_at
			WHERE ce_locks.expires_at < EXCLUDED.locked_at
		RETURNING holder`, name, holder, now, info.ExpiresAt).Scan(&acquiredBy)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New(errors.ErrConflict, "lock already acquired").
				WithDetails(fmt.Sprintf("name: %s", name)).
				WithContext(ctx)
		}
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to acquire lock").
			WithDetails(fmt.Sprintf("name: %s, holder: %s", name, holder)).
			WithContext(ctx)
	}

	return info, nil
}

// Release освобождает блокировку владельца
func (r *LockRepository) Release(ctx context.Context, name, holder string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM ce_locks WHERE name = $1 AND holder = $2`, name, holder)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to release lock").
			WithDetails(fmt.Sprintf("name: %s, holder: %s", name, holder)).
			WithContext(ctx)
	}
	return nil
}
