package postgres

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/services/compute-engine/internal/repository"
)

// PropertyRepository реализация внутренних свойств в PostgreSQL
type PropertyRepository struct {
	db DB
}

// NewPropertyRepository создает новый экземпляр PropertyRepository
func NewPropertyRepository(db DB) repository.PropertyRepository {
	return &PropertyRepository{db: db}
}

// Get возвращает значение свойства
func (r *PropertyRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRow(ctx, `SELECT text_value FROM internal_properties WHERE kee = $1`, key).Scan(&value)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, errors.Wrap(err, errors.ErrInternal, "failed to get internal property").
			WithDetails(fmt.Sprintf("key: %s", key)).
			WithContext(ctx)
	}
	return value, true, nil
}

// Set сохраняет значение свойства
func (r *PropertyRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO internal_properties (kee, text_value, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (kee) DO UPDATE SET text_value = EXCLUDED.text_value`, key, value)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to set internal property").
			WithDetails(fmt.Sprintf("key: %s", key)).
			WithContext(ctx)
	}
	return nil
}

// Delete удаляет свойство
func (r *PropertyRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM internal_properties WHERE kee = $1`, key); err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to delete internal property").
			WithDetails(fmt.Sprintf("key: %s", key)).
			WithContext(ctx)
	}
	return nil
}
