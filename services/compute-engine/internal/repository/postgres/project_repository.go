package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/services/compute-engine/internal/domain"
	"AnalysisPlatform/services/compute-engine/internal/repository"
)

// ProjectRepository реализация хранилища проектов в PostgreSQL
type ProjectRepository struct {
	db DB
}

// NewProjectRepository создает новый экземпляр ProjectRepository
func NewProjectRepository(db DB) repository.ProjectRepository {
	return &ProjectRepository{db: db}
}

// GetOrCreate возвращает проект по ключу, создавая его при отсутствии.
// Имя существующего проекта не меняется.
func (r *ProjectRepository) GetOrCreate(ctx context.Context, key, name string) (*domain.Project, error) {
	if name == "" {
		name = key
	}

	var p domain.Project
	err := r.db.QueryRow(ctx, `
		INSERT INTO projects (uuid, kee, name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (kee) DO UPDATE SET kee = EXCLUDED.kee
		RETURNING uuid, kee, name, created_at`,
		uuid.NewString(), key, name, time.Now()).Scan(&p.UUID, &p.Key, &p.Name, &p.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to get or create project").
			WithDetails(fmt.Sprintf("key: %s", key)).
			WithContext(ctx)
	}
	return &p, nil
}

// GetByKey возвращает проект по ключу
func (r *ProjectRepository) GetByKey(ctx context.Context, key string) (*domain.Project, error) {
	var p domain.Project
	err := r.db.QueryRow(ctx, `SELECT uuid, kee, name, created_at FROM projects WHERE kee = $1`, key).
		Scan(&p.UUID, &p.Key, &p.Name, &p.CreatedAt)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New(errors.ErrNotFound, "project not found").
				WithDetails(fmt.Sprintf("key: %s", key)).
				WithContext(ctx)
		}
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to get project").WithContext(ctx)
	}
	return &p, nil
}
