package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/services/compute-engine/internal/repository"
)

const workerKeyPrefix = "ce:worker:"

// WorkerRegistry реестр живых воркеров на ключах с TTL
type WorkerRegistry struct {
	client *redis.Client
}

// NewWorkerRegistry создает новый экземпляр WorkerRegistry
func NewWorkerRegistry(client *redis.Client) repository.WorkerRegistry {
	return &WorkerRegistry{client: client}
}

// Heartbeat продлевает отметку воркера
func (r *WorkerRegistry) Heartbeat(ctx context.Context, workerUUID string, ttl time.Duration) error {
	if err := r.client.Set(ctx, workerKeyPrefix+workerUUID, time.Now().UTC().Format(time.RFC3339), ttl).Err(); err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to record worker heartbeat").
			WithDetails(fmt.Sprintf("worker_uuid: %s", workerUUID)).
			WithContext(ctx)
	}
	return nil
}

// Unregister удаляет отметку воркера
func (r *WorkerRegistry) Unregister(ctx context.Context, workerUUID string) error {
	if err := r.client.Del(ctx, workerKeyPrefix+workerUUID).Err(); err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to unregister worker").
			WithDetails(fmt.Sprintf("worker_uuid: %s", workerUUID)).
			WithContext(ctx)
	}
	return nil
}

// AliveWorkers возвращает воркеров с действующей отметкой.
// SCAN может вернуть ключ повторно, поэтому результат без дублей.
func (r *WorkerRegistry) AliveWorkers(ctx context.Context) ([]string, error) {
	var workers []string
	seen := make(map[string]struct{})
	iter := r.client.Scan(ctx, 0, workerKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		worker := strings.TrimPrefix(iter.Val(), workerKeyPrefix)
		if _, ok := seen[worker]; ok {
			continue
		}
		seen[worker] = struct{}{}
		workers = append(workers, worker)
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to list alive workers").WithContext(ctx)
	}
	return workers, nil
}
