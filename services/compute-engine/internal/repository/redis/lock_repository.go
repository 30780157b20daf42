package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/services/compute-engine/internal/domain"
	"AnalysisPlatform/services/compute-engine/internal/repository"
)

// releaseScript удаляет ключ, только если блокировка принадлежит holder
var releaseScript = redis.NewScript(`
local data = redis.call("GET", KEYS[1])
if not data then
	return 0
end
local info = cjson.decode(data)
if info["holder"] == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLockRepository реализация LockRepository с использованием Redis
type RedisLockRepository struct {
	client *redis.Client
}

// NewRedisLockRepository создает новый экземпляр RedisLockRepository
func NewRedisLockRepository(client *redis.Client) repository.LockRepository {
	return &RedisLockRepository{
		client: client,
	}
}

func lockKey(name string) string {
	return fmt.Sprintf("ce:lock:%s", name)
}

// TryLock пытается получить блокировку
func (r *RedisLockRepository) TryLock(ctx context.Context, name, holder string, ttl time.Duration) (*domain.LockInfo, error) {
	now := time.Now()
	lockInfo := &domain.LockInfo{
		Name:      name,
		Holder:    holder,
		LockedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	lockData, err := json.Marshal(lockInfo)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to marshal lock info").
			WithContext(ctx)
	}

	// SET NX с временем жизни: блокировка снимается сама, если узел умер
	acquired, err := r.client.SetNX(ctx, lockKey(name), lockData, ttl).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to acquire lock").
			WithDetails(fmt.Sprintf("name: %s, holder: %s", name, holder)).
			WithContext(ctx)
	}

	if !acquired {
		return nil, errors.New(errors.ErrConflict, "lock already acquired").
			WithDetails(fmt.Sprintf("name: %s", name)).
			WithContext(ctx)
	}

	return lockInfo, nil
}

// Release освобождает блокировку, если она принадлежит holder
func (r *RedisLockRepository) Release(ctx context.Context, name, holder string) error {
	if err := releaseScript.Run(ctx, r.client, []string{lockKey(name)}, holder).Err(); err != nil && err != redis.Nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to release lock").
			WithDetails(fmt.Sprintf("name: %s, holder: %s", name, holder)).
			WithContext(ctx)
	}
	return nil
}
