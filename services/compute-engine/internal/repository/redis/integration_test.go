package redis

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"AnalysisPlatform/pkg/errors"
)

// setupRedis поднимает Redis в контейнере
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })

	require.Eventually(t, func() bool { return client.Ping(ctx).Err() == nil }, 10*time.Second, 200*time.Millisecond)
	return client
}

func TestRedis_Locks(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	locks := NewRedisLockRepository(client)

	info, err := locks.TryLock(ctx, "ce.reconcile", "node-1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "node-1", info.Holder)

	_, err = locks.TryLock(ctx, "ce.reconcile", "node-2", time.Minute)
	assert.True(t, errors.IsCode(err, errors.ErrConflict))

	_, err = locks.TryLock(ctx, "ce.reconcile", "node-1", time.Minute)
	assert.True(t, errors.IsCode(err, errors.ErrConflict))

	// чужой владелец не снимает блокировку
	require.NoError(t, locks.Release(ctx, "ce.reconcile", "node-2"))
	exists, err := client.Exists(ctx, lockKey("ce.reconcile")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)

	require.NoError(t, locks.Release(ctx, "ce.reconcile", "node-1"))
	exists, err = client.Exists(ctx, lockKey("ce.reconcile")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)

	// освобождение отсутствующей блокировки не ошибка
	require.NoError(t, locks.Release(ctx, "ce.reconcile", "node-1"))

	_, err = locks.TryLock(ctx, "ce.reconcile", "node-2", time.Minute)
	require.NoError(t, err)
}

func TestRedis_Locks_Expire(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	locks := NewRedisLockRepository(client)

	_, err := locks.TryLock(ctx, "ce.worn-outs", "node-1", 500*time.Millisecond)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := locks.TryLock(ctx, "ce.worn-outs", "node-2", time.Minute)
		return err == nil
	}, 5*time.Second, 100*time.Millisecond)
}

func TestRedis_WorkerRegistry(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	registry := NewWorkerRegistry(client)

	workers, err := registry.AliveWorkers(ctx)
	require.NoError(t, err)
	assert.Empty(t, workers)

	// больше одной страницы SCAN
	for i := 0; i < 150; i++ {
		require.NoError(t, registry.Heartbeat(ctx, fmt.Sprintf("worker-%03d", i), time.Minute))
	}
	require.NoError(t, client.Set(ctx, "ce:lock:other", "x", time.Minute).Err())

	workers, err = registry.AliveWorkers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 150)
	sort.Strings(workers)
	assert.Equal(t, "worker-000", workers[0])
	assert.Equal(t, "worker-149", workers[149])

	require.NoError(t, registry.Unregister(ctx, "worker-000"))
	workers, err = registry.AliveWorkers(ctx)
	require.NoError(t, err)
	assert.Len(t, workers, 149)
	assert.NotContains(t, workers, "worker-000")

	require.NoError(t, registry.Heartbeat(ctx, "short-lived", 500*time.Millisecond))
	require.Eventually(t, func() bool {
		workers, err := registry.AliveWorkers(ctx)
		return err == nil && len(workers) == 149
	}, 5*time.Second, 100*time.Millisecond)
}
