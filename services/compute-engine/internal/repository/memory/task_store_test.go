package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/services/compute-engine/internal/domain"
	"AnalysisPlatform/services/compute-engine/internal/repository"
)

func submit(t *testing.T, s *TaskStore, component *domain.Component, at time.Time) *domain.Task {
	t.Helper()
	task, err := s.Insert(context.Background(), domain.NewTaskSubmission(domain.TaskTypeReport, component, "user"), at)
	require.NoError(t, err)
	return task
}

func TestTaskStore_ClaimOldestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(nil)
	base := time.Now()
	first := submit(t, s, domain.NewComponent("a", ""), base)
	submit(t, s, domain.NewComponent("b", ""), base.Add(time.Second))

	claimed, err := s.Claim(ctx, "w1", base.Add(2*time.Second))

	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, first.UUID, claimed.UUID)
	assert.Equal(t, domain.TaskStatusInProgress, claimed.Status)
	assert.Equal(t, 1, claimed.ExecutionCount)
	assert.Equal(t, "w1", claimed.WorkerUUID)
}

func TestTaskStore_ClaimSkipsBusyEntity(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(nil)
	base := time.Now()
	submit(t, s, domain.NewComponent("branch-1", "proj"), base)
	submit(t, s, domain.NewComponent("branch-2", "proj"), base.Add(time.Second))
	other := submit(t, s, domain.NewComponent("x", ""), base.Add(2*time.Second))

	_, err := s.Claim(ctx, "w1", base)
	require.NoError(t, err)

	claimed, err := s.Claim(ctx, "w2", base)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, other.UUID, claimed.UUID)

	claimed, err = s.Claim(ctx, "w3", base)
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestTaskStore_ClaimRespectsPause(t *testing.T) {
	ctx := context.Background()
	props := NewPropertyStore()
	s := NewTaskStore(props)
	submit(t, s, nil, time.Now())

	require.NoError(t, props.Set(ctx, repository.PropertyPauseWorkers, "true"))
	claimed, err := s.Claim(ctx, "w1", time.Now())
	require.NoError(t, err)
	assert.Nil(t, claimed)

	require.NoError(t, props.Delete(ctx, repository.PropertyPauseWorkers))
	claimed, err = s.Claim(ctx, "w1", time.Now())
	require.NoError(t, err)
	assert.NotNil(t, claimed)
}

func TestTaskStore_ConcurrentClaimsAreExclusive(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(nil)
	for i := 0; i < 50; i++ {
		submit(t, s, nil, time.Now())
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, err := s.Claim(ctx, "w", time.Now())
				if err != nil || task == nil {
					return
				}
				mu.Lock()
				seen[task.UUID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 50)
	for id, n := range seen {
		assert.Equal(t, 1, n, id)
	}
}

func TestTaskStore_FinishMovesToActivity(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(nil)
	submit(t, s, domain.NewComponent("c", ""), time.Now())
	task, _ := s.Claim(ctx, "w1", time.Now())

	task.Complete("analysis", time.Now())
	require.NoError(t, s.Finish(ctx, task))

	_, err := s.Get(ctx, task.UUID)
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))
	stored, err := s.GetActivity(ctx, task.UUID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusSuccess, stored.Status)

	err = s.Finish(ctx, task)
	assert.True(t, errors.IsCode(err, errors.ErrConflict))
}

func TestTaskStore_CancelPendingOnly(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(nil)
	submit(t, s, domain.NewComponent("a", ""), time.Now())
	submit(t, s, domain.NewComponent("b", ""), time.Now().Add(time.Millisecond))
	inProgress, _ := s.Claim(ctx, "w1", time.Now())

	canceled, err := s.CancelPending(ctx, inProgress.UUID, time.Now())
	require.NoError(t, err)
	assert.Nil(t, canceled, "in-progress task is not canceled")

	canceled, err = s.CancelPending(ctx, "missing", time.Now())
	require.NoError(t, err)
	assert.Nil(t, canceled)

	n, err := s.CancelAllPending(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	counts, _ := s.CountByStatus(ctx)
	assert.Equal(t, 0, counts[domain.TaskStatusPending])
	assert.Equal(t, 1, counts[domain.TaskStatusInProgress])
}

func TestTaskStore_ResetAndWornOut(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(nil)
	submit(t, s, nil, time.Now())
	task, _ := s.Claim(ctx, "dead-worker", time.Now())

	n, err := s.ResetUnknownWorkers(ctx, []string{"alive"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	reset, err := s.Get(ctx, task.UUID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, reset.Status)
	assert.Equal(t, 1, reset.ExecutionCount, "execution count survives reset")

	again, err := s.Claim(ctx, "alive", time.Now())
	require.NoError(t, err)
	assert.Nil(t, again, "a task that already ran is never offered again")

	n, err = s.CancelWornOut(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	canceled, err := s.GetActivity(ctx, task.UUID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCanceled, canceled.Status)
}

func TestTaskStore_InsertIfNoTaskForEntity(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(nil)
	component := domain.NewComponent("branch", "proj")

	_, err := s.InsertIfNoTaskForEntity(ctx, domain.NewTaskSubmission(domain.TaskTypeReport, component, ""), time.Now())
	require.NoError(t, err)

	_, err = s.InsertIfNoTaskForEntity(ctx, domain.NewTaskSubmission(domain.TaskTypeReport, domain.NewComponent("other", "proj"), ""), time.Now())
	assert.True(t, errors.IsCode(err, errors.ErrConflict))
}
