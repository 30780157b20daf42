package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/services/compute-engine/internal/domain"
	"AnalysisPlatform/services/compute-engine/internal/repository"
)

// TaskStore очередь и история задач в памяти процесса.
// Используется в тестах и при локальном запуске на одном узле.
// Свойство паузы читается из связанного PropertyStore так же, как это делает запрос захвата в PostgreSQL.
type TaskStore struct {
	mu         sync.Mutex
	queue      []*domain.Task
	activity   []*domain.Task
	inputs     map[string][]byte
	properties *PropertyStore
}

var (
	_ repository.QueueRepository         = (*TaskStore)(nil)
	_ repository.TaskLifecycleRepository = (*TaskStore)(nil)
	_ repository.ActivityRepository      = (*TaskStore)(nil)
)

// NewTaskStore создает пустое хранилище
func NewTaskStore(properties *PropertyStore) *TaskStore {
	if properties == nil {
		properties = NewPropertyStore()
	}
	return &TaskStore{
		inputs:     make(map[string][]byte),
		properties: properties,
	}
}

func cloneTask(t *domain.Task) *domain.Task {
	c := *t
	if t.Characteristics != nil {
		c.Characteristics = domain.FromPairs(t.Characteristics)
	}
	if t.Component != nil {
		comp := *t.Component
		c.Component = &comp
	}
	return &c
}

// Insert ставит задачу в очередь
func (s *TaskStore) Insert(_ context.Context, submission *domain.TaskSubmission, now time.Time) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertLocked(submission, now), nil
}

// InsertIfNoTaskForEntity ставит задачу, только если у проекта нет задач в очереди
func (s *TaskStore) InsertIfNoTaskForEntity(ctx context.Context, submission *domain.TaskSubmission, now time.Time) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if submission.Component != nil && s.hasEntityLocked(submission.Component.EntityUUID) {
		return nil, errors.New(errors.ErrConflict, "a task is already queued for this project").
			WithDetails(fmt.Sprintf("entity_uuid: %s", submission.Component.EntityUUID)).
			WithContext(ctx)
	}
	return s.insertLocked(submission, now), nil
}

// InsertMany ставит задачи атомарно
func (s *TaskStore) InsertMany(_ context.Context, submissions []*domain.TaskSubmission, unique bool, now time.Time) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tasks []*domain.Task
	for _, submission := range submissions {
		if unique && submission.Component != nil && s.hasEntityLocked(submission.Component.EntityUUID) {
			continue
		}
		tasks = append(tasks, s.insertLocked(submission, now))
	}
	return tasks, nil
}

func (s *TaskStore) insertLocked(submission *domain.TaskSubmission, now time.Time) *domain.Task {
	task := submission.ToTask(now)
	s.queue = append(s.queue, cloneTask(task))
	if submission.Input != nil {
		s.inputs[task.UUID] = append([]byte(nil), submission.Input...)
	}
	return task
}

func (s *TaskStore) hasEntityLocked(entityUUID string) bool {
	for _, t := range s.queue {
		if t.EntityUUID() == entityUUID {
			return true
		}
	}
	return false
}

// Get возвращает задачу из очереди
func (s *TaskStore) Get(ctx context.Context, taskUUID string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.queue {
		if t.UUID == taskUUID {
			return cloneTask(t), nil
		}
	}
	return nil, errors.New(errors.ErrNotFound, "task not found in queue").
		WithDetails(fmt.Sprintf("task_uuid: %s", taskUUID)).
		WithContext(ctx)
}

// ListByComponent возвращает задачи очереди компонента или проекта
func (s *TaskStore) ListByComponent(_ context.Context, componentUUID string) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.Task
	for _, t := range s.queue {
		if t.ComponentUUID() == componentUUID || t.EntityUUID() == componentUUID {
			result = append(result, cloneTask(t))
		}
	}
	return result, nil
}

// ListInProgress возвращает задачи в работе
func (s *TaskStore) ListInProgress(_ context.Context) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.Task
	for _, t := range s.queue {
		if t.Status == domain.TaskStatusInProgress {
			result = append(result, cloneTask(t))
		}
	}
	return result, nil
}

// Claim отдает воркеру самую старую доступную задачу
func (s *TaskStore) Claim(ctx context.Context, workerUUID string, now time.Time) (*domain.Task, error) {
	if paused, _, _ := s.properties.Get(ctx, repository.PropertyPauseWorkers); paused == "true" {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	busy := make(map[string]struct{})
	for _, t := range s.queue {
		if t.Status == domain.TaskStatusInProgress && t.EntityUUID() != "" {
			busy[t.EntityUUID()] = struct{}{}
		}
	}

	// очередь хранится в порядке постановки
	for _, t := range s.queue {
		if t.Status != domain.TaskStatusPending || t.ExecutionCount != 0 {
			continue
		}
		if _, ok := busy[t.EntityUUID()]; ok && t.EntityUUID() != "" {
			continue
		}
		t.MarkInProgress(workerUUID, now)
		return cloneTask(t), nil
	}
	return nil, nil
}

// CountByStatus возвращает количество задач очереди по статусам
func (s *TaskStore) CountByStatus(_ context.Context) (map[domain.TaskStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := map[domain.TaskStatus]int{domain.TaskStatusPending: 0, domain.TaskStatusInProgress: 0}
	for _, t := range s.queue {
		counts[t.Status]++
	}
	return counts, nil
}

// OldestPendingCreatedAt возвращает время постановки самой старой задачи в PENDING
func (s *TaskStore) OldestPendingCreatedAt(_ context.Context) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.queue {
		if t.Status == domain.TaskStatusPending {
			created := t.CreatedAt
			return &created, nil
		}
	}
	return nil, nil
}

// ResetForWorker возвращает задачи воркера в PENDING
func (s *TaskStore) ResetForWorker(_ context.Context, workerUUID string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.resetLocked(func(t *domain.Task) bool { return t.WorkerUUID == workerUUID }, now), nil
}

// ResetUnknownWorkers возвращает в PENDING задачи воркеров не из списка
func (s *TaskStore) ResetUnknownWorkers(_ context.Context, knownWorkers []string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	known := make(map[string]struct{}, len(knownWorkers))
	for _, w := range knownWorkers {
		known[w] = struct{}{}
	}
	return s.resetLocked(func(t *domain.Task) bool {
		_, ok := known[t.WorkerUUID]
		return !ok
	}, now), nil
}

func (s *TaskStore) resetLocked(match func(*domain.Task) bool, now time.Time) int {
	count := 0
	for _, t := range s.queue {
		if t.Status != domain.TaskStatusInProgress || !match(t) {
			continue
		}
		t.Status = domain.TaskStatusPending
		t.WorkerUUID = ""
		t.StartedAt = nil
		t.UpdatedAt = now
		count++
	}
	return count
}

// GetInput возвращает входные данные задачи
func (s *TaskStore) GetInput(ctx context.Context, taskUUID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.inputs[taskUUID]
	if !ok {
		return nil, errors.New(errors.ErrNotFound, "task input not found").
			WithDetails(fmt.Sprintf("task_uuid: %s", taskUUID)).
			WithContext(ctx)
	}
	return data, nil
}

// Finish переносит задачу воркера из очереди в историю
func (s *TaskStore) Finish(ctx context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, t := range s.queue {
		if t.UUID != task.UUID {
			continue
		}
		if t.Status != domain.TaskStatusInProgress || t.WorkerUUID != task.WorkerUUID {
			break
		}
		s.queue = append(s.queue[:i], s.queue[i+1:]...)
		s.activity = append(s.activity, cloneTask(task))
		delete(s.inputs, task.UUID)
		return nil
	}
	return errors.New(errors.ErrConflict, "task is no longer in progress for this worker").
		WithDetails(fmt.Sprintf("task_uuid: %s, worker_uuid: %s", task.UUID, task.WorkerUUID)).
		WithContext(ctx)
}

// CancelPending отменяет задачу в PENDING
func (s *TaskStore) CancelPending(_ context.Context, taskUUID string, now time.Time) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	canceled := s.cancelLocked(func(t *domain.Task) bool { return t.UUID == taskUUID }, now)
	if len(canceled) == 0 {
		return nil, nil
	}
	return canceled[0], nil
}

// CancelAllPending отменяет все задачи в PENDING
func (s *TaskStore) CancelAllPending(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.cancelLocked(func(*domain.Task) bool { return true }, now)), nil
}

// CancelWornOut отменяет задачи в PENDING, которые уже запускались
func (s *TaskStore) CancelWornOut(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.cancelLocked(func(t *domain.Task) bool { return t.ExecutionCount >= 1 }, now)), nil
}

func (s *TaskStore) cancelLocked(match func(*domain.Task) bool, now time.Time) []*domain.Task {
	var canceled []*domain.Task
	kept := s.queue[:0]
	for _, t := range s.queue {
		if t.Status == domain.TaskStatusPending && match(t) {
			t.Cancel(now)
			s.activity = append(s.activity, t)
			delete(s.inputs, t.UUID)
			canceled = append(canceled, cloneTask(t))
			continue
		}
		kept = append(kept, t)
	}
	s.queue = kept
	return canceled
}

// GetActivity возвращает задачу из истории
func (s *TaskStore) GetActivity(ctx context.Context, taskUUID string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.activity {
		if t.UUID == taskUUID {
			return cloneTask(t), nil
		}
	}
	return nil, errors.New(errors.ErrNotFound, "task not found").
		WithDetails(fmt.Sprintf("task_uuid: %s", taskUUID)).
		WithContext(ctx)
}

// LastForComponent возвращает последнюю завершенную задачу компонента
func (s *TaskStore) LastForComponent(ctx context.Context, componentUUID string) (*domain.Task, error) {
	tasks, _ := s.List(ctx, repository.ActivityFilter{ComponentUUID: componentUUID, Limit: 1})
	if len(tasks) == 0 {
		return nil, nil
	}
	return tasks[0], nil
}

// List возвращает историю по фильтру, новые задачи первыми
func (s *TaskStore) List(_ context.Context, filter repository.ActivityFilter) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make(map[domain.TaskStatus]struct{}, len(filter.Statuses))
	for _, st := range filter.Statuses {
		statuses[st] = struct{}{}
	}

	var result []*domain.Task
	for _, t := range s.activity {
		if filter.ComponentUUID != "" && t.ComponentUUID() != filter.ComponentUUID {
			continue
		}
		if _, ok := statuses[t.Status]; len(statuses) > 0 && !ok {
			continue
		}
		if filter.Type != "" && t.Type != filter.Type {
			continue
		}
		result = append(result, cloneTask(t))
	}

	sort.SliceStable(result, func(i, j int) bool {
		return executedAt(result[i]).After(executedAt(result[j]))
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func executedAt(t *domain.Task) time.Time {
	if t.ExecutedAt != nil {
		return *t.ExecutedAt
	}
	return t.CreatedAt
}
