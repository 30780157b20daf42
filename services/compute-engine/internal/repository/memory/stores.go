package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/services/compute-engine/internal/domain"
	"AnalysisPlatform/services/compute-engine/internal/repository"
)

// PropertyStore внутренние свойства в памяти
type PropertyStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewPropertyStore создает пустое хранилище свойств
func NewPropertyStore() *PropertyStore {
	return &PropertyStore{values: make(map[string]string)}
}

func (s *PropertyStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *PropertyStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *PropertyStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// MessageStore сообщения задач в памяти
type MessageStore struct {
	mu        sync.Mutex
	messages  []*domain.TaskMessage
	dismissed map[string]*domain.DismissedMessage
}

var _ repository.MessageRepository = (*MessageStore)(nil)

// NewMessageStore создает пустое хранилище сообщений
func NewMessageStore() *MessageStore {
	return &MessageStore{dismissed: make(map[string]*domain.DismissedMessage)}
}

func (s *MessageStore) Insert(_ context.Context, message *domain.TaskMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := *message
	s.messages = append(s.messages, &m)
	return nil
}

func (s *MessageStore) ListByTask(_ context.Context, taskUUID string) ([]*domain.TaskMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*domain.TaskMessage
	for _, m := range s.messages {
		if m.TaskUUID == taskUUID {
			c := *m
			result = append(result, &c)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *MessageStore) CountWarnings(_ context.Context, taskUUIDs []string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[string]struct{}, len(taskUUIDs))
	for _, id := range taskUUIDs {
		wanted[id] = struct{}{}
	}
	counts := make(map[string]int, len(taskUUIDs))
	for _, m := range s.messages {
		if _, ok := wanted[m.TaskUUID]; ok && m.Type.IsWarning() {
			counts[m.TaskUUID]++
		}
	}
	return counts, nil
}

func dismissedKey(userUUID, projectUUID string, t domain.MessageType) string {
	return userUUID + "|" + projectUUID + "|" + string(t)
}

func (s *MessageStore) InsertDismissed(_ context.Context, dismissed *domain.DismissedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := dismissedKey(dismissed.UserUUID, dismissed.ProjectUUID, dismissed.Type)
	if _, ok := s.dismissed[key]; !ok {
		d := *dismissed
		s.dismissed[key] = &d
	}
	return nil
}

func (s *MessageStore) ListDismissed(_ context.Context, userUUID, projectUUID string) ([]domain.MessageType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var types []domain.MessageType
	for _, d := range s.dismissed {
		if d.UserUUID == userUUID && d.ProjectUUID == projectUUID {
			types = append(types, d.Type)
		}
	}
	return types, nil
}

// LockStore блокировки в памяти с учетом времени жизни
type LockStore struct {
	mu    sync.Mutex
	locks map[string]domain.LockInfo
	now   func() time.Time
}

var _ repository.LockRepository = (*LockStore)(nil)

// NewLockStore создает пустое хранилище блокировок
func NewLockStore(now func() time.Time) *LockStore {
	if now == nil {
		now = time.Now
	}
	return &LockStore{locks: make(map[string]domain.LockInfo), now: now}
}

// TryLock берет блокировку, только если она свободна или просрочена.
// Повторный вызов того же владельца до истечения срока тоже получает отказ.
func (s *LockStore) TryLock(ctx context.Context, name, holder string, ttl time.Duration) (*domain.LockInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if current, ok := s.locks[name]; ok && current.ExpiresAt.After(now) {
		return nil, errors.New(errors.ErrConflict, "lock already acquired").
			WithDetails(fmt.Sprintf("name: %s", name)).
			WithContext(ctx)
	}
	info := domain.LockInfo{Name: name, Holder: holder, LockedAt: now, ExpiresAt: now.Add(ttl)}
	s.locks[name] = info
	return &info, nil
}

func (s *LockStore) Release(_ context.Context, name, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.locks[name]; ok && current.Holder == holder {
		delete(s.locks, name)
	}
	return nil
}

// WorkerRegistry реестр воркеров в памяти
type WorkerRegistry struct {
	mu      sync.Mutex
	workers map[string]time.Time
	now     func() time.Time
}

var _ repository.WorkerRegistry = (*WorkerRegistry)(nil)

// NewWorkerRegistry создает пустой реестр
func NewWorkerRegistry(now func() time.Time) *WorkerRegistry {
	if now == nil {
		now = time.Now
	}
	return &WorkerRegistry{workers: make(map[string]time.Time), now: now}
}

func (r *WorkerRegistry) Heartbeat(_ context.Context, workerUUID string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[workerUUID] = r.now().Add(ttl)
	return nil
}

func (r *WorkerRegistry) Unregister(_ context.Context, workerUUID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workers, workerUUID)
	return nil
}

func (r *WorkerRegistry) AliveWorkers(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var alive []string
	for id, expires := range r.workers {
		if expires.After(now) {
			alive = append(alive, id)
		}
	}
	sort.Strings(alive)
	return alive, nil
}

// ProjectStore проекты в памяти
type ProjectStore struct {
	mu       sync.Mutex
	projects map[string]*domain.Project
}

var _ repository.ProjectRepository = (*ProjectStore)(nil)

// NewProjectStore создает пустое хранилище проектов
func NewProjectStore() *ProjectStore {
	return &ProjectStore{projects: make(map[string]*domain.Project)}
}

func (s *ProjectStore) GetOrCreate(_ context.Context, key, name string) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.projects[key]; ok {
		c := *p
		return &c, nil
	}
	if name == "" {
		name = key
	}
	p := &domain.Project{UUID: uuid.NewString(), Key: key, Name: name, CreatedAt: time.Now()}
	s.projects[key] = p
	c := *p
	return &c, nil
}

func (s *ProjectStore) GetByKey(ctx context.Context, key string) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.projects[key]; ok {
		c := *p
		return &c, nil
	}
	return nil, errors.New(errors.ErrNotFound, "project not found").
		WithDetails(fmt.Sprintf("key: %s", key)).
		WithContext(ctx)
}
