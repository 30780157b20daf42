package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/services/compute-engine/internal/qualitygate"
	"AnalysisPlatform/services/compute-engine/internal/repository"
)

// QualityGateStore quality gate в памяти
type QualityGateStore struct {
	mu          sync.Mutex
	gates       map[int64]*qualitygate.QualityGate
	conditionOf map[int64]int64
	projects    map[string]int64
	nextID      int64
}

var _ repository.QualityGateRepository = (*QualityGateStore)(nil)

// NewQualityGateStore создает пустое хранилище
func NewQualityGateStore() *QualityGateStore {
	return &QualityGateStore{
		gates:       make(map[int64]*qualitygate.QualityGate),
		conditionOf: make(map[int64]int64),
		projects:    make(map[string]int64),
	}
}

func cloneGate(g *qualitygate.QualityGate) *qualitygate.QualityGate {
	c := *g
	c.Conditions = append([]qualitygate.Condition{}, g.Conditions...)
	return &c
}

func gateNotFound(ctx context.Context, details string) error {
	return errors.New(errors.ErrNotFound, "quality gate not found").WithDetails(details).WithContext(ctx)
}

func (s *QualityGateStore) Create(ctx context.Context, name string) (*qualitygate.QualityGate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.gates {
		if g.Name == name {
			return nil, errors.New(errors.ErrConflict, "Name has already been taken").
				WithDetails(fmt.Sprintf("name: %s", name)).
				WithContext(ctx)
		}
	}
	s.nextID++
	g := &qualitygate.QualityGate{ID: s.nextID, Name: name, Conditions: []qualitygate.Condition{}}
	s.gates[g.ID] = g
	return cloneGate(g), nil
}

func (s *QualityGateStore) Get(ctx context.Context, id int64) (*qualitygate.QualityGate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.gates[id]; ok {
		return cloneGate(g), nil
	}
	return nil, gateNotFound(ctx, fmt.Sprintf("id: %d", id))
}

func (s *QualityGateStore) GetByName(ctx context.Context, name string) (*qualitygate.QualityGate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.gates {
		if g.Name == name {
			return cloneGate(g), nil
		}
	}
	return nil, gateNotFound(ctx, fmt.Sprintf("name: %s", name))
}

func (s *QualityGateStore) List(_ context.Context) ([]*qualitygate.QualityGate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]*qualitygate.QualityGate, 0, len(s.gates))
	for _, g := range s.gates {
		result = append(result, cloneGate(g))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *QualityGateStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gates[id]
	if !ok {
		return gateNotFound(ctx, fmt.Sprintf("id: %d", id))
	}
	for _, c := range g.Conditions {
		delete(s.conditionOf, c.ID)
	}
	for project, gateID := range s.projects {
		if gateID == id {
			delete(s.projects, project)
		}
	}
	delete(s.gates, id)
	return nil
}

func (s *QualityGateStore) SetDefault(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.gates[id]; !ok {
		return gateNotFound(ctx, fmt.Sprintf("id: %d", id))
	}
	for gid, g := range s.gates {
		g.IsDefault = gid == id
	}
	return nil
}

func (s *QualityGateStore) GetDefault(ctx context.Context) (*qualitygate.QualityGate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.gates {
		if g.IsDefault {
			return cloneGate(g), nil
		}
	}
	return nil, gateNotFound(ctx, "default")
}

func (s *QualityGateStore) AssignProject(ctx context.Context, projectUUID string, gateID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.gates[gateID]; !ok {
		return gateNotFound(ctx, fmt.Sprintf("id: %d", gateID))
	}
	s.projects[projectUUID] = gateID
	return nil
}

func (s *QualityGateStore) UnassignProject(_ context.Context, projectUUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.projects, projectUUID)
	return nil
}

func (s *QualityGateStore) GetForProject(ctx context.Context, projectUUID string) (*qualitygate.QualityGate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.projects[projectUUID]; ok {
		return cloneGate(s.gates[id]), nil
	}
	return nil, gateNotFound(ctx, fmt.Sprintf("project_uuid: %s", projectUUID))
}

func (s *QualityGateStore) InsertCondition(ctx context.Context, gateID int64, c qualitygate.Condition) (qualitygate.Condition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gates[gateID]
	if !ok {
		return c, gateNotFound(ctx, fmt.Sprintf("id: %d", gateID))
	}
	s.nextID++
	c.ID = s.nextID
	g.Conditions = append(g.Conditions, c)
	s.conditionOf[c.ID] = gateID
	return c, nil
}

func (s *QualityGateStore) UpdateCondition(ctx context.Context, c qualitygate.Condition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	gateID, ok := s.conditionOf[c.ID]
	if !ok {
		return errors.New(errors.ErrNotFound, "condition not found").WithContext(ctx)
	}
	g := s.gates[gateID]
	for i := range g.Conditions {
		if g.Conditions[i].ID == c.ID {
			g.Conditions[i] = c
		}
	}
	return nil
}

func (s *QualityGateStore) DeleteCondition(ctx context.Context, conditionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	gateID, ok := s.conditionOf[conditionID]
	if !ok {
		return errors.New(errors.ErrNotFound, "condition not found").WithContext(ctx)
	}
	g := s.gates[gateID]
	kept := g.Conditions[:0]
	for _, c := range g.Conditions {
		if c.ID != conditionID {
			kept = append(kept, c)
		}
	}
	g.Conditions = kept
	delete(s.conditionOf, conditionID)
	return nil
}

func (s *QualityGateStore) GetCondition(ctx context.Context, conditionID int64) (qualitygate.Condition, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gateID, ok := s.conditionOf[conditionID]
	if !ok {
		return qualitygate.Condition{}, 0, errors.New(errors.ErrNotFound, "condition not found").WithContext(ctx)
	}
	for _, c := range s.gates[gateID].Conditions {
		if c.ID == conditionID {
			return c, gateID, nil
		}
	}
	return qualitygate.Condition{}, 0, errors.New(errors.ErrNotFound, "condition not found").WithContext(ctx)
}
