package persistence

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/iota-uz/workflow-console/modules/workflow/domain/aggregates/assignment"
	"github.com/iota-uz/workflow-console/modules/workflow/infrastructure/persistence/models"
)

type SafeMap[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

func NewSafeMap[K comparable, V any]() *SafeMap[K, V] {
	return &SafeMap[K, V]{
		m: make(map[K]V),
	}
}

func (s *SafeMap[K, V]) Set(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
}

func (s *SafeMap[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, found := s.m[key]
	return val, found
}

func (s *SafeMap[K, V]) Delete(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
}

func (s *SafeMap[K, V]) Values() []V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Collect(maps.Values(s.m))
}

// InmemRepository is the memory storage backend. It serves the same
// contracts as the postgres repositories and is what the console runs on
// when WORKFLOW_STORAGE=memory.
type InmemRepository struct {
	clients  *SafeMap[string, models.Client]
	entities *SafeMap[string, models.BillableEntity]
	// steps are keyed by client id; each value is kept sorted by position.
	steps *SafeMap[string, []models.WorkflowStep]
	limit int
	// saveMu serializes SaveSequence so concurrent saves of one client
	// cannot interleave their read-modify-write.
	saveMu sync.Mutex
}

func NewInmemRepository(limit int) *InmemRepository {
	if limit <= 0 {
		limit = 20
	}
	return &InmemRepository{
		clients:  NewSafeMap[string, models.Client](),
		entities: NewSafeMap[string, models.BillableEntity](),
		steps:    NewSafeMap[string, []models.WorkflowStep](),
		limit:    limit,
	}
}

func (r *InmemRepository) UpsertClient(_ context.Context, c models.Client) error {
	if c.ID == "" {
		return errors.New("client id is required")
	}
	r.clients.Set(c.ID, c)
	return nil
}

func (r *InmemRepository) UpsertBillableEntity(_ context.Context, e models.BillableEntity) error {
	if e.ID == "" {
		return errors.New("billable entity id is required")
	}
	if _, ok := r.clients.Get(e.ClientID); !ok {
		return errors.Wrapf(assignment.ErrScopeNotFound, "client %s", e.ClientID)
	}
	r.entities.Set(e.ID, e)
	return nil
}

func (r *InmemRepository) GetByID(_ context.Context, scopeID string) (assignment.Scope, error) {
	c, ok := r.clients.Get(scopeID)
	if !ok {
		return assignment.Scope{}, errors.Wrapf(assignment.ErrScopeNotFound, "client %s", scopeID)
	}
	return ToDomainScope(c), nil
}

func (r *InmemRepository) Search(_ context.Context, term string) ([]assignment.Scope, error) {
	clients := r.clients.Values()
	sort.Slice(clients, func(i, j int) bool {
		a, b := strings.ToLower(clients[i].Name), strings.ToLower(clients[j].Name)
		if a != b {
			return a < b
		}
		return clients[i].ID < clients[j].ID
	})
	scopes := make([]assignment.Scope, 0, len(clients))
	for _, c := range clients {
		scopes = append(scopes, ToDomainScope(c))
	}
	return RankScopes(term, scopes, r.limit), nil
}

func (r *InmemRepository) ListItems(_ context.Context, scopeID string) ([]assignment.Item, error) {
	if _, ok := r.clients.Get(scopeID); !ok {
		return nil, errors.Wrapf(assignment.ErrScopeNotFound, "client %s", scopeID)
	}
	var entities []models.BillableEntity
	for _, e := range r.entities.Values() {
		if e.ClientID == scopeID {
			entities = append(entities, e)
		}
	}
	sort.Slice(entities, func(i, j int) bool {
		if entities[i].Name != entities[j].Name {
			return entities[i].Name < entities[j].Name
		}
		return entities[i].ID < entities[j].ID
	})
	items := make([]assignment.Item, 0, len(entities))
	for _, e := range entities {
		items = append(items, ToDomainItem(e))
	}
	return items, nil
}

func (r *InmemRepository) GetSequence(_ context.Context, scopeID string) ([]assignment.AssignedStep, error) {
	stored, _ := r.steps.Get(scopeID)
	out := make([]assignment.AssignedStep, 0, len(stored))
	for _, s := range stored {
		if e, ok := r.entities.Get(s.EntityID); ok {
			s.Name, s.Kind = e.Name, e.Kind
		}
		out = append(out, ToDomainStep(s))
	}
	return out, nil
}

func (r *InmemRepository) SaveSequence(_ context.Context, scopeID string, steps []assignment.StepRecord) ([]assignment.SavedStep, error) {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	if _, ok := r.clients.Get(scopeID); !ok {
		return nil, errors.Wrapf(assignment.ErrScopeNotFound, "client %s", scopeID)
	}
	existing, _ := r.steps.Get(scopeID)
	ids := make(map[string]string, len(existing))
	for _, s := range existing {
		ids[s.EntityID] = s.ID
	}

	next := make([]models.WorkflowStep, 0, len(steps))
	saved := make([]assignment.SavedStep, 0, len(steps))
	positions := make(map[int]struct{}, len(steps))
	items := make(map[string]struct{}, len(steps))
	now := time.Now()
	for _, s := range steps {
		e, ok := r.entities.Get(s.ItemID)
		if !ok || e.ClientID != scopeID {
			return nil, errors.Errorf("entity %s does not belong to client %s", s.ItemID, scopeID)
		}
		if _, dup := positions[s.Order]; dup {
			return nil, errors.Errorf("duplicate position %d", s.Order)
		}
		if _, dup := items[s.ItemID]; dup {
			return nil, errors.Wrapf(assignment.ErrDuplicateItem, "entity %s", s.ItemID)
		}
		positions[s.Order] = struct{}{}
		items[s.ItemID] = struct{}{}
		id, ok := ids[s.ItemID]
		if !ok {
			id = uuid.NewString()
		}
		next = append(next, models.WorkflowStep{
			ID:        id,
			ClientID:  scopeID,
			EntityID:  s.ItemID,
			Position:  s.Order,
			Active:    s.Active,
			UpdatedAt: now,
		})
		saved = append(saved, assignment.SavedStep{ItemID: s.ItemID, StepID: id})
	}
	sort.SliceStable(next, func(i, j int) bool { return next[i].Position < next[j].Position })
	r.steps.Set(scopeID, next)
	return saved, nil
}
