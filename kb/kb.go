package kb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/signalsfoundry/marslink-sim/model"
)

var (
	ErrEntityExists   = errors.New("entity already exists")
	ErrEntityNotFound = errors.New("entity not found")
	ErrEntityBadInput = errors.New("invalid entity")
)

type groupKey struct {
	body model.Body
	role model.Role
}

// Registry is an in-memory, thread-safe store for simulated entities and
// their per-frame positions.
//
// The frame loop is the only writer of positions; readers (metrics, feed
// bootstrap) only take the read lock.
type Registry struct {
	mu sync.RWMutex

	nextID    model.EntityID
	entities  map[model.EntityID]*model.Entity
	byName    map[string]model.EntityID
	order     []model.EntityID
	groups    map[groupKey][]model.EntityID
	positions map[model.EntityID]model.Vec3
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		nextID:    1,
		entities:  make(map[model.EntityID]*model.Entity),
		byName:    make(map[string]model.EntityID),
		groups:    make(map[groupKey][]model.EntityID),
		positions: make(map[model.EntityID]model.Vec3),
	}
}

// Add registers a new entity, assigning its ID and its index within the
// (Body, Role) group. Names must be unique.
func (r *Registry) Add(e *model.Entity, initial model.Vec3) (model.EntityID, error) {
	if e == nil || e.Name == "" {
		return 0, fmt.Errorf("%w: nil entity or empty name", ErrEntityBadInput)
	}
	if !initial.IsFinite() {
		return 0, fmt.Errorf("%w: %q has non-finite position", ErrEntityBadInput, e.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[e.Name]; exists {
		return 0, fmt.Errorf("%w: %q", ErrEntityExists, e.Name)
	}

	id := r.nextID
	r.nextID++

	key := groupKey{body: e.Body, role: e.Role}
	e.ID = id
	e.Index = len(r.groups[key])

	r.entities[id] = e
	r.byName[e.Name] = id
	r.order = append(r.order, id)
	r.groups[key] = append(r.groups[key], id)
	r.positions[id] = initial
	return id, nil
}

// Get returns the entity with the given ID, or nil if not found.
func (r *Registry) Get(id model.EntityID) *model.Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entities[id]
}

// Lookup returns the entity registered under name, or nil.
func (r *Registry) Lookup(name string) *model.Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return nil
	}
	return r.entities[id]
}

// Entities returns every entity in registration order.
func (r *Registry) Entities() []*model.Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Entity, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entities[id])
	}
	return out
}

// Group returns the entities of one role on one body, ordered by Index.
func (r *Registry) Group(body model.Body, role model.Role) []*model.Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.groups[groupKey{body: body, role: role}]
	out := make([]*model.Entity, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.entities[id])
	}
	return out
}

// Len returns the number of registered entities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// CountByRole returns entity counts keyed by role name.
func (r *Registry) CountByRole() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int)
	for _, e := range r.entities {
		out[e.Role.String()]++
	}
	return out
}

// SetPosition records the current position of an entity.
func (r *Registry) SetPosition(id model.EntityID, pos model.Vec3) error {
	if !pos.IsFinite() {
		return fmt.Errorf("%w: non-finite position for %d", ErrEntityBadInput, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entities[id]; !ok {
		return fmt.Errorf("%w: %d", ErrEntityNotFound, id)
	}
	r.positions[id] = pos
	return nil
}

// Position returns the last recorded position of an entity.
func (r *Registry) Position(id model.EntityID) (model.Vec3, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pos, ok := r.positions[id]
	return pos, ok
}

// Positions returns the current positions of the given entities, in order.
// Unknown IDs yield the zero vector.
func (r *Registry) Positions(entities []*model.Entity) []model.Vec3 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Vec3, len(entities))
	for i, e := range entities {
		if e == nil {
			continue
		}
		out[i] = r.positions[e.ID]
	}
	return out
}
