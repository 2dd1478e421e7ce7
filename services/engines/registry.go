package engines

import (
	"errors"
	"sort"
	"sync"
)

var (
	// ErrEngineNotFound is returned when an engine is not registered
	ErrEngineNotFound = errors.New("engine not found")

	// ErrEngineAlreadyRegistered is returned when registering a duplicate engine id
	ErrEngineAlreadyRegistered = errors.New("engine already registered")
)

// Registry manages the configured engine instances. It is built once at
// startup by the composition root and read concurrently by the routers.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Invoker
}

// NewRegistry creates an empty engine registry
func NewRegistry() *Registry {
	return &Registry{
		engines: make(map[string]Invoker),
	}
}

// Register adds an engine instance to the registry
func (r *Registry) Register(inv Invoker) error {
	if inv == nil {
		return errors.New("engine cannot be nil")
	}

	desc := inv.Descriptor()
	if desc.ID == "" {
		return errors.New("engine id cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.engines[desc.ID]; exists {
		return ErrEngineAlreadyRegistered
	}

	r.engines[desc.ID] = inv
	return nil
}

// Get retrieves an engine by id
func (r *Registry) Get(id string) (Invoker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inv, exists := r.engines[id]
	if !exists {
		return nil, ErrEngineNotFound
	}
	return inv, nil
}

// ByCapability returns the engines servicing a capability, ordered by
// priority ascending. Ties break on id so the order is stable across calls
// from the same configuration.
func (r *Registry) ByCapability(cap Capability) []Invoker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []Invoker
	for _, inv := range r.engines {
		if inv.Descriptor().Capability == cap {
			matched = append(matched, inv)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		di, dj := matched[i].Descriptor(), matched[j].Descriptor()
		if di.Priority != dj.Priority {
			return di.Priority < dj.Priority
		}
		return di.ID < dj.ID
	})

	return matched
}

// First returns the highest-priority engine for a capability, or nil when
// none is configured.
func (r *Registry) First(cap Capability) Invoker {
	matched := r.ByCapability(cap)
	if len(matched) == 0 {
		return nil
	}
	return matched[0]
}

// List returns all registered engine ids
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.engines))
	for id := range r.engines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Descriptors returns the descriptors of all registered engines, ordered by id
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descs := make([]Descriptor, 0, len(r.engines))
	for _, inv := range r.engines {
		descs = append(descs, inv.Descriptor())
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].ID < descs[j].ID })
	return descs
}

// Count returns the number of registered engines
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.engines)
}
