package normalisers

import (
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.NormaliserRegistry = (*Registry)(nil)

// Registry implements NormaliserRegistry keyed by destination item type.
type Registry struct {
	mu          sync.RWMutex
	normalisers map[string]driven.Normaliser
}

// NewRegistry creates a new normaliser registry.
func NewRegistry() *Registry {
	return &Registry{
		normalisers: make(map[string]driven.Normaliser),
	}
}

// Register registers a normaliser, replacing any earlier one for the same item type.
func (r *Registry) Register(normaliser driven.Normaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.normalisers[normaliser.ItemType()] = normaliser
}

// Get retrieves the normaliser for an item type.
// Returns nil if no normaliser is registered for the type.
func (r *Registry) Get(itemType string) driven.Normaliser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.normalisers[itemType]
}

// List returns all registered item types, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.normalisers))
	for t := range r.normalisers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// DefaultRegistry creates a registry with the built-in normalisers registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&UserNormaliser{})
	return r
}
