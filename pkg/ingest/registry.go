package ingest

import (
	"fmt"

	"github.com/krsafety/alertfeed/pkg/models"
)

// Registry is the static set of adapters, built once at startup from the
// compile-time list in cmd. No mutation after construction.
type Registry struct {
	adapters map[models.Source]Adapter
	order    []models.Source
}

// NewRegistry builds a registry from the given adapters. Duplicate source
// ids are a wiring bug and fail construction.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[models.Source]Adapter, len(adapters))}
	for _, a := range adapters {
		id := a.SourceID()
		if _, exists := r.adapters[id]; exists {
			return nil, fmt.Errorf("duplicate adapter for source %s", id)
		}
		r.adapters[id] = a
		r.order = append(r.order, id)
	}
	return r, nil
}

// List returns all adapters in registration order.
func (r *Registry) List() []Adapter {
	out := make([]Adapter, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.adapters[id])
	}
	return out
}

// Get returns the adapter for a source, if registered.
func (r *Registry) Get(sourceID models.Source) (Adapter, bool) {
	a, ok := r.adapters[sourceID]
	return a, ok
}
