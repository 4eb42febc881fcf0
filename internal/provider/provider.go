// Package provider implements the built-in completion sources and the
// registry the coordinator queries them through.
package provider

import (
	"sort"
	"sync"

	"github.com/dshills/nvcomplete/internal/completion"
)

// Registry holds registered sources ordered by priority, highest
// first. It satisfies completion.SourceSet.
type Registry struct {
	mu      sync.RWMutex
	sources []completion.Source
	byName  map[string]completion.Source
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]completion.Source)}
}

// Register adds a source. A source with a duplicate name replaces the
// previous registration.
func (r *Registry) Register(src completion.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[src.Name()]; exists {
		for i, s := range r.sources {
			if s.Name() == src.Name() {
				r.sources[i] = src
				break
			}
		}
	} else {
		r.sources = append(r.sources, src)
	}
	r.byName[src.Name()] = src

	sort.SliceStable(r.sources, func(i, j int) bool {
		return r.sources[i].Priority() > r.sources[j].Priority()
	})
}

// Sources returns all sources ordered by priority, highest first.
func (r *Registry) Sources() []completion.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]completion.Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// ByName looks up a source by name.
func (r *Registry) ByName(name string) (completion.Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.byName[name]
	return src, ok
}

// Names returns the registered source names in priority order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.sources))
	for i, s := range r.sources {
		names[i] = s.Name()
	}
	return names
}
