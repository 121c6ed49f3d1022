package engine

import (
	"sort"
	"sync"
)

// registration pairs a handler with its kind.
type registration struct {
	fn   HandlerFunc
	kind HandlerKind
}

// Registry maps node type tags to handlers. Registration normally happens at
// engine init; the registry is nonetheless safe for concurrent use so tests
// can register fakes while runs are active.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]registration)}
}

// Register binds a handler to a node type tag, replacing any previous
// binding.
func (r *Registry) Register(typeTag string, kind HandlerKind, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[typeTag] = registration{fn: fn, kind: kind}
}

// Lookup returns the handler and kind for a type tag.
func (r *Registry) Lookup(typeTag string) (HandlerFunc, HandlerKind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.handlers[typeTag]
	return reg.fn, reg.kind, ok
}

// Types returns the registered type tags, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
