package engine

import "sync"

// MemoryStore is the run-scoped variable store used by memory nodes to carry
// state (chat history, collected data) across node executions within one run.
// It is shared by all handlers of a run and safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]interface{}
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]interface{})}
}

// Get returns a stored variable.
func (m *MemoryStore) Get(name string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[name]
	return v, ok
}

// Set stores a variable.
func (m *MemoryStore) Set(name string, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = value
}

// Snapshot returns a shallow copy of all variables.
func (m *MemoryStore) Snapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]interface{}, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}
