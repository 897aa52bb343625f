package debate

import (
	"context"
	"sync"
	"time"
)

type handle struct {
	cancel    context.CancelFunc
	startedAt time.Time
}

// Registry tracks running debates so the HTTP layer can cancel them when a
// client disconnects or a write stalls.
type Registry struct {
	mu     sync.RWMutex
	active map[string]*handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]*handle)}
}

// Register stores the cancel function for a running debate.
func (r *Registry) Register(debateID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[debateID] = &handle{cancel: cancel, startedAt: time.Now()}
}

// Unregister removes a debate when its orchestrator returns.
func (r *Registry) Unregister(debateID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, debateID)
}

// Cancel triggers cancellation for a running debate. It reports whether the
// debate was found.
func (r *Registry) Cancel(debateID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.active[debateID]; ok {
		h.cancel()
		return true
	}
	return false
}

// ActiveCount returns the number of running debates.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}
