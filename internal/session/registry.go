package session

import "sync"

// Registry maps live connection ids to display names. An entry exists from
// the first join until disconnect; names may collide, ids never do.
type Registry struct {
	mu    sync.RWMutex
	names map[string]string
}

func NewRegistry() *Registry {
	return &Registry{names: map[string]string{}}
}

// Register records the display name for a connection, overwriting any
// previous name (a re-join with a new username wins).
func (r *Registry) Register(connID, username string) {
	r.mu.Lock()
	r.names[connID] = username
	r.mu.Unlock()
}

// Lookup resolves a connection id to its display name.
// Unknown ids return ("", false), never an error.
func (r *Registry) Lookup(connID string) (string, bool) {
	r.mu.RLock()
	name, ok := r.names[connID]
	r.mu.RUnlock()
	return name, ok
}

// Remove drops the entry for a connection; absent ids are a no-op.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	delete(r.names, connID)
	r.mu.Unlock()
}
