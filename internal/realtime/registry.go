package realtime

import "sync"

// Conn is a live transport connection able to receive events.
type Conn interface {
	ID() string
	Send(event Event) error
}

// Registry maps a user to at most one live connection. A new connection for the
// same user replaces the previous mapping. The registry never triggers side
// effects; presence and broadcasts are the caller's responsibility.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Register maps userID to conn, overwriting any prior mapping. It returns the
// replaced connection, if there was one.
func (r *Registry) Register(userID string, conn Conn) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous, existed := r.conns[userID]
	r.conns[userID] = conn
	return previous, existed
}

// Resolve looks up the live connection of userID.
func (r *Registry) Resolve(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[userID]
	return conn, ok
}

// Unregister removes the mapping of userID. It is a no-op when absent.
func (r *Registry) Unregister(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conns, userID)
}

// Release removes the mapping of userID only while it still points at connID.
// A stale connection closing after a reconnect therefore leaves the newer mapping intact.
func (r *Registry) Release(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.conns[userID]
	if !ok || current.ID() != connID {
		return false
	}
	delete(r.conns, userID)
	return true
}

// Online returns the ids of every user with a live connection.
func (r *Registry) Online() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.conns))
	for userID := range r.conns {
		out = append(out, userID)
	}
	return out
}

// Len returns the number of live mappings.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
