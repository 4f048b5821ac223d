package chat

import (
	"sync"
)

// Registry maps a user identity to the connection it last registered on.
// It holds non-owning references: removing an entry never closes the
// connection. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]Connection // user -> conn
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]Connection),
	}
}

// Register binds user to conn, replacing any earlier binding.
// The replaced connection is left open.
func (r *Registry) Register(user string, conn Connection) {
	r.mu.Lock()
	r.byUser[user] = conn
	r.mu.Unlock()
}

// Lookup returns the connection bound to user.
func (r *Registry) Lookup(user string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byUser[user]
	return c, ok
}

// Remove deletes the binding for user. Absent users are ignored.
func (r *Registry) Remove(user string) {
	r.mu.Lock()
	delete(r.byUser, user)
	r.mu.Unlock()
}

// RemoveIf deletes the binding for user only while it still points at conn.
// A session closing after its identity was taken over by a newer connection
// must not evict the newer one.
func (r *Registry) RemoveIf(user string, conn Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byUser[user]
	if !ok || cur != conn {
		return false
	}
	delete(r.byUser, user)
	return true
}

// Len returns the number of bound identities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
