package session

import (
	"sync"
)

// Registry maps an active transport connection to at most one in-flight
// recording session. Bindings are explicit state: handlers receive the
// binding through it rather than reading ambient connection globals.
type Registry struct {
	mu     sync.RWMutex
	byConn map[string]string // connection id -> session id
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[string]string),
	}
}

// Bind associates a connection with a session. A connection already bound
// keeps its existing binding and Bind reports false.
func (r *Registry) Bind(connectionID, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byConn[connectionID]; exists {
		return false
	}

	r.byConn[connectionID] = sessionID
	return true
}

// Rebind replaces a connection's binding unconditionally and drops any
// other connection's binding to the same session, so a stale half-open
// connection can never act on a session that moved elsewhere. Used by the
// recovery path after the in-memory binding was lost on reconnect.
func (r *Registry) Rebind(connectionID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for conn, bound := range r.byConn {
		if bound == sessionID && conn != connectionID {
			delete(r.byConn, conn)
		}
	}
	r.byConn[connectionID] = sessionID
}

// BoundSession returns the session bound to a connection, if any.
func (r *Registry) BoundSession(connectionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessionID, ok := r.byConn[connectionID]
	return sessionID, ok
}

// Release removes a connection's binding and returns the session it held.
func (r *Registry) Release(connectionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessionID, ok := r.byConn[connectionID]
	if ok {
		delete(r.byConn, connectionID)
	}
	return sessionID, ok
}

// ActiveCount returns the number of currently bound connections.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
