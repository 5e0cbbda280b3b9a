package server

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/RitamPal26/ScribeAI/internal/metrics"
	"github.com/RitamPal26/ScribeAI/internal/protocol"
)

// Hub tracks open connections and their session broadcast groups. Events for
// a session fan out to every connection that joined its group.
type Hub struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu          sync.RWMutex
	connections map[string]*connection          // connection id -> connection
	groups      map[string]map[string]*connection // session id -> members
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		logger:      logger,
		metrics:     m,
		connections: make(map[string]*connection),
		groups:      make(map[string]map[string]*connection),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c.id] = c
}

// Unregister removes a connection from the hub and from every group it
// joined, and closes its outbound queue.
func (h *Hub) Unregister(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.connections[c.id]; !ok {
		return
	}
	delete(h.connections, c.id)

	for sessionID, members := range h.groups {
		if _, ok := members[c.id]; ok {
			delete(members, c.id)
			if len(members) == 0 {
				delete(h.groups, sessionID)
			}
		}
	}

	close(c.send)
}

// Join adds a connection to a session's broadcast group. Joining twice is
// a no-op, as is joining with a connection id that is not registered.
func (h *Hub) Join(sessionID, connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.connections[connectionID]
	if !ok {
		return // already unregistered, nothing to join
	}

	members, ok := h.groups[sessionID]
	if !ok {
		members = make(map[string]*connection)
		h.groups[sessionID] = members
	}
	members[c.id] = c
}

// Broadcast sends an event frame to every member of a session's group. A
// member whose outbound queue is full drops the frame rather than stalling
// the rest of the group.
func (h *Hub) Broadcast(sessionID string, frame *protocol.Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast frame",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, member := range h.groups[sessionID] {
		select {
		case member.send <- data:
			h.metrics.FramesSent.Inc()
		default:
			h.logger.Warn("Dropping broadcast frame, outbound queue full",
				slog.String("session_id", sessionID),
				slog.String("connection_id", member.id),
			)
		}
	}
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// GroupCount returns the number of session groups with at least one member.
func (h *Hub) GroupCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups)
}
