package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/RitamPal26/ScribeAI/internal/protocol"
)

func newTestHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), testMetrics)
}

func statusFrame(t *testing.T, sessionID, status string) *protocol.Frame {
	t.Helper()
	frame, err := protocol.NewEvent(protocol.EventRecordingStatus, protocol.RecordingStatusEvent{
		SessionID: sessionID,
		Status:    status,
	})
	if err != nil {
		t.Fatalf("failed to build frame: %v", err)
	}
	return frame
}

func TestHubBroadcastReachesGroupMembers(t *testing.T) {
	hub := newTestHub()

	member := &connection{id: "conn-1", send: make(chan []byte, 4)}
	outsider := &connection{id: "conn-2", send: make(chan []byte, 4)}
	hub.Register(member)
	hub.Register(outsider)
	hub.Join("session-a", member.id)

	hub.Broadcast("session-a", statusFrame(t, "session-a", protocol.StatusRecording))

	select {
	case data := <-member.send:
		var frame protocol.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("broadcast frame not valid JSON: %v", err)
		}
		if frame.Event != protocol.EventRecordingStatus {
			t.Errorf("unexpected event %q", frame.Event)
		}
	default:
		t.Fatal("group member received nothing")
	}

	select {
	case <-outsider.send:
		t.Error("connection outside the group should receive nothing")
	default:
	}
}

func TestHubJoinIsIdempotent(t *testing.T) {
	hub := newTestHub()

	member := &connection{id: "conn-1", send: make(chan []byte, 4)}
	hub.Register(member)
	hub.Join("session-a", member.id)
	hub.Join("session-a", member.id)

	hub.Broadcast("session-a", statusFrame(t, "session-a", protocol.StatusPaused))

	if got := len(member.send); got != 1 {
		t.Errorf("expected exactly one delivery, got %d", got)
	}
}

func TestHubUnregisterLeavesGroups(t *testing.T) {
	hub := newTestHub()

	member := &connection{id: "conn-1", send: make(chan []byte, 4)}
	hub.Register(member)
	hub.Join("session-a", member.id)

	hub.Unregister(member)

	if hub.ConnectionCount() != 0 {
		t.Errorf("expected no connections, got %d", hub.ConnectionCount())
	}
	if hub.GroupCount() != 0 {
		t.Errorf("empty groups should be dropped, got %d", hub.GroupCount())
	}

	// Send queue is closed so the write pump can exit.
	if _, ok := <-member.send; ok {
		t.Error("send queue should be closed after unregister")
	}

	// Broadcasting to the stale group must be a quiet no-op.
	hub.Broadcast("session-a", statusFrame(t, "session-a", protocol.StatusFailed))
}

func TestHubFullQueueDropsEvent(t *testing.T) {
	hub := newTestHub()

	member := &connection{id: "conn-1", send: make(chan []byte)} // unbuffered, never drained
	hub.Register(member)
	hub.Join("session-a", member.id)

	// Must not block.
	hub.Broadcast("session-a", statusFrame(t, "session-a", protocol.StatusRecording))
}

func TestHubJoinUnregisteredConnection(t *testing.T) {
	hub := newTestHub()

	ghost := &connection{id: "ghost", send: make(chan []byte, 1)}
	hub.Join("session-a", ghost.id)

	if hub.GroupCount() != 0 {
		t.Error("joining without registration should be refused")
	}
}
