package session

import (
	"testing"
)

func TestRegistryBindRefusesSecondBinding(t *testing.T) {
	r := NewRegistry()

	if !r.Bind("conn-1", "session-a") {
		t.Fatal("first bind should succeed")
	}

	if r.Bind("conn-1", "session-b") {
		t.Error("second bind on the same connection should be refused")
	}

	sessionID, ok := r.BoundSession("conn-1")
	if !ok || sessionID != "session-a" {
		t.Errorf("expected binding to session-a to survive, got %q ok=%v", sessionID, ok)
	}
}

func TestRegistryRebindReplaces(t *testing.T) {
	r := NewRegistry()

	r.Rebind("conn-1", "session-a")
	r.Rebind("conn-1", "session-b")

	sessionID, ok := r.BoundSession("conn-1")
	if !ok || sessionID != "session-b" {
		t.Errorf("expected rebind to session-b, got %q ok=%v", sessionID, ok)
	}
}

func TestRegistryRebindDropsOtherConnections(t *testing.T) {
	r := NewRegistry()

	r.Rebind("conn-old", "session-a")
	r.Rebind("conn-new", "session-a")

	if _, ok := r.BoundSession("conn-old"); ok {
		t.Error("old binding should be dropped when the session moves to another connection")
	}

	sessionID, ok := r.BoundSession("conn-new")
	if !ok || sessionID != "session-a" {
		t.Errorf("expected conn-new bound to session-a, got %q ok=%v", sessionID, ok)
	}

	if r.ActiveCount() != 1 {
		t.Errorf("expected one active binding, got %d", r.ActiveCount())
	}
}

func TestRegistryRelease(t *testing.T) {
	r := NewRegistry()

	r.Rebind("conn-1", "session-a")

	sessionID, ok := r.Release("conn-1")
	if !ok || sessionID != "session-a" {
		t.Fatalf("release should return the held session, got %q ok=%v", sessionID, ok)
	}

	if _, ok := r.BoundSession("conn-1"); ok {
		t.Error("binding should be gone after release")
	}

	if _, ok := r.Release("conn-1"); ok {
		t.Error("releasing an unbound connection should report false")
	}

	if r.ActiveCount() != 0 {
		t.Errorf("expected zero active bindings, got %d", r.ActiveCount())
	}
}
