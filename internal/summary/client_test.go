package summary

import (
	"context"
	"testing"
	"time"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("expected error for missing API key")
	}

	client, err := NewClient(Config{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.model == "" {
		t.Error("expected default model to be set")
	}
	if client.timeout != 60*time.Second {
		t.Errorf("expected default 60s timeout, got %v", client.timeout)
	}
}

func TestSummarizeEmptyTranscriptSkipsAPI(t *testing.T) {
	client, _ := NewClient(Config{APIKey: "test-key"})

	payload, err := client.Summarize(context.Background(), "   ")
	if err != nil {
		t.Fatalf("empty transcript should not error: %v", err)
	}
	if payload.Summary != "" {
		t.Errorf("expected empty summary, got %q", payload.Summary)
	}
	if payload.KeyPoints == nil || payload.ActionItems == nil || payload.Decisions == nil {
		t.Error("expected empty slices, got nil")
	}
}
