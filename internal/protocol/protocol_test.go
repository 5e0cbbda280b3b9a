package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRequestRoundTrip(t *testing.T) {
	payload := AudioChunkPayload{
		SessionID:  "sess-1",
		Chunk:      []byte{0x01, 0x02, 0x03},
		ChunkIndex: 7,
		Timestamp:  12.5,
	}

	frame, err := NewRequest("req-42", ActionAudioChunk, payload)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	parsed, err := ParseFrame(data)
	if err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}

	if parsed.Type != FrameRequest {
		t.Errorf("expected type %q, got %q", FrameRequest, parsed.Type)
	}
	if parsed.ID != "req-42" {
		t.Errorf("expected id req-42, got %q", parsed.ID)
	}
	if parsed.Action != ActionAudioChunk {
		t.Errorf("expected action %q, got %q", ActionAudioChunk, parsed.Action)
	}

	var decoded AudioChunkPayload
	if err := parsed.DecodePayload(&decoded); err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if decoded.SessionID != "sess-1" || decoded.ChunkIndex != 7 {
		t.Errorf("payload mismatch: %+v", decoded)
	}
	if len(decoded.Chunk) != 3 || decoded.Chunk[0] != 0x01 {
		t.Errorf("chunk bytes mismatch: %v", decoded.Chunk)
	}
}

func TestErrorAck(t *testing.T) {
	frame := NewErrorAck("req-1", CodeSessionActive, "a session is already active", false)

	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	parsed, err := ParseFrame(data)
	if err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}

	if parsed.OK {
		t.Error("error ack should not be ok")
	}
	if parsed.Error == nil {
		t.Fatal("error ack missing error detail")
	}
	if parsed.Error.Code != CodeSessionActive {
		t.Errorf("expected code %q, got %q", CodeSessionActive, parsed.Error.Code)
	}
}

func TestEventRoundTrip(t *testing.T) {
	event := RecordingStatusEvent{
		SessionID: "sess-9",
		Status:    StatusPaused,
		Timestamp: time.Now().UTC(),
	}

	frame, err := NewEvent(EventRecordingStatus, event)
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}

	data, _ := json.Marshal(frame)
	parsed, err := ParseFrame(data)
	if err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}

	var decoded RecordingStatusEvent
	if err := parsed.DecodePayload(&decoded); err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if decoded.Status != StatusPaused {
		t.Errorf("expected status %q, got %q", StatusPaused, decoded.Status)
	}
}

func TestParseFrameValidation(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", "{{"},
		{"unknown type", `{"type":"ping"}`},
		{"request missing id", `{"type":"request","action":"start-recording"}`},
		{"request missing action", `{"type":"request","id":"r1"}`},
		{"failed ack missing error", `{"type":"ack","id":"r1","ok":false}`},
		{"event missing name", `{"type":"event"}`},
	}

	for _, tc := range cases {
		if _, err := ParseFrame([]byte(tc.data)); err == nil {
			t.Errorf("%s: expected parse error, got nil", tc.name)
		}
	}
}

func TestStatusHelpers(t *testing.T) {
	if !ValidSource(SourceMicrophone) || !ValidSource(SourceTabAudio) {
		t.Error("known sources should be valid")
	}
	if ValidSource("SPEAKER") {
		t.Error("unknown source should be invalid")
	}

	for _, s := range []string{StatusRecording, StatusPaused, StatusProcessing, StatusCompleted, StatusFailed} {
		if !ValidStatus(s) {
			t.Errorf("status %q should be valid", s)
		}
	}

	if TerminalStatus(StatusRecording) || TerminalStatus(StatusProcessing) {
		t.Error("non-terminal status reported terminal")
	}
	if !TerminalStatus(StatusCompleted) || !TerminalStatus(StatusFailed) {
		t.Error("terminal status not reported terminal")
	}
}
