package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Frame types exchanged over the duplex channel
const (
	FrameRequest = "request"
	FrameAck     = "ack"
	FrameEvent   = "event"
)

// Request actions sent from the client to the coordinator
const (
	ActionStartRecording  = "start-recording"
	ActionAudioChunk      = "audio-chunk"
	ActionPauseRecording  = "pause-recording"
	ActionResumeRecording = "resume-recording"
	ActionStopRecording   = "stop-recording"
)

// Events broadcast from the coordinator to a session's group
const (
	EventRecordingStatus     = "recording-status"
	EventTranscriptionUpdate = "transcription-update"
	EventSummaryGenerated    = "summary-generated"
)

// Capture sources supported by a recording session
const (
	SourceMicrophone = "MICROPHONE"
	SourceTabAudio   = "TAB_AUDIO"
)

// Session lifecycle statuses. The coordinator's view is authoritative;
// COMPLETED and FAILED are terminal.
const (
	StatusRecording  = "RECORDING"
	StatusPaused     = "PAUSED"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Error codes carried in failure acknowledgements
const (
	CodeBadRequest     = "bad_request"
	CodeUnauthorized   = "unauthorized"
	CodeSessionActive  = "session_active"
	CodeSessionUnknown = "session_unknown"
	CodeNotOwner       = "not_owner"
	CodeSessionFinal   = "session_final"
	CodePaused         = "paused"
	CodeInternal       = "internal"
)

// Frame is the outer envelope for every message on the wire.
// Exactly one of Request, Ack, or Event semantics applies depending on Type.
type Frame struct {
	Type string `json:"type"`

	// Request fields (client -> server)
	ID      string          `json:"id,omitempty"`
	Action  string          `json:"action,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// Ack fields (server -> client, exactly one per request ID)
	OK    bool      `json:"ok,omitempty"`
	Error *AckError `json:"error,omitempty"`

	// Event fields (server -> group)
	Event string `json:"event,omitempty"`
}

// AckError is a structured failure carried in a negative acknowledgement.
type AckError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (e *AckError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// StartRecordingPayload begins a new recording session.
type StartRecordingPayload struct {
	Source string `json:"source"`
	Title  string `json:"title,omitempty"`
}

// StartRecordingAck carries the server-assigned session id.
type StartRecordingAck struct {
	SessionID string `json:"sessionId"`
}

// AudioChunkPayload delivers one buffered audio segment. Chunk is raw PCM
// bytes (base64 on the wire via encoding/json). Timestamp is seconds elapsed
// since recording start and is advisory; ordering is by ChunkIndex only.
type AudioChunkPayload struct {
	SessionID  string  `json:"sessionId"`
	Chunk      []byte  `json:"chunk"`
	ChunkIndex int     `json:"chunkIndex"`
	Timestamp  float64 `json:"timestamp"`
}

// SessionRefPayload addresses an existing session (pause/resume).
type SessionRefPayload struct {
	SessionID string `json:"sessionId"`
}

// StopRecordingPayload finalizes a session with the client-measured duration.
type StopRecordingPayload struct {
	SessionID string  `json:"sessionId"`
	Duration  float64 `json:"duration"`
}

// RecordingStatusEvent announces a session status change to the group.
type RecordingStatusEvent struct {
	SessionID string    `json:"sessionId"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// TranscriptionUpdateEvent broadcasts one transcript fragment. Empty text
// with zero confidence is a valid fragment (silence or a failed chunk).
type TranscriptionUpdateEvent struct {
	SessionID  string  `json:"sessionId"`
	ChunkIndex int     `json:"chunkIndex"`
	Text       string  `json:"text"`
	Timestamp  float64 `json:"timestamp"`
	Confidence float64 `json:"confidence"`
}

// SummaryPayload is the structured output of the summarization capability.
type SummaryPayload struct {
	Summary     string   `json:"summary"`
	KeyPoints   []string `json:"keyPoints"`
	ActionItems []string `json:"actionItems"`
	Decisions   []string `json:"decisions"`
}

// SummaryGeneratedEvent delivers the final summary for a completed session.
type SummaryGeneratedEvent struct {
	SessionID string         `json:"sessionId"`
	Summary   SummaryPayload `json:"summary"`
}

// ValidSource reports whether s is a recognized capture source.
func ValidSource(s string) bool {
	return s == SourceMicrophone || s == SourceTabAudio
}

// ValidStatus reports whether s is a recognized session status.
func ValidStatus(s string) bool {
	switch s {
	case StatusRecording, StatusPaused, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// TerminalStatus reports whether a session in status s is immutable.
func TerminalStatus(s string) bool {
	return s == StatusCompleted || s == StatusFailed
}

// NewRequest builds a request frame with the payload marshalled in place.
func NewRequest(id, action string, payload interface{}) (*Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", action, err)
	}

	return &Frame{
		Type:    FrameRequest,
		ID:      id,
		Action:  action,
		Payload: raw,
	}, nil
}

// NewAck builds a success acknowledgement for the given request ID.
func NewAck(id string, payload interface{}) (*Frame, error) {
	frame := &Frame{
		Type: FrameAck,
		ID:   id,
		OK:   true,
	}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal ack payload: %w", err)
		}
		frame.Payload = raw
	}

	return frame, nil
}

// NewErrorAck builds a failure acknowledgement for the given request ID.
func NewErrorAck(id, code, message string, retryable bool) *Frame {
	return &Frame{
		Type: FrameAck,
		ID:   id,
		OK:   false,
		Error: &AckError{
			Code:      code,
			Message:   message,
			Retryable: retryable,
		},
	}
}

// NewEvent builds an event frame for broadcast to a session group.
func NewEvent(event string, payload interface{}) (*Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", event, err)
	}

	return &Frame{
		Type:    FrameEvent,
		Event:   event,
		Payload: raw,
	}, nil
}

// ParseFrame decodes and validates one wire frame.
func ParseFrame(data []byte) (*Frame, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("failed to parse frame: %w", err)
	}

	switch frame.Type {
	case FrameRequest:
		if frame.ID == "" {
			return nil, fmt.Errorf("request frame missing id")
		}
		if frame.Action == "" {
			return nil, fmt.Errorf("request frame missing action")
		}
	case FrameAck:
		if frame.ID == "" {
			return nil, fmt.Errorf("ack frame missing id")
		}
		if !frame.OK && frame.Error == nil {
			return nil, fmt.Errorf("failed ack missing error detail")
		}
	case FrameEvent:
		if frame.Event == "" {
			return nil, fmt.Errorf("event frame missing event name")
		}
	default:
		return nil, fmt.Errorf("unknown frame type %q", frame.Type)
	}

	return &frame, nil
}

// DecodePayload unmarshals a frame payload into the given destination.
func (f *Frame) DecodePayload(dst interface{}) error {
	if len(f.Payload) == 0 {
		return fmt.Errorf("frame has no payload")
	}
	if err := json.Unmarshal(f.Payload, dst); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}
