package store

import (
	"time"
)

// RecordingSession is the persisted record of one recording attempt.
// Once Status reaches COMPLETED or FAILED the row is immutable except
// through FinalizeSession/MarkFailed, which guard terminal states.
type RecordingSession struct {
	ID        string    `gorm:"primarykey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID          string  `gorm:"index;not null" json:"user_id"`
	Source          string  `gorm:"not null" json:"source"`
	Title           string  `json:"title"`
	Status          string  `gorm:"index;not null" json:"status"`
	StartedAt       time.Time `gorm:"not null" json:"started_at"`
	DurationSeconds float64 `json:"duration_seconds"`
	Transcript      string  `json:"transcript"`
	LastError       string  `json:"last_error,omitempty"`

	Fragments []TranscriptFragment `gorm:"constraint:OnDelete:CASCADE;foreignKey:SessionID" json:"fragments,omitempty"`
}

// TranscriptFragment is the transcribed text for one audio chunk.
// ChunkIndex is unique per session; empty Text with zero Confidence is a
// valid fragment meaning silence or a failed transcription.
type TranscriptFragment struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	SessionID  string  `gorm:"index:idx_fragment_session_chunk,unique;size:36;not null" json:"session_id"`
	ChunkIndex int     `gorm:"index:idx_fragment_session_chunk,unique;not null" json:"chunk_index"`
	Text       string  `json:"text"`
	Timestamp  float64 `json:"timestamp"` // seconds since recording start, advisory
	Confidence float64 `json:"confidence"`
}

// SessionSummary is the structured summary generated after a session stops.
// The slice fields are stored JSON-encoded.
type SessionSummary struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	SessionID   string `gorm:"uniqueIndex;size:36;not null" json:"session_id"`
	Summary     string `json:"summary"`
	KeyPoints   string `json:"key_points"`
	ActionItems string `json:"action_items"`
	Decisions   string `json:"decisions"`
}
