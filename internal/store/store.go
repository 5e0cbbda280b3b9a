package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/RitamPal26/ScribeAI/internal/protocol"
)

// ErrSessionNotFound is returned when a session id matches no record.
var ErrSessionNotFound = errors.New("session not found")

// ErrTerminalStatus is returned when a write would regress a session that
// already reached COMPLETED or FAILED.
var ErrTerminalStatus = errors.New("session is in a terminal status")

// Store wraps the database handle and exposes session persistence services.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the SQLite database at path and runs migrations.
// Use ":memory:" for an ephemeral database in tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(
		&RecordingSession{},
		&TranscriptFragment{},
		&SessionSummary{},
	); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying GORM handle for migrations and maintenance
// tooling.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateSession persists a new session record.
func (s *Store) CreateSession(session *RecordingSession) error {
	if err := s.db.Create(session).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession loads one session by id.
func (s *Store) GetSession(id string) (*RecordingSession, error) {
	var session RecordingSession
	err := s.db.First(&session, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return &session, nil
}

// UpdateStatus transitions a session to the given status. Sessions already
// in a terminal status are left untouched and ErrTerminalStatus is returned.
func (s *Store) UpdateStatus(id, status string) error {
	if !protocol.ValidStatus(status) {
		return fmt.Errorf("invalid status %q", status)
	}

	result := s.db.Model(&RecordingSession{}).
		Where("id = ? AND status NOT IN ?", id, []string{protocol.StatusCompleted, protocol.StatusFailed}).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update session %s status: %w", id, result.Error)
	}

	if result.RowsAffected == 0 {
		// Distinguish a missing row from a terminal one.
		if _, err := s.GetSession(id); err != nil {
			return err
		}
		return ErrTerminalStatus
	}

	return nil
}

// MarkFailed transitions a session to FAILED with a cause, unless it already
// reached a terminal status.
func (s *Store) MarkFailed(id, cause string) error {
	result := s.db.Model(&RecordingSession{}).
		Where("id = ? AND status NOT IN ?", id, []string{protocol.StatusCompleted, protocol.StatusFailed}).
		Updates(map[string]interface{}{
			"status":     protocol.StatusFailed,
			"last_error": cause,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark session %s failed: %w", id, result.Error)
	}

	if result.RowsAffected == 0 {
		if _, err := s.GetSession(id); err != nil {
			return err
		}
		return ErrTerminalStatus
	}

	return nil
}

// SaveFragment persists one transcript fragment. A duplicate chunk index for
// the same session is a no-op: the unique index absorbs retransmissions.
func (s *Store) SaveFragment(fragment *TranscriptFragment) error {
	err := s.db.Create(fragment).Error
	if err != nil && isUniqueViolation(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to save fragment %d for session %s: %w",
			fragment.ChunkIndex, fragment.SessionID, err)
	}
	return nil
}

// FragmentsInOrder returns all fragments for a session sorted by chunk index.
func (s *Store) FragmentsInOrder(sessionID string) ([]TranscriptFragment, error) {
	var fragments []TranscriptFragment
	err := s.db.Where("session_id = ?", sessionID).
		Order("chunk_index ASC").
		Find(&fragments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load fragments for session %s: %w", sessionID, err)
	}
	return fragments, nil
}

// SetDuration records the client-reported final duration.
func (s *Store) SetDuration(id string, seconds float64) error {
	result := s.db.Model(&RecordingSession{}).
		Where("id = ?", id).
		Update("duration_seconds", seconds)
	if result.Error != nil {
		return fmt.Errorf("failed to set duration for session %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// FinalizeSession stores the assembled transcript and marks the session
// COMPLETED. It is the only path into the COMPLETED state.
func (s *Store) FinalizeSession(id, transcript string) error {
	result := s.db.Model(&RecordingSession{}).
		Where("id = ? AND status = ?", id, protocol.StatusProcessing).
		Updates(map[string]interface{}{
			"status":     protocol.StatusCompleted,
			"transcript": transcript,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to finalize session %s: %w", id, result.Error)
	}

	if result.RowsAffected == 0 {
		if _, err := s.GetSession(id); err != nil {
			return err
		}
		return ErrTerminalStatus
	}

	return nil
}

// SaveSummary persists the generated summary for a session. Slice fields are
// JSON-encoded. A summary already present for the session is left untouched.
func (s *Store) SaveSummary(sessionID string, summary protocol.SummaryPayload) error {
	keyPoints, err := json.Marshal(summary.KeyPoints)
	if err != nil {
		return fmt.Errorf("failed to encode key points: %w", err)
	}
	actionItems, err := json.Marshal(summary.ActionItems)
	if err != nil {
		return fmt.Errorf("failed to encode action items: %w", err)
	}
	decisions, err := json.Marshal(summary.Decisions)
	if err != nil {
		return fmt.Errorf("failed to encode decisions: %w", err)
	}

	record := SessionSummary{
		SessionID:   sessionID,
		Summary:     summary.Summary,
		KeyPoints:   string(keyPoints),
		ActionItems: string(actionItems),
		Decisions:   string(decisions),
	}

	err = s.db.Create(&record).Error
	if err != nil && isUniqueViolation(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to save summary for session %s: %w", sessionID, err)
	}
	return nil
}

// GetSummary loads the summary for a session, decoding the slice fields.
func (s *Store) GetSummary(sessionID string) (*protocol.SummaryPayload, error) {
	var record SessionSummary
	err := s.db.First(&record, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load summary for session %s: %w", sessionID, err)
	}

	summary := protocol.SummaryPayload{Summary: record.Summary}
	if record.KeyPoints != "" {
		if err := json.Unmarshal([]byte(record.KeyPoints), &summary.KeyPoints); err != nil {
			return nil, fmt.Errorf("failed to decode key points: %w", err)
		}
	}
	if record.ActionItems != "" {
		if err := json.Unmarshal([]byte(record.ActionItems), &summary.ActionItems); err != nil {
			return nil, fmt.Errorf("failed to decode action items: %w", err)
		}
	}
	if record.Decisions != "" {
		if err := json.Unmarshal([]byte(record.Decisions), &summary.Decisions); err != nil {
			return nil, fmt.Errorf("failed to decode decisions: %w", err)
		}
	}

	return &summary, nil
}

// ListSessions returns all sessions owned by a user, newest first.
func (s *Store) ListSessions(userID string) ([]RecordingSession, error) {
	var sessions []RecordingSession
	err := s.db.Where("user_id = ?", userID).
		Order("started_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions for user %s: %w", userID, err)
	}
	return sessions, nil
}

// CountByStatus returns the number of sessions currently in the given status.
func (s *Store) CountByStatus(status string) (int64, error) {
	var count int64
	err := s.db.Model(&RecordingSession{}).
		Where("status = ?", status).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

// isUniqueViolation reports whether err is a unique-constraint failure from
// the sqlite driver.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed")
}
