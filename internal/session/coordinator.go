package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RitamPal26/ScribeAI/internal/metrics"
	"github.com/RitamPal26/ScribeAI/internal/protocol"
	"github.com/RitamPal26/ScribeAI/internal/store"
	"github.com/RitamPal26/ScribeAI/internal/transcription"
)

// Transcriber is the transcription capability consumed by the coordinator.
type Transcriber interface {
	Transcribe(ctx context.Context, request *transcription.Request) (*transcription.Result, error)
}

// Summarizer is the summarization capability consumed by the finalize job.
type Summarizer interface {
	Summarize(ctx context.Context, fullText string) (*protocol.SummaryPayload, error)
}

// Broadcaster delivers an event frame to every connection in a session's
// broadcast group. Join adds a connection to the group; it must happen
// before any event for that session is broadcast to the joining connection.
type Broadcaster interface {
	Join(sessionID, connectionID string)
	Broadcast(sessionID string, frame *protocol.Frame)
}

// Context identifies the caller of a coordinator operation. It is built by
// the transport layer from the authenticated connection; handlers never look
// connection state up from globals.
type Context struct {
	ConnectionID string
	UserID       string
}

// Config contains coordinator configuration.
type Config struct {
	SampleRate  int
	MaxSessions int
}

// Coordinator owns the authoritative per-session state machine. The client
// mirrors this state and may lag; on conflict the coordinator's view wins.
type Coordinator struct {
	logger      *slog.Logger
	store       *store.Store
	transcriber Transcriber
	summarizer  Summarizer
	broadcaster Broadcaster
	registry    *Registry
	metrics     *metrics.Metrics
	config      Config

	// Per-session serialization of status transitions; finalizing guards
	// against launching a second summarization job for the same session.
	mu         sync.Mutex
	locks      map[string]*sync.Mutex
	finalizing map[string]bool

	jobs sync.WaitGroup
}

// NewCoordinator creates the recording session coordinator.
func NewCoordinator(logger *slog.Logger, st *store.Store, transcriber Transcriber,
	summarizer Summarizer, broadcaster Broadcaster, m *metrics.Metrics, config Config) *Coordinator {

	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}
	if config.MaxSessions <= 0 {
		config.MaxSessions = 100
	}

	return &Coordinator{
		logger:      logger,
		store:       st,
		transcriber: transcriber,
		summarizer:  summarizer,
		broadcaster: broadcaster,
		registry:    NewRegistry(),
		metrics:     m,
		config:      config,
		locks:       make(map[string]*sync.Mutex),
		finalizing:  make(map[string]bool),
	}
}

// Registry exposes the connection-to-session binding table.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// Start validates the caller, creates a persisted session in RECORDING
// state, binds the connection to it, and broadcasts the initial status.
// Starting a second session while one is active is an error, never a
// silent override.
func (c *Coordinator) Start(ctx context.Context, caller Context, source, title string) (string, error) {
	if caller.UserID == "" {
		return "", &protocol.AckError{Code: protocol.CodeUnauthorized, Message: "connection has no authenticated user"}
	}

	if !protocol.ValidSource(source) {
		return "", &protocol.AckError{Code: protocol.CodeBadRequest, Message: fmt.Sprintf("unknown capture source %q", source)}
	}

	// A connection bound to a still-active session may not start another.
	// A stale binding to a finished session is cleared instead.
	if boundID, ok := c.registry.BoundSession(caller.ConnectionID); ok {
		bound, err := c.store.GetSession(boundID)
		if err == nil && !protocol.TerminalStatus(bound.Status) && bound.Status != protocol.StatusProcessing {
			return "", &protocol.AckError{
				Code:    protocol.CodeSessionActive,
				Message: fmt.Sprintf("session %s is already active on this connection", boundID),
			}
		}
		c.registry.Release(caller.ConnectionID)
	}

	if c.registry.ActiveCount() >= c.config.MaxSessions {
		return "", &protocol.AckError{
			Code:      protocol.CodeInternal,
			Message:   "maximum concurrent sessions reached",
			Retryable: true,
		}
	}

	session := &store.RecordingSession{
		ID:        uuid.NewString(),
		UserID:    caller.UserID,
		Source:    source,
		Title:     title,
		Status:    protocol.StatusRecording,
		StartedAt: time.Now().UTC(),
	}

	if err := c.store.CreateSession(session); err != nil {
		c.logger.Error("Failed to persist new session",
			slog.String("user_id", caller.UserID),
			slog.String("error", err.Error()),
		)
		return "", &protocol.AckError{Code: protocol.CodeInternal, Message: "failed to create session", Retryable: true}
	}

	if !c.registry.Bind(caller.ConnectionID, session.ID) {
		// The read loop serializes a connection's requests, so a binding
		// appearing between the check above and here means the slot was
		// claimed concurrently. Refuse rather than silently override.
		if err := c.store.MarkFailed(session.ID, "connection claimed by another session"); err != nil {
			c.logger.Error("Failed to discard orphaned session",
				slog.String("session_id", session.ID),
				slog.String("error", err.Error()),
			)
		}
		return "", &protocol.AckError{
			Code:    protocol.CodeSessionActive,
			Message: "connection is already bound to a session",
		}
	}

	// The owner joins the broadcast group before the first status event so
	// no event for its own session is ever missed.
	c.broadcaster.Join(session.ID, caller.ConnectionID)

	c.metrics.SessionsStarted.Inc()
	c.metrics.SessionsActive.Inc()

	c.logger.Info("Recording session started",
		slog.String("session_id", session.ID),
		slog.String("user_id", caller.UserID),
		slog.String("source", source),
		slog.String("connection_id", caller.ConnectionID),
	)

	c.broadcastStatus(session.ID, protocol.StatusRecording)

	return session.ID, nil
}

// Chunk validates ownership of one audio chunk, hands it to the
// transcription capability, persists the resulting fragment, and broadcasts
// it to the session's group. A transcription failure degrades to an empty
// zero-confidence fragment; a persistence failure is logged but never fails
// the acknowledgement back to the sender.
func (c *Coordinator) Chunk(ctx context.Context, caller Context, payload *protocol.AudioChunkPayload) error {
	if payload.SessionID == "" {
		return &protocol.AckError{Code: protocol.CodeBadRequest, Message: "missing session id"}
	}
	if payload.ChunkIndex < 0 {
		return &protocol.AckError{Code: protocol.CodeBadRequest, Message: "negative chunk index"}
	}
	if len(payload.Chunk) == 0 {
		return &protocol.AckError{Code: protocol.CodeBadRequest, Message: "empty chunk payload"}
	}

	session, err := c.resolveSession(caller, payload.SessionID)
	if err != nil {
		c.metrics.ChunksRejected.Inc()
		return err
	}

	if session.Status == protocol.StatusPaused {
		// Chunks racing a pause are rejected retryably so ordering is
		// never corrupted by processing during PAUSED.
		c.metrics.ChunksRejected.Inc()
		return &protocol.AckError{Code: protocol.CodePaused, Message: "session is paused", Retryable: true}
	}

	if protocol.TerminalStatus(session.Status) || session.Status == protocol.StatusProcessing {
		c.metrics.ChunksRejected.Inc()
		return &protocol.AckError{Code: protocol.CodeSessionFinal, Message: "session is no longer recording"}
	}

	c.metrics.ChunksReceived.Inc()
	c.metrics.ChunkSize.Observe(float64(len(payload.Chunk)))

	result := c.transcribeChunk(ctx, payload)

	fragment := &store.TranscriptFragment{
		SessionID:  payload.SessionID,
		ChunkIndex: payload.ChunkIndex,
		Text:       result.Text,
		Timestamp:  payload.Timestamp,
		Confidence: result.Confidence,
	}

	if err := c.store.SaveFragment(fragment); err != nil {
		// A lost write must not stall the live stream; the error is tied
		// to the session in the log for later diagnosis.
		c.metrics.StoreErrors.Inc()
		c.logger.Error("Failed to persist fragment",
			slog.String("session_id", payload.SessionID),
			slog.Int("chunk_index", payload.ChunkIndex),
			slog.String("error", err.Error()),
		)
	}

	c.broadcastFragment(payload.SessionID, fragment)

	return nil
}

// Pause transitions a session to PAUSED and broadcasts the new status.
func (c *Coordinator) Pause(ctx context.Context, caller Context, sessionID string) error {
	return c.setStatus(caller, sessionID, protocol.StatusRecording, protocol.StatusPaused)
}

// Resume transitions a session back to RECORDING and broadcasts the status.
func (c *Coordinator) Resume(ctx context.Context, caller Context, sessionID string) error {
	return c.setStatus(caller, sessionID, protocol.StatusPaused, protocol.StatusRecording)
}

// Stop finalizes a session. It is idempotent: a duplicate stop for a session
// already in PROCESSING or COMPLETED returns success without side effects.
// The summarization workflow runs in the background; the acknowledgement is
// never blocked on it.
func (c *Coordinator) Stop(ctx context.Context, caller Context, sessionID string, duration float64) error {
	// Idempotency is checked before ownership resolution: once the first
	// stop released the binding, a retry would otherwise take the recovery
	// path and be rejected as terminal. A duplicate stop also must not
	// re-bind the connection as a side effect.
	session, err := c.store.GetSession(sessionID)
	if err != nil {
		return c.storeError(sessionID, err)
	}
	switch session.Status {
	case protocol.StatusProcessing, protocol.StatusCompleted:
		return nil
	}

	if _, err := c.resolveSession(caller, sessionID); err != nil {
		return err
	}

	lock := c.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock so concurrent stop/disconnect handlers cannot
	// race each other to a final state.
	session, err = c.store.GetSession(sessionID)
	if err != nil {
		return c.storeError(sessionID, err)
	}

	switch session.Status {
	case protocol.StatusProcessing, protocol.StatusCompleted:
		return nil // duplicate stop, client retry
	case protocol.StatusFailed:
		return &protocol.AckError{Code: protocol.CodeSessionFinal, Message: "session already failed"}
	}

	if err := c.store.UpdateStatus(sessionID, protocol.StatusProcessing); err != nil {
		return c.storeError(sessionID, err)
	}

	if duration > 0 {
		if err := c.store.SetDuration(sessionID, duration); err != nil {
			c.metrics.StoreErrors.Inc()
			c.logger.Error("Failed to persist final duration",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
		}
	}

	c.registry.Release(caller.ConnectionID)
	c.metrics.SessionsActive.Dec()
	c.metrics.SessionDuration.Observe(duration)

	c.logger.Info("Recording session stopping",
		slog.String("session_id", sessionID),
		slog.Float64("duration", duration),
	)

	c.broadcastStatus(sessionID, protocol.StatusProcessing)

	c.mu.Lock()
	if !c.finalizing[sessionID] {
		c.finalizing[sessionID] = true
		c.jobs.Add(1)
		go c.finalize(sessionID)
	}
	c.mu.Unlock()

	return nil
}

// Disconnect handles the loss of a transport connection. A bound session
// still in RECORDING or PAUSED is marked FAILED; a session that already
// reached PROCESSING or COMPLETED is never regressed.
func (c *Coordinator) Disconnect(caller Context, cause string) {
	sessionID, ok := c.registry.Release(caller.ConnectionID)
	if !ok {
		return
	}

	lock := c.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := c.store.GetSession(sessionID)
	if err != nil {
		c.logger.Warn("Disconnect cleanup could not load session",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		return
	}

	if session.Status != protocol.StatusRecording && session.Status != protocol.StatusPaused {
		return
	}

	if err := c.store.MarkFailed(sessionID, cause); err != nil {
		if !errors.Is(err, store.ErrTerminalStatus) {
			c.metrics.StoreErrors.Inc()
			c.logger.Error("Failed to mark session failed on disconnect",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	c.metrics.SessionsActive.Dec()
	c.metrics.SessionsFailed.Inc()

	c.logger.Warn("Active session failed on disconnect",
		slog.String("session_id", sessionID),
		slog.String("connection_id", caller.ConnectionID),
		slog.String("cause", cause),
	)

	c.broadcastStatus(sessionID, protocol.StatusFailed)
}

// Shutdown waits for in-flight background finalize jobs to complete.
func (c *Coordinator) Shutdown() {
	c.jobs.Wait()
}

// resolveSession checks that the caller's connection is bound to the
// declared session. On mismatch it attempts the explicit recovery path:
// reattach(sessionID, userID) succeeds when the session exists, belongs to
// the same user, and is still in an active status — which re-binds the
// connection (in-memory state lost on reconnect, session still alive).
func (c *Coordinator) resolveSession(caller Context, sessionID string) (*store.RecordingSession, error) {
	session, err := c.store.GetSession(sessionID)
	if err != nil {
		return nil, c.storeError(sessionID, err)
	}

	boundID, bound := c.registry.BoundSession(caller.ConnectionID)
	if bound && boundID == sessionID {
		return session, nil
	}

	// Recovery check.
	if session.UserID != caller.UserID {
		return nil, &protocol.AckError{Code: protocol.CodeNotOwner, Message: "session belongs to another user"}
	}

	if protocol.TerminalStatus(session.Status) {
		return nil, &protocol.AckError{Code: protocol.CodeSessionFinal, Message: "session already finished"}
	}

	c.registry.Rebind(caller.ConnectionID, sessionID)
	c.broadcaster.Join(sessionID, caller.ConnectionID)
	c.metrics.SessionReattaches.Inc()

	c.logger.Info("Connection re-bound to session after recovery check",
		slog.String("session_id", sessionID),
		slog.String("connection_id", caller.ConnectionID),
		slog.String("user_id", caller.UserID),
	)

	return session, nil
}

// setStatus performs a pause or resume transition under the session lock.
func (c *Coordinator) setStatus(caller Context, sessionID, from, to string) error {
	if _, err := c.resolveSession(caller, sessionID); err != nil {
		return err
	}

	lock := c.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := c.store.GetSession(sessionID)
	if err != nil {
		return c.storeError(sessionID, err)
	}

	if session.Status == to {
		return nil // already there, duplicate request
	}

	if session.Status != from {
		return &protocol.AckError{
			Code:    protocol.CodeBadRequest,
			Message: fmt.Sprintf("cannot move session from %s to %s", session.Status, to),
		}
	}

	if err := c.store.UpdateStatus(sessionID, to); err != nil {
		return c.storeError(sessionID, err)
	}

	c.logger.Info("Session status changed",
		slog.String("session_id", sessionID),
		slog.String("from", from),
		slog.String("to", to),
	)

	c.broadcastStatus(sessionID, to)

	return nil
}

// transcribeChunk calls the transcription capability, degrading any failure
// to an empty zero-confidence result so one bad chunk never fails a session.
func (c *Coordinator) transcribeChunk(ctx context.Context, payload *protocol.AudioChunkPayload) *transcription.Result {
	c.metrics.TranscriptionRequests.Inc()

	startTime := time.Now()
	result, err := c.transcriber.Transcribe(ctx, &transcription.Request{
		SessionID:  payload.SessionID,
		ChunkIndex: payload.ChunkIndex,
		Audio:      payload.Chunk,
		SampleRate: c.config.SampleRate,
		Timestamp:  payload.Timestamp,
	})
	c.metrics.TranscriptionDuration.Observe(time.Since(startTime).Seconds())

	if err != nil {
		c.metrics.TranscriptionFailures.Inc()
		c.logger.Warn("Transcription failed, storing empty fragment",
			slog.String("session_id", payload.SessionID),
			slog.Int("chunk_index", payload.ChunkIndex),
			slog.String("error", err.Error()),
		)
		return &transcription.Result{Text: "", Confidence: 0}
	}

	c.metrics.TranscriptionSuccesses.Inc()
	return result
}

// finalize is the background job behind stop: assemble the transcript in
// chunk-index order, generate the summary, persist both, mark the session
// COMPLETED, and broadcast the results. A summarization failure is logged
// and the session still completes — the transcript is never lost to a
// downstream summary failure.
func (c *Coordinator) finalize(sessionID string) {
	defer c.jobs.Done()
	defer func() {
		c.mu.Lock()
		delete(c.finalizing, sessionID)
		c.mu.Unlock()
	}()

	ctx := context.Background()

	fragments, err := c.store.FragmentsInOrder(sessionID)
	if err != nil {
		c.metrics.StoreErrors.Inc()
		c.logger.Error("Finalize could not load fragments",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		fragments = nil
	}

	transcript := joinFragments(fragments)

	var summaryPayload *protocol.SummaryPayload
	summaryPayload, err = c.summarizer.Summarize(ctx, transcript)
	if err != nil {
		c.metrics.SummaryFailures.Inc()
		c.logger.Error("Summarization failed, completing session without summary",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		summaryPayload = nil
	}

	if err := c.store.FinalizeSession(sessionID, transcript); err != nil {
		c.metrics.StoreErrors.Inc()
		c.logger.Error("Failed to finalize session",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		return
	}

	if summaryPayload != nil {
		if err := c.store.SaveSummary(sessionID, *summaryPayload); err != nil {
			c.metrics.StoreErrors.Inc()
			c.logger.Error("Failed to persist summary",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
		} else {
			c.metrics.SummariesGenerated.Inc()
		}
	}

	c.metrics.SessionsCompleted.Inc()

	c.logger.Info("Recording session completed",
		slog.String("session_id", sessionID),
		slog.Int("fragments", len(fragments)),
		slog.Int("transcript_length", len(transcript)),
		slog.Bool("summary_present", summaryPayload != nil),
	)

	c.broadcastStatus(sessionID, protocol.StatusCompleted)

	if summaryPayload != nil {
		frame, err := protocol.NewEvent(protocol.EventSummaryGenerated, protocol.SummaryGeneratedEvent{
			SessionID: sessionID,
			Summary:   *summaryPayload,
		})
		if err == nil {
			c.broadcaster.Broadcast(sessionID, frame)
		}
	}
}

// sessionLock returns the per-session transition mutex, creating it lazily.
func (c *Coordinator) sessionLock(sessionID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	lock, ok := c.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[sessionID] = lock
	}
	return lock
}

func (c *Coordinator) storeError(sessionID string, err error) error {
	if errors.Is(err, store.ErrSessionNotFound) {
		return &protocol.AckError{Code: protocol.CodeSessionUnknown, Message: fmt.Sprintf("unknown session %s", sessionID)}
	}
	if errors.Is(err, store.ErrTerminalStatus) {
		return &protocol.AckError{Code: protocol.CodeSessionFinal, Message: "session already finished"}
	}

	c.metrics.StoreErrors.Inc()
	c.logger.Error("Persistence error",
		slog.String("session_id", sessionID),
		slog.String("error", err.Error()),
	)
	return &protocol.AckError{Code: protocol.CodeInternal, Message: "persistence error", Retryable: true}
}

// broadcastStatus sends a recording-status event to the session's group.
func (c *Coordinator) broadcastStatus(sessionID, status string) {
	frame, err := protocol.NewEvent(protocol.EventRecordingStatus, protocol.RecordingStatusEvent{
		SessionID: sessionID,
		Status:    status,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		c.logger.Error("Failed to build status event", slog.String("error", err.Error()))
		return
	}
	c.broadcaster.Broadcast(sessionID, frame)
}

// broadcastFragment sends a transcription-update event to the session's group.
func (c *Coordinator) broadcastFragment(sessionID string, fragment *store.TranscriptFragment) {
	frame, err := protocol.NewEvent(protocol.EventTranscriptionUpdate, protocol.TranscriptionUpdateEvent{
		SessionID:  sessionID,
		ChunkIndex: fragment.ChunkIndex,
		Text:       fragment.Text,
		Timestamp:  fragment.Timestamp,
		Confidence: fragment.Confidence,
	})
	if err != nil {
		c.logger.Error("Failed to build fragment event", slog.String("error", err.Error()))
		return
	}
	c.broadcaster.Broadcast(sessionID, frame)
}

// joinFragments concatenates fragment texts in chunk-index order with a
// single separating space. Empty fragments (silence or failed chunks) hold
// their ordinal slot but contribute no separator artifact.
func joinFragments(fragments []store.TranscriptFragment) string {
	parts := make([]string, 0, len(fragments))
	for _, fragment := range fragments {
		if fragment.Text == "" {
			continue
		}
		parts = append(parts, fragment.Text)
	}
	return strings.Join(parts, " ")
}
