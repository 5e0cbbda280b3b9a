package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/RitamPal26/ScribeAI/internal/capture"
	"github.com/RitamPal26/ScribeAI/internal/duplex"
	"github.com/RitamPal26/ScribeAI/internal/protocol"
	"github.com/RitamPal26/ScribeAI/internal/transcript"
)

// Client-side states. RECORDING through FAILED mirror the server statuses.
const (
	StatusIdle       = "IDLE"
	StatusRecording  = protocol.StatusRecording
	StatusPaused     = protocol.StatusPaused
	StatusProcessing = protocol.StatusProcessing
	StatusCompleted  = protocol.StatusCompleted
	StatusError      = "ERROR"
)

// Config contains recorder configuration.
type Config struct {
	Source         string // MICROPHONE or TAB_AUDIO
	Title          string
	FlushInterval  time.Duration
	RequestTimeout time.Duration
}

// Recorder runs one recording session at a time over a duplex channel.
type Recorder struct {
	logger    *slog.Logger
	channel   *duplex.Channel
	source    capture.Source
	assembler *transcript.Assembler
	config    Config

	mu         sync.Mutex
	status     string
	sessionID  string
	lastErr    error
	buffer     *capture.ChunkBuffer
	cancelPump context.CancelFunc
	chunksSent int

	completed     chan struct{}
	unsubscribers []func()
}

// NewRecorder creates an idle recorder.
func NewRecorder(logger *slog.Logger, channel *duplex.Channel, source capture.Source, config Config) *Recorder {
	if config.FlushInterval <= 0 {
		config.FlushInterval = 15 * time.Second
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 10 * time.Second
	}

	return &Recorder{
		logger:    logger,
		channel:   channel,
		source:    source,
		assembler: transcript.NewAssembler(),
		config:    config,
		status:    StatusIdle,
	}
}

// Start acquires the capture source, opens a session on the server, and
// begins streaming chunks. Any failure releases the source and returns the
// recorder to IDLE with the error recorded.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.status != StatusIdle && r.status != StatusCompleted && r.status != StatusError {
		status := r.status
		r.mu.Unlock()
		return fmt.Errorf("cannot start while %s", status)
	}
	r.status = StatusIdle
	r.lastErr = nil
	r.mu.Unlock()

	pumpCtx, cancelPump := context.WithCancel(context.Background())

	fragments, err := r.source.Start(pumpCtx)
	if err != nil {
		cancelPump()
		return r.fail(fmt.Errorf("failed to acquire capture source: %w", err))
	}

	requestCtx, cancel := context.WithTimeout(ctx, r.config.RequestTimeout)
	defer cancel()

	ack, err := r.channel.Request(requestCtx, protocol.ActionStartRecording, protocol.StartRecordingPayload{
		Source: r.config.Source,
		Title:  r.config.Title,
	})
	if err != nil {
		cancelPump()
		r.source.Stop()
		return r.fail(fmt.Errorf("start request failed: %w", err))
	}

	var started protocol.StartRecordingAck
	if err := ack.DecodePayload(&started); err != nil {
		cancelPump()
		r.source.Stop()
		return r.fail(fmt.Errorf("malformed start ack: %w", err))
	}

	r.mu.Lock()
	for _, unsubscribe := range r.unsubscribers {
		unsubscribe()
	}
	r.unsubscribers = nil
	r.sessionID = started.SessionID
	r.status = StatusRecording
	r.chunksSent = 0
	r.cancelPump = cancelPump
	r.completed = make(chan struct{})
	r.buffer = capture.NewChunkBuffer(r.config.FlushInterval, r.sendChunk)
	r.assembler.Clear()
	r.subscribeLocked()
	buffer := r.buffer
	r.mu.Unlock()

	buffer.Start()

	go r.pump(fragments)

	r.logger.Info("Recording started",
		slog.String("session_id", started.SessionID),
		slog.String("source", r.config.Source),
	)

	return nil
}

// pump moves capture fragments into the chunk buffer until the source ends.
func (r *Recorder) pump(fragments <-chan []byte) {
	for fragment := range fragments {
		r.mu.Lock()
		buffer := r.buffer
		r.mu.Unlock()
		if buffer == nil {
			return
		}
		buffer.Append(fragment)
	}
}

// sendChunk ships one flushed chunk to the server. A rejected chunk is
// logged; the stream keeps going.
func (r *Recorder) sendChunk(chunk capture.Chunk) {
	r.mu.Lock()
	sessionID := r.sessionID
	r.mu.Unlock()
	if sessionID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.config.RequestTimeout)
	defer cancel()

	_, err := r.channel.Request(ctx, protocol.ActionAudioChunk, protocol.AudioChunkPayload{
		SessionID:  sessionID,
		Chunk:      chunk.Data,
		ChunkIndex: chunk.Index,
		Timestamp:  chunk.Timestamp,
	})
	if err != nil {
		r.logger.Warn("Chunk delivery failed",
			slog.String("session_id", sessionID),
			slog.Int("chunk_index", chunk.Index),
			slog.String("error", err.Error()),
		)
		return
	}

	r.mu.Lock()
	r.chunksSent++
	r.mu.Unlock()
}

// subscribeLocked wires the server's events into the client state. Callers
// must hold r.mu.
func (r *Recorder) subscribeLocked() {
	sessionID := r.sessionID
	completed := r.completed

	unsubUpdates := r.channel.Subscribe(protocol.EventTranscriptionUpdate, func(frame *protocol.Frame) {
		var event protocol.TranscriptionUpdateEvent
		if err := frame.DecodePayload(&event); err != nil || event.SessionID != sessionID {
			return
		}
		r.assembler.AddFragment(transcript.Fragment{
			ChunkIndex: event.ChunkIndex,
			Text:       event.Text,
			Timestamp:  event.Timestamp,
			Confidence: event.Confidence,
		})
	})

	unsubStatus := r.channel.Subscribe(protocol.EventRecordingStatus, func(frame *protocol.Frame) {
		var event protocol.RecordingStatusEvent
		if err := frame.DecodePayload(&event); err != nil || event.SessionID != sessionID {
			return
		}

		switch event.Status {
		case protocol.StatusCompleted:
			r.mu.Lock()
			if r.status == StatusProcessing {
				r.status = StatusCompleted
			}
			r.mu.Unlock()
			select {
			case <-completed:
			default:
				close(completed)
			}
		case protocol.StatusFailed:
			r.mu.Lock()
			r.status = StatusError
			r.lastErr = fmt.Errorf("session failed on the server")
			r.mu.Unlock()
		}
	})

	r.unsubscribers = append(r.unsubscribers, unsubUpdates, unsubStatus)
}

// Pause suspends capture hand-off and the recording clock.
func (r *Recorder) Pause(ctx context.Context) error {
	r.mu.Lock()
	if r.status != StatusRecording {
		status := r.status
		r.mu.Unlock()
		return fmt.Errorf("cannot pause while %s", status)
	}
	sessionID := r.sessionID
	buffer := r.buffer
	r.mu.Unlock()

	// The buffer pauses before the server learns about it so no flush can
	// race the pause round-trip and get rejected, losing its chunk index.
	// On resume the order is mirrored: the server first, the buffer second.
	buffer.Pause()

	requestCtx, cancel := context.WithTimeout(ctx, r.config.RequestTimeout)
	defer cancel()

	if _, err := r.channel.Request(requestCtx, protocol.ActionPauseRecording,
		protocol.SessionRefPayload{SessionID: sessionID}); err != nil {
		buffer.Resume()
		return fmt.Errorf("pause request failed: %w", err)
	}

	r.mu.Lock()
	r.status = StatusPaused
	r.mu.Unlock()

	return nil
}

// Resume restarts capture hand-off and the recording clock.
func (r *Recorder) Resume(ctx context.Context) error {
	r.mu.Lock()
	if r.status != StatusPaused {
		status := r.status
		r.mu.Unlock()
		return fmt.Errorf("cannot resume while %s", status)
	}
	sessionID := r.sessionID
	buffer := r.buffer
	r.mu.Unlock()

	requestCtx, cancel := context.WithTimeout(ctx, r.config.RequestTimeout)
	defer cancel()

	if _, err := r.channel.Request(requestCtx, protocol.ActionResumeRecording,
		protocol.SessionRefPayload{SessionID: sessionID}); err != nil {
		return fmt.Errorf("resume request failed: %w", err)
	}

	buffer.Resume()

	r.mu.Lock()
	r.status = StatusRecording
	r.mu.Unlock()

	return nil
}

// Stop ends capture, flushes the final partial chunk, and asks the server
// to finalize the session. The recorder reaches COMPLETED only when the
// server's completion event arrives.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.status != StatusRecording && r.status != StatusPaused {
		status := r.status
		r.mu.Unlock()
		return fmt.Errorf("cannot stop while %s", status)
	}
	sessionID := r.sessionID
	buffer := r.buffer
	cancelPump := r.cancelPump
	r.mu.Unlock()

	if cancelPump != nil {
		cancelPump()
	}
	r.source.Stop()

	// Final flush happens before the stop request so the last partial
	// chunk is counted in the session.
	buffer.Stop()
	duration := buffer.Elapsed().Seconds()

	requestCtx, cancel := context.WithTimeout(ctx, r.config.RequestTimeout)
	defer cancel()

	if _, err := r.channel.Request(requestCtx, protocol.ActionStopRecording, protocol.StopRecordingPayload{
		SessionID: sessionID,
		Duration:  duration,
	}); err != nil {
		return r.fail(fmt.Errorf("stop request failed: %w", err))
	}

	r.mu.Lock()
	r.status = StatusProcessing
	r.mu.Unlock()

	r.logger.Info("Recording stopped, waiting for processing",
		slog.String("session_id", sessionID),
		slog.Float64("duration", duration),
	)

	return nil
}

// WaitCompleted blocks until the server announces completion or the context
// ends.
func (r *Recorder) WaitCompleted(ctx context.Context) error {
	r.mu.Lock()
	completed := r.completed
	r.mu.Unlock()

	if completed == nil {
		return fmt.Errorf("no session in flight")
	}

	select {
	case <-completed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases everything the recorder holds. Safe to call on any state
// and more than once.
func (r *Recorder) Close() {
	r.mu.Lock()
	cancelPump := r.cancelPump
	buffer := r.buffer
	unsubscribers := r.unsubscribers
	r.cancelPump = nil
	r.buffer = nil
	r.unsubscribers = nil
	r.mu.Unlock()

	if cancelPump != nil {
		cancelPump()
	}
	r.source.Stop()
	if buffer != nil {
		buffer.Stop()
	}
	for _, unsubscribe := range unsubscribers {
		unsubscribe()
	}
}

// Status returns the client's view of the session state.
func (r *Recorder) Status() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// SessionID returns the server-assigned session id, empty before Start.
func (r *Recorder) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// Err returns the recorded failure, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// ChunksSent returns the number of chunks acknowledged by the server.
func (r *Recorder) ChunksSent() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chunksSent
}

// Elapsed returns recording time excluding paused intervals, recomputed
// from the clock rather than accumulated tick by tick.
func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	buffer := r.buffer
	r.mu.Unlock()

	if buffer == nil {
		return 0
	}
	return buffer.Elapsed()
}

// Transcript returns the live transcript assembled so far.
func (r *Recorder) Transcript() string {
	return r.assembler.FullText()
}

// Fragments returns the live transcript fragments in index order.
func (r *Recorder) Fragments() []transcript.Fragment {
	return r.assembler.Fragments()
}

// fail records the error, releases held state, and returns the error.
func (r *Recorder) fail(err error) error {
	r.mu.Lock()
	r.status = StatusError
	r.lastErr = err
	r.mu.Unlock()

	r.logger.Error("Recorder failure", slog.String("error", err.Error()))
	return err
}
