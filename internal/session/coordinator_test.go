package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/RitamPal26/ScribeAI/internal/metrics"
	"github.com/RitamPal26/ScribeAI/internal/protocol"
	"github.com/RitamPal26/ScribeAI/internal/store"
	"github.com/RitamPal26/ScribeAI/internal/transcription"
)

// Prometheus collectors register globally, so the package shares one set.
var testMetrics = metrics.NewMetrics()

type fakeTranscriber struct {
	mu    sync.Mutex
	texts map[int]string
	fail  bool
	calls int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, request *transcription.Request) (*transcription.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return nil, fmt.Errorf("transcription backend unavailable")
	}
	return &transcription.Result{Text: f.texts[request.ChunkIndex], Confidence: 0.9}, nil
}

type fakeSummarizer struct {
	mu    sync.Mutex
	fail  bool
	calls int
}

func (f *fakeSummarizer) Summarize(_ context.Context, fullText string) (*protocol.SummaryPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return nil, fmt.Errorf("summary backend unavailable")
	}
	return &protocol.SummaryPayload{
		Summary:     "Summary of: " + fullText,
		KeyPoints:   []string{"point"},
		ActionItems: []string{},
		Decisions:   []string{},
	}, nil
}

func (f *fakeSummarizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	frames map[string][]*protocol.Frame
	order  map[string][]string // interleaved joins and events, per session
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{
		frames: make(map[string][]*protocol.Frame),
		order:  make(map[string][]string),
	}
}

func (f *fakeBroadcaster) Join(sessionID, connectionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order[sessionID] = append(f.order[sessionID], "join:"+connectionID)
}

func (f *fakeBroadcaster) Broadcast(sessionID string, frame *protocol.Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames[sessionID] = append(f.frames[sessionID], frame)
	f.order[sessionID] = append(f.order[sessionID], "event:"+frame.Event)
}

func (f *fakeBroadcaster) orderFor(sessionID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order[sessionID]...)
}

func (f *fakeBroadcaster) eventsFor(sessionID, event string) []*protocol.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []*protocol.Frame
	for _, frame := range f.frames[sessionID] {
		if frame.Event == event {
			matched = append(matched, frame)
		}
	}
	return matched
}

type testRig struct {
	coordinator *Coordinator
	store       *store.Store
	transcriber *fakeTranscriber
	summarizer  *fakeSummarizer
	broadcaster *fakeBroadcaster
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	transcriber := &fakeTranscriber{texts: map[int]string{}}
	summarizer := &fakeSummarizer{}
	broadcaster := newFakeBroadcaster()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	coordinator := NewCoordinator(logger, st, transcriber, summarizer, broadcaster, testMetrics, Config{
		SampleRate:  16000,
		MaxSessions: 10,
	})

	return &testRig{
		coordinator: coordinator,
		store:       st,
		transcriber: transcriber,
		summarizer:  summarizer,
		broadcaster: broadcaster,
	}
}

func (r *testRig) sendChunk(t *testing.T, caller Context, sessionID string, index int, timestamp float64) error {
	t.Helper()
	return r.coordinator.Chunk(context.Background(), caller, &protocol.AudioChunkPayload{
		SessionID:  sessionID,
		Chunk:      []byte{0x01, 0x02, 0x03, 0x04},
		ChunkIndex: index,
		Timestamp:  timestamp,
	})
}

func ackCode(t *testing.T, err error) string {
	t.Helper()
	ackErr, ok := err.(*protocol.AckError)
	if !ok {
		t.Fatalf("expected *protocol.AckError, got %T: %v", err, err)
	}
	return ackErr.Code
}

func TestStartRejectsUnknownSource(t *testing.T) {
	rig := newTestRig(t)
	caller := Context{ConnectionID: "conn-1", UserID: "user-1"}

	_, err := rig.coordinator.Start(context.Background(), caller, "SPEAKER", "")
	if err == nil {
		t.Fatal("expected error for unknown source")
	}
	if code := ackCode(t, err); code != protocol.CodeBadRequest {
		t.Errorf("expected bad_request, got %s", code)
	}
}

func TestStartRefusesSecondActiveSession(t *testing.T) {
	rig := newTestRig(t)
	caller := Context{ConnectionID: "conn-1", UserID: "user-1"}

	first, err := rig.coordinator.Start(context.Background(), caller, protocol.SourceMicrophone, "standup")
	if err != nil {
		t.Fatalf("first start failed: %v", err)
	}

	_, err = rig.coordinator.Start(context.Background(), caller, protocol.SourceMicrophone, "second")
	if err == nil {
		t.Fatal("second start while recording should fail")
	}
	if code := ackCode(t, err); code != protocol.CodeSessionActive {
		t.Errorf("expected session_active, got %s", code)
	}

	// The first session must be untouched by the refused start.
	session, err := rig.store.GetSession(first)
	if err != nil {
		t.Fatalf("first session lost: %v", err)
	}
	if session.Status != protocol.StatusRecording {
		t.Errorf("first session status changed to %s", session.Status)
	}
}

func TestStartAfterFinishedSessionSucceeds(t *testing.T) {
	rig := newTestRig(t)
	caller := Context{ConnectionID: "conn-1", UserID: "user-1"}

	first, err := rig.coordinator.Start(context.Background(), caller, protocol.SourceMicrophone, "")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := rig.coordinator.Stop(context.Background(), caller, first, 1.0); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	rig.coordinator.Shutdown()

	second, err := rig.coordinator.Start(context.Background(), caller, protocol.SourceTabAudio, "")
	if err != nil {
		t.Fatalf("start after completed session should succeed: %v", err)
	}
	if second == first {
		t.Error("expected a fresh session id")
	}
}

func TestChunksAssembleInIndexOrder(t *testing.T) {
	rig := newTestRig(t)
	rig.transcriber.texts = map[int]string{0: "alpha", 1: "beta", 2: "gamma"}
	caller := Context{ConnectionID: "conn-1", UserID: "user-1"}

	sessionID, err := rig.coordinator.Start(context.Background(), caller, protocol.SourceMicrophone, "")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// Out-of-order arrival: index order must still win.
	for _, index := range []int{2, 0, 1} {
		if err := rig.sendChunk(t, caller, sessionID, index, float64(index)); err != nil {
			t.Fatalf("chunk %d rejected: %v", index, err)
		}
	}

	if err := rig.coordinator.Stop(context.Background(), caller, sessionID, 3.0); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	rig.coordinator.Shutdown()

	session, err := rig.store.GetSession(sessionID)
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	if session.Status != protocol.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", session.Status)
	}
	if session.Transcript != "alpha beta gamma" {
		t.Errorf("expected ordered transcript, got %q", session.Transcript)
	}
}

func TestDuplicateChunkIsIdempotent(t *testing.T) {
	rig := newTestRig(t)
	rig.transcriber.texts = map[int]string{0: "once"}
	caller := Context{ConnectionID: "conn-1", UserID: "user-1"}

	sessionID, err := rig.coordinator.Start(context.Background(), caller, protocol.SourceMicrophone, "")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if err := rig.sendChunk(t, caller, sessionID, 0, 0); err != nil {
		t.Fatalf("first delivery rejected: %v", err)
	}
	if err := rig.sendChunk(t, caller, sessionID, 0, 0); err != nil {
		t.Fatalf("retransmission should be acknowledged: %v", err)
	}

	fragments, err := rig.store.FragmentsInOrder(sessionID)
	if err != nil {
		t.Fatalf("failed to load fragments: %v", err)
	}
	if len(fragments) != 1 {
		t.Errorf("expected one stored fragment, got %d", len(fragments))
	}
}

func TestSilentChunkIsValid(t *testing.T) {
	rig := newTestRig(t)
	rig.transcriber.texts = map[int]string{0: "Hello", 1: "", 2: "world"}
	caller := Context{ConnectionID: "conn-1", UserID: "user-1"}

	sessionID, err := rig.coordinator.Start(context.Background(), caller, protocol.SourceMicrophone, "")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	for index := 0; index < 3; index++ {
		if err := rig.sendChunk(t, caller, sessionID, index, float64(index)); err != nil {
			t.Fatalf("chunk %d rejected: %v", index, err)
		}
	}

	if err := rig.coordinator.Stop(context.Background(), caller, sessionID, 3.0); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	rig.coordinator.Shutdown()

	session, err := rig.store.GetSession(sessionID)
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	if session.Status != protocol.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", session.Status)
	}
	if session.Transcript != "Hello world" {
		t.Errorf("empty fragment should not leave a double space, got %q", session.Transcript)
	}

	summary, err := rig.store.GetSummary(sessionID)
	if err != nil {
		t.Fatalf("expected a stored summary: %v", err)
	}
	if !strings.Contains(summary.Summary, "Hello world") {
		t.Errorf("summary should reference the transcript, got %q", summary.Summary)
	}
}

func TestChunkWhilePausedIsRetryable(t *testing.T) {
	rig := newTestRig(t)
	caller := Context{ConnectionID: "conn-1", UserID: "user-1"}

	sessionID, err := rig.coordinator.Start(context.Background(), caller, protocol.SourceMicrophone, "")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := rig.coordinator.Pause(context.Background(), caller, sessionID); err != nil {
		t.Fatalf("pause failed: %v", err)
	}

	err = rig.sendChunk(t, caller, sessionID, 0, 0)
	if err == nil {
		t.Fatal("chunk while paused should be rejected")
	}
	ackErr, ok := err.(*protocol.AckError)
	if !ok {
		t.Fatalf("expected *protocol.AckError, got %T", err)
	}
	if ackErr.Code != protocol.CodePaused || !ackErr.Retryable {
		t.Errorf("expected retryable paused error, got %+v", ackErr)
	}

	if err := rig.coordinator.Resume(context.Background(), caller, sessionID); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if err := rig.sendChunk(t, caller, sessionID, 0, 0); err != nil {
		t.Errorf("chunk after resume rejected: %v", err)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	rig := newTestRig(t)
	rig.transcriber.texts = map[int]string{0: "hello"}
	caller := Context{ConnectionID: "conn-1", UserID: "user-1"}

	sessionID, err := rig.coordinator.Start(context.Background(), caller, protocol.SourceMicrophone, "")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := rig.sendChunk(t, caller, sessionID, 0, 0); err != nil {
		t.Fatalf("chunk rejected: %v", err)
	}

	if err := rig.coordinator.Stop(context.Background(), caller, sessionID, 1.0); err != nil {
		t.Fatalf("first stop failed: %v", err)
	}
	if err := rig.coordinator.Stop(context.Background(), caller, sessionID, 1.0); err != nil {
		t.Fatalf("duplicate stop should succeed: %v", err)
	}
	rig.coordinator.Shutdown()
	if err := rig.coordinator.Stop(context.Background(), caller, sessionID, 1.0); err != nil {
		t.Fatalf("stop after completion should succeed: %v", err)
	}

	if count := rig.summarizer.callCount(); count != 1 {
		t.Errorf("expected exactly one summarization run, got %d", count)
	}

	events := rig.broadcaster.eventsFor(sessionID, protocol.EventSummaryGenerated)
	if len(events) != 1 {
		t.Errorf("expected exactly one summary event, got %d", len(events))
	}
}

func TestStopRetryAfterCompletionSucceeds(t *testing.T) {
	rig := newTestRig(t)
	rig.transcriber.texts = map[int]string{0: "hello"}
	caller := Context{ConnectionID: "conn-1", UserID: "user-1"}

	sessionID, err := rig.coordinator.Start(context.Background(), caller, protocol.SourceMicrophone, "")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := rig.sendChunk(t, caller, sessionID, 0, 0); err != nil {
		t.Fatalf("chunk rejected: %v", err)
	}
	if err := rig.coordinator.Stop(context.Background(), caller, sessionID, 1.0); err != nil {
		t.Fatalf("first stop failed: %v", err)
	}
	rig.coordinator.Shutdown()

	// The first stop released the binding; a delayed retry of the same stop
	// arrives with the session already COMPLETED and must still succeed.
	if err := rig.coordinator.Stop(context.Background(), caller, sessionID, 1.0); err != nil {
		t.Fatalf("stop retry after completion should succeed, got: %v", err)
	}

	// And it must not re-bind the connection as a side effect.
	if boundID, ok := rig.coordinator.Registry().BoundSession("conn-1"); ok {
		t.Errorf("stop retry must not re-bind the connection, bound to %s", boundID)
	}

	if count := rig.summarizer.callCount(); count != 1 {
		t.Errorf("expected exactly one summarization run, got %d", count)
	}
}

func TestTranscriptionFailureDegradesToEmptyFragment(t *testing.T) {
	rig := newTestRig(t)
	rig.transcriber.fail = true
	caller := Context{ConnectionID: "conn-1", UserID: "user-1"}

	sessionID, err := rig.coordinator.Start(context.Background(), caller, protocol.SourceMicrophone, "")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if err := rig.sendChunk(t, caller, sessionID, 0, 0); err != nil {
		t.Fatalf("chunk should be acknowledged despite transcription failure: %v", err)
	}

	fragments, err := rig.store.FragmentsInOrder(sessionID)
	if err != nil {
		t.Fatalf("failed to load fragments: %v", err)
	}
	if len(fragments) != 1 {
		t.Fatalf("expected one fragment, got %d", len(fragments))
	}
	if fragments[0].Text != "" || fragments[0].Confidence != 0 {
		t.Errorf("expected empty zero-confidence fragment, got %+v", fragments[0])
	}
}

func TestPersistenceFailureStillAcksChunk(t *testing.T) {
	rig := newTestRig(t)
	rig.transcriber.texts = map[int]string{0: "hello"}
	caller := Context{ConnectionID: "conn-1", UserID: "user-1"}

	sessionID, err := rig.coordinator.Start(context.Background(), caller, protocol.SourceMicrophone, "")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// Break fragment persistence underneath the coordinator.
	if err := rig.store.DB().Migrator().DropTable(&store.TranscriptFragment{}); err != nil {
		t.Fatalf("failed to drop fragments table: %v", err)
	}

	if err := rig.sendChunk(t, caller, sessionID, 0, 0); err != nil {
		t.Fatalf("lost write must not fail the chunk ack, got: %v", err)
	}

	// The live update still reaches the group even though the write failed.
	events := rig.broadcaster.eventsFor(sessionID, protocol.EventTranscriptionUpdate)
	if len(events) != 1 {
		t.Errorf("expected one transcription update, got %d", len(events))
	}
}

func TestSummaryFailureStillCompletesSession(t *testing.T) {
	rig := newTestRig(t)
	rig.transcriber.texts = map[int]string{0: "hello"}
	rig.summarizer.fail = true
	caller := Context{ConnectionID: "conn-1", UserID: "user-1"}

	sessionID, err := rig.coordinator.Start(context.Background(), caller, protocol.SourceMicrophone, "")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := rig.sendChunk(t, caller, sessionID, 0, 0); err != nil {
		t.Fatalf("chunk rejected: %v", err)
	}
	if err := rig.coordinator.Stop(context.Background(), caller, sessionID, 1.0); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	rig.coordinator.Shutdown()

	session, err := rig.store.GetSession(sessionID)
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	if session.Status != protocol.StatusCompleted {
		t.Errorf("expected COMPLETED despite summary failure, got %s", session.Status)
	}
	if session.Transcript != "hello" {
		t.Errorf("transcript should survive summary failure, got %q", session.Transcript)
	}

	if _, err := rig.store.GetSummary(sessionID); err == nil {
		t.Error("no summary should be stored after a summarization failure")
	}

	events := rig.broadcaster.eventsFor(sessionID, protocol.EventSummaryGenerated)
	if len(events) != 0 {
		t.Errorf("no summary event expected, got %d", len(events))
	}
}

func TestReattachAfterReconnect(t *testing.T) {
	rig := newTestRig(t)
	rig.transcriber.texts = map[int]string{0: "hello", 1: "again"}
	caller := Context{ConnectionID: "conn-1", UserID: "user-1"}

	sessionID, err := rig.coordinator.Start(context.Background(), caller, protocol.SourceMicrophone, "")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := rig.sendChunk(t, caller, sessionID, 0, 0); err != nil {
		t.Fatalf("chunk rejected: %v", err)
	}

	// The original transport drops without the session ending; the client
	// reconnects on a fresh connection id and keeps streaming. To exercise
	// the binding-mismatch path in isolation the disconnect cleanup is not
	// invoked here.
	reconnected := Context{ConnectionID: "conn-2", UserID: "user-1"}
	if err := rig.sendChunk(t, reconnected, sessionID, 1, 1); err != nil {
		t.Fatalf("chunk after reconnect should reattach: %v", err)
	}

	boundID, ok := rig.coordinator.Registry().BoundSession("conn-2")
	if !ok || boundID != sessionID {
		t.Errorf("expected conn-2 re-bound to %s, got %q ok=%v", sessionID, boundID, ok)
	}

	fragments, err := rig.store.FragmentsInOrder(sessionID)
	if err != nil {
		t.Fatalf("failed to load fragments: %v", err)
	}
	if len(fragments) != 2 {
		t.Errorf("expected both fragments stored, got %d", len(fragments))
	}
}

func TestStaleConnectionDisconnectKeepsReattachedSession(t *testing.T) {
	rig := newTestRig(t)
	rig.transcriber.texts = map[int]string{0: "hello", 1: "again"}
	stale := Context{ConnectionID: "conn-old", UserID: "user-1"}

	sessionID, err := rig.coordinator.Start(context.Background(), stale, protocol.SourceMicrophone, "")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := rig.sendChunk(t, stale, sessionID, 0, 0); err != nil {
		t.Fatalf("chunk rejected: %v", err)
	}

	// The client reconnects and reattaches before the old transport's
	// close is noticed server-side.
	live := Context{ConnectionID: "conn-new", UserID: "user-1"}
	if err := rig.sendChunk(t, live, sessionID, 1, 1); err != nil {
		t.Fatalf("chunk after reconnect should reattach: %v", err)
	}

	// The half-open connection finally drops. Its cleanup must not touch
	// the session, which now lives on the new connection.
	rig.coordinator.Disconnect(stale, "ping timeout")

	session, err := rig.store.GetSession(sessionID)
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	if session.Status != protocol.StatusRecording {
		t.Errorf("reattached session must survive the stale disconnect, got %s", session.Status)
	}

	boundID, ok := rig.coordinator.Registry().BoundSession("conn-new")
	if !ok || boundID != sessionID {
		t.Errorf("expected conn-new bound to %s, got %q ok=%v", sessionID, boundID, ok)
	}
	if _, ok := rig.coordinator.Registry().BoundSession("conn-old"); ok {
		t.Error("stale connection must lose its binding on reattach")
	}

	if err := rig.sendChunk(t, live, sessionID, 2, 2); err != nil {
		t.Errorf("session should keep accepting chunks after the stale disconnect: %v", err)
	}
}

func TestReattachRejectsForeignUser(t *testing.T) {
	rig := newTestRig(t)
	caller := Context{ConnectionID: "conn-1", UserID: "user-1"}

	sessionID, err := rig.coordinator.Start(context.Background(), caller, protocol.SourceMicrophone, "")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	intruder := Context{ConnectionID: "conn-2", UserID: "user-2"}
	err = rig.sendChunk(t, intruder, sessionID, 0, 0)
	if err == nil {
		t.Fatal("foreign user must not attach to the session")
	}
	if code := ackCode(t, err); code != protocol.CodeNotOwner {
		t.Errorf("expected not_owner, got %s", code)
	}
}

func TestChunkForUnknownSession(t *testing.T) {
	rig := newTestRig(t)
	caller := Context{ConnectionID: "conn-1", UserID: "user-1"}

	err := rig.sendChunk(t, caller, "no-such-session", 0, 0)
	if err == nil {
		t.Fatal("expected error for unknown session")
	}
	if code := ackCode(t, err); code != protocol.CodeSessionUnknown {
		t.Errorf("expected session_unknown, got %s", code)
	}
}

func TestDisconnectFailsActiveSession(t *testing.T) {
	rig := newTestRig(t)
	caller := Context{ConnectionID: "conn-1", UserID: "user-1"}

	sessionID, err := rig.coordinator.Start(context.Background(), caller, protocol.SourceMicrophone, "")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	rig.coordinator.Disconnect(caller, "connection lost")

	session, err := rig.store.GetSession(sessionID)
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	if session.Status != protocol.StatusFailed {
		t.Errorf("expected FAILED after disconnect, got %s", session.Status)
	}
	if session.LastError == "" {
		t.Error("expected the failure cause to be recorded")
	}
}

func TestDisconnectAfterStopLeavesSessionAlone(t *testing.T) {
	rig := newTestRig(t)
	rig.transcriber.texts = map[int]string{0: "hello"}
	caller := Context{ConnectionID: "conn-1", UserID: "user-1"}

	sessionID, err := rig.coordinator.Start(context.Background(), caller, protocol.SourceMicrophone, "")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := rig.sendChunk(t, caller, sessionID, 0, 0); err != nil {
		t.Fatalf("chunk rejected: %v", err)
	}
	if err := rig.coordinator.Stop(context.Background(), caller, sessionID, 1.0); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	rig.coordinator.Shutdown()

	rig.coordinator.Disconnect(caller, "connection lost")

	session, err := rig.store.GetSession(sessionID)
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	if session.Status != protocol.StatusCompleted {
		t.Errorf("completed session must not regress, got %s", session.Status)
	}
}

func TestPauseResumeStatusBroadcasts(t *testing.T) {
	rig := newTestRig(t)
	caller := Context{ConnectionID: "conn-1", UserID: "user-1"}

	sessionID, err := rig.coordinator.Start(context.Background(), caller, protocol.SourceMicrophone, "")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := rig.coordinator.Pause(context.Background(), caller, sessionID); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	// Duplicate pause is acknowledged without a second transition.
	if err := rig.coordinator.Pause(context.Background(), caller, sessionID); err != nil {
		t.Fatalf("duplicate pause should succeed: %v", err)
	}
	if err := rig.coordinator.Resume(context.Background(), caller, sessionID); err != nil {
		t.Fatalf("resume failed: %v", err)
	}

	var statuses []string
	for _, frame := range rig.broadcaster.eventsFor(sessionID, protocol.EventRecordingStatus) {
		var event protocol.RecordingStatusEvent
		if err := frame.DecodePayload(&event); err != nil {
			t.Fatalf("failed to decode status event: %v", err)
		}
		statuses = append(statuses, event.Status)
	}

	want := []string{protocol.StatusRecording, protocol.StatusPaused, protocol.StatusRecording}
	if len(statuses) != len(want) {
		t.Fatalf("expected %d status events, got %d: %v", len(want), len(statuses), statuses)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Errorf("status event %d: expected %s, got %s", i, want[i], statuses[i])
		}
	}
}

func TestOwnerJoinsGroupBeforeFirstStatusEvent(t *testing.T) {
	rig := newTestRig(t)
	caller := Context{ConnectionID: "conn-1", UserID: "user-1"}

	sessionID, err := rig.coordinator.Start(context.Background(), caller, protocol.SourceMicrophone, "")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	order := rig.broadcaster.orderFor(sessionID)
	if len(order) < 2 {
		t.Fatalf("expected a join and a status event, got %v", order)
	}
	if order[0] != "join:conn-1" {
		t.Errorf("owner must join the group before any event, got %v", order)
	}
	if order[1] != "event:"+protocol.EventRecordingStatus {
		t.Errorf("expected the initial status event after the join, got %v", order)
	}
}
