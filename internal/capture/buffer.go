package capture

import (
	"sync"
	"time"
)

// Chunk is one flushed audio segment, ready for hand-off to the transport.
// Index is sequential from zero; Timestamp is seconds of recording time at
// the start of the chunk, advisory only.
type Chunk struct {
	Data      []byte
	Index     int
	Timestamp float64
}

// FlushFunc receives each flushed chunk. Delivery failures are the
// receiver's responsibility; the buffer has already moved on.
type FlushFunc func(Chunk)

// ChunkBuffer accumulates capture fragments and flushes them as one chunk
// per interval. The flush interval is independent of the capture cadence:
// many small fragments in, one sized chunk out. Pausing stops the timer
// without dropping buffered audio.
type ChunkBuffer struct {
	interval time.Duration
	flush    FlushFunc

	mu          sync.Mutex
	accumulator []byte
	nextIndex   int
	chunkStart  float64 // recording-relative start of the buffered audio

	// Pause-aware recording clock.
	segmentStart time.Time
	accumulated  time.Duration
	paused       bool
	running      bool

	timer *time.Ticker
	done  chan struct{}
	wg    sync.WaitGroup
}

// NewChunkBuffer creates a buffer flushing at the given interval.
func NewChunkBuffer(interval time.Duration, flush FlushFunc) *ChunkBuffer {
	return &ChunkBuffer{
		interval: interval,
		flush:    flush,
	}
}

// Start begins the flush timer. The recording clock starts now.
func (b *ChunkBuffer) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return
	}

	b.running = true
	b.paused = false
	b.segmentStart = time.Now()
	b.accumulated = 0
	b.nextIndex = 0
	b.accumulator = nil
	b.chunkStart = 0

	b.timer = time.NewTicker(b.interval)
	b.done = make(chan struct{})

	b.wg.Add(1)
	go b.run()
}

func (b *ChunkBuffer) run() {
	defer b.wg.Done()

	for {
		select {
		case <-b.done:
			return
		case <-b.timer.C:
			b.flushNow()
		}
	}
}

// Append adds one capture fragment to the accumulator. Fragments arriving
// while paused are buffered; they belong to the chunk flushed after resume.
func (b *ChunkBuffer) Append(fragment []byte) {
	if len(fragment) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}

	if len(b.accumulator) == 0 {
		b.chunkStart = b.elapsedLocked()
	}
	b.accumulator = append(b.accumulator, fragment...)
}

// Pause stops the flush timer and the recording clock. Buffered audio is
// kept for the next flush.
func (b *ChunkBuffer) Pause() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running || b.paused {
		return
	}

	b.paused = true
	b.accumulated += time.Since(b.segmentStart)
	b.timer.Stop()
}

// Resume restarts the flush timer and the recording clock.
func (b *ChunkBuffer) Resume() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running || !b.paused {
		return
	}

	b.paused = false
	b.segmentStart = time.Now()
	b.timer.Reset(b.interval)
}

// Stop halts the timer and flushes whatever is buffered, partial interval
// included. Safe to call twice.
func (b *ChunkBuffer) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	if !b.paused {
		b.accumulated += time.Since(b.segmentStart)
	}
	b.timer.Stop()
	close(b.done)
	b.mu.Unlock()

	b.wg.Wait()
	b.flushNow()
}

// Elapsed returns recording time excluding paused intervals.
func (b *ChunkBuffer) Elapsed() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Duration(b.elapsedLocked() * float64(time.Second))
}

// ChunksFlushed returns the number of chunks handed off so far.
func (b *ChunkBuffer) ChunksFlushed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextIndex
}

func (b *ChunkBuffer) elapsedLocked() float64 {
	elapsed := b.accumulated
	if b.running && !b.paused {
		elapsed += time.Since(b.segmentStart)
	}
	return elapsed.Seconds()
}

// flushNow swaps the accumulator out under the lock and hands the chunk off
// outside it. An empty accumulator flushes nothing: no audio arrived.
func (b *ChunkBuffer) flushNow() {
	b.mu.Lock()
	if len(b.accumulator) == 0 {
		b.mu.Unlock()
		return
	}

	chunk := Chunk{
		Data:      b.accumulator,
		Index:     b.nextIndex,
		Timestamp: b.chunkStart,
	}
	b.accumulator = nil
	b.nextIndex++
	b.mu.Unlock()

	b.flush(chunk)
}
