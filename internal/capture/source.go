package capture

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"
	"time"
)

// Source is an exclusive audio capture device. Start acquires the device and
// begins pushing PCM fragments; Stop releases it. Implementations must be
// safe to Stop from any state, including before Start and twice in a row.
type Source interface {
	Start(ctx context.Context) (<-chan []byte, error)
	Stop()
}

// FileSource replays a raw PCM-16 file as if it were live capture, pushing
// one slice per interval. Useful for testing the full pipeline without a
// microphone.
type FileSource struct {
	path       string
	sampleRate int
	interval   time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
}

// NewFileSource creates a source replaying the PCM file at path.
func NewFileSource(path string, sampleRate int, interval time.Duration) *FileSource {
	return &FileSource{
		path:       path,
		sampleRate: sampleRate,
		interval:   interval,
	}
}

// Start begins replaying the file. The returned channel closes when the
// file is exhausted, the context is cancelled, or Stop is called.
func (f *FileSource) Start(ctx context.Context) (<-chan []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.started {
		return nil, fmt.Errorf("source already started")
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file %s: %w", f.path, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.started = true

	// One slice per interval at 2 bytes per sample.
	sliceBytes := int(float64(f.sampleRate) * f.interval.Seconds() * 2)
	if sliceBytes <= 0 {
		sliceBytes = f.sampleRate * 2
	}

	out := make(chan []byte)
	go func() {
		defer close(out)

		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()

		for offset := 0; offset < len(data); offset += sliceBytes {
			end := offset + sliceBytes
			if end > len(data) {
				end = len(data)
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			slice := make([]byte, end-offset)
			copy(slice, data[offset:end])

			select {
			case out <- slice:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Stop releases the source. Safe to call multiple times.
func (f *FileSource) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.started = false
}

// ToneSource synthesizes a sine tone as PCM-16, pushing one slice per
// interval until stopped. Used for smoke testing end to end.
type ToneSource struct {
	frequency  float64
	sampleRate int
	interval   time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
}

// NewToneSource creates a source generating a sine tone at the given
// frequency.
func NewToneSource(frequency float64, sampleRate int, interval time.Duration) *ToneSource {
	return &ToneSource{
		frequency:  frequency,
		sampleRate: sampleRate,
		interval:   interval,
	}
}

// Start begins generating audio. The returned channel closes when the
// context is cancelled or Stop is called.
func (t *ToneSource) Start(ctx context.Context) (<-chan []byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return nil, fmt.Errorf("source already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.started = true

	samplesPerSlice := int(float64(t.sampleRate) * t.interval.Seconds())
	if samplesPerSlice <= 0 {
		samplesPerSlice = t.sampleRate
	}

	out := make(chan []byte)
	go func() {
		defer close(out)

		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		phase := 0.0
		step := 2 * math.Pi * t.frequency / float64(t.sampleRate)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			slice := make([]byte, samplesPerSlice*2)
			for i := 0; i < samplesPerSlice; i++ {
				sample := int16(math.Sin(phase) * 0.3 * math.MaxInt16)
				slice[i*2] = byte(sample)
				slice[i*2+1] = byte(sample >> 8)
				phase += step
			}

			select {
			case out <- slice:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Stop releases the source. Safe to call multiple times.
func (t *ToneSource) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.started = false
}
