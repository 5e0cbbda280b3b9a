package transcript

import (
	"sort"
	"strings"
	"sync"
)

// Fragment is one transcribed chunk positioned by its chunk index. Empty
// text is a valid fragment: silence holds its slot in the transcript.
type Fragment struct {
	ChunkIndex int
	Text       string
	Timestamp  float64
	Confidence float64
}

// Assembler orders fragments by chunk index regardless of arrival order.
// Duplicate indexes are dropped, so retransmitted fragments never double
// words in the transcript.
type Assembler struct {
	mu        sync.RWMutex
	fragments []Fragment
	seen      map[int]bool
}

// NewAssembler creates an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{
		seen: make(map[int]bool),
	}
}

// AddFragment inserts one fragment. It reports whether the fragment was new;
// a duplicate chunk index is ignored.
func (a *Assembler) AddFragment(fragment Fragment) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.seen[fragment.ChunkIndex] {
		return false
	}
	a.seen[fragment.ChunkIndex] = true

	a.fragments = append(a.fragments, fragment)
	sort.Slice(a.fragments, func(i, j int) bool {
		return a.fragments[i].ChunkIndex < a.fragments[j].ChunkIndex
	})

	return true
}

// FullText returns the transcript so far: non-empty fragment texts in chunk
// index order, separated by single spaces.
func (a *Assembler) FullText() string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	parts := make([]string, 0, len(a.fragments))
	for _, fragment := range a.fragments {
		if fragment.Text == "" {
			continue
		}
		parts = append(parts, fragment.Text)
	}
	return strings.Join(parts, " ")
}

// Fragments returns a snapshot of the fragments in index order.
func (a *Assembler) Fragments() []Fragment {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]Fragment, len(a.fragments))
	copy(out, a.fragments)
	return out
}

// Len returns the number of distinct fragments received.
func (a *Assembler) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.fragments)
}

// Clear drops all fragments. Only valid when starting a brand-new session;
// an in-flight session's transcript is never cleared.
func (a *Assembler) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.fragments = nil
	a.seen = make(map[int]bool)
}
