// Package history archives terminal conversation turns for later review
// and metrics. Archiving is best-effort: a store failure is logged by the
// caller and never fails the turn that produced it.
package history

import (
	"context"
	"sync"
	"time"
)

// Turn is one archived conversation turn.
type Turn struct {
	// ID is the orchestrator's turn identifier, unique within a session.
	ID uint64

	// Transcript is the (normalized, corrected) learner utterance text.
	// Empty for turns that never produced a transcript.
	Transcript string

	// Response is the tutor reply text, when the agent stage completed.
	Response string

	// Outcome is the terminal outcome label, e.g. "completed",
	// "empty_transcript", "cancelled", "failed".
	Outcome string

	// FailedStage names the pipeline stage that failed, when Outcome is
	// "failed".
	FailedStage string

	// Latency is end of learner speech to start of tutor playback. Zero
	// when the turn never reached playback.
	Latency time.Duration

	StartedAt   time.Time
	CompletedAt time.Time
}

// Store archives turns and serves recent ones.
type Store interface {
	// Archive persists one terminal turn.
	Archive(ctx context.Context, turn Turn) error

	// Recent returns up to n most recent turns, newest first.
	Recent(ctx context.Context, n int) ([]Turn, error)
}

// DefaultMemCapacity bounds the in-memory ring when no capacity is given.
const DefaultMemCapacity = 20

// MemStore is a bounded in-memory Store. When full, the oldest turn is
// evicted. Safe for concurrent use.
type MemStore struct {
	mu    sync.Mutex
	turns []Turn
	cap   int
}

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// NewMemStore creates a MemStore holding at most capacity turns.
// A non-positive capacity falls back to DefaultMemCapacity.
func NewMemStore(capacity int) *MemStore {
	if capacity <= 0 {
		capacity = DefaultMemCapacity
	}
	return &MemStore{cap: capacity}
}

// Archive implements Store. It never fails.
func (s *MemStore) Archive(_ context.Context, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turn)
	if len(s.turns) > s.cap {
		s.turns = s.turns[len(s.turns)-s.cap:]
	}
	return nil
}

// Recent implements Store.
func (s *MemStore) Recent(_ context.Context, n int) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.turns) {
		n = len(s.turns)
	}
	out := make([]Turn, 0, n)
	for i := len(s.turns) - 1; i >= len(s.turns)-n; i-- {
		out = append(out, s.turns[i])
	}
	return out, nil
}

// Len returns the number of turns currently held.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}
