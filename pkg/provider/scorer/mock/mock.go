// Package mock provides a test double for the scorer package.
//
// Scorer plays back a scripted probability sequence and records every frame
// it was asked to score:
//
//	sc := &mock.Scorer{Sequence: []float64{0.6, 0.6, 0.6, 0.1}}
//	p, _ := sc.Score(frame) // 0.6, then 0.6, 0.6, 0.1, then DefaultScore
package mock

import (
	"sync"

	"github.com/tugatalk/tugatalk/pkg/audio"
	"github.com/tugatalk/tugatalk/pkg/provider/scorer"
)

// ScoreCall records a single invocation of Scorer.Score.
type ScoreCall struct {
	// Frame is the frame passed to Score (samples not copied).
	Frame audio.Frame
}

// Scorer is a mock implementation of scorer.Scorer.
type Scorer struct {
	mu sync.Mutex

	// Sequence is played back one element per Score call. When exhausted,
	// DefaultScore is returned.
	Sequence []float64

	// DefaultScore is returned once Sequence is exhausted.
	DefaultScore float64

	// ScoreErr, if non-nil, is returned by Score calls at zero-based index
	// ErrAfter and beyond.
	ScoreErr error
	ErrAfter int

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// ScoreCalls records every call to Score in order.
	ScoreCalls []ScoreCall

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	next int
}

// Compile-time interface assertion.
var _ scorer.Scorer = (*Scorer)(nil)

// Score records the call and returns the next scripted probability.
func (s *Scorer) Score(frame audio.Frame) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.next
	s.next++
	s.ScoreCalls = append(s.ScoreCalls, ScoreCall{Frame: frame})

	if s.ScoreErr != nil && idx >= s.ErrAfter {
		return 0, s.ScoreErr
	}
	if idx < len(s.Sequence) {
		return s.Sequence[idx], nil
	}
	return s.DefaultScore, nil
}

// Reset records the call by incrementing ResetCallCount.
func (s *Scorer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCallCount++
}

// Close records the call and returns CloseErr.
func (s *Scorer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}
