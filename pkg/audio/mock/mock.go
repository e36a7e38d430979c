// Package mock provides test doubles for the audio package interfaces.
//
// Source is a scriptable [audio.FrameSource]: tests enqueue frames with Emit
// and the consumer drains them through Frames, exactly as it would a live
// capture device.
package mock

import (
	"sync"

	"github.com/tugatalk/tugatalk/pkg/audio"
)

// Source is a mock implementation of audio.FrameSource.
type Source struct {
	mu sync.Mutex

	ch     chan audio.Frame
	closed bool

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Compile-time interface assertion.
var _ audio.FrameSource = (*Source)(nil)

// NewSource creates a Source with the given channel buffer depth.
func NewSource(buf int) *Source {
	return &Source{ch: make(chan audio.Frame, buf)}
}

// Emit queues a frame for delivery. Panics if called after Close (a test bug).
func (s *Source) Emit(f audio.Frame) {
	s.ch <- f
}

// Frames implements audio.FrameSource.
func (s *Source) Frames() <-chan audio.Frame { return s.ch }

// Close records the call, closes the frame channel once, and returns CloseErr.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return s.CloseErr
}
