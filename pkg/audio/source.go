// Package audio defines the frame types, format conversions, and transport
// plumbing shared by the voice pipeline.
//
// The two central abstractions are:
//
//   - [Frame] — a fixed-length slice of normalized samples, the VAD's unit of
//     processing.
//   - [FrameSource] — an input device (or network transport standing in for
//     one) that emits frames in capture order.
//
// The package also provides [Queue], the bounded handoff between the capture
// context and the VAD worker: capture must never block on downstream work, so
// the queue drops the oldest frame under pressure instead of applying
// backpressure upstream.
package audio

import (
	"errors"
	"sync"
	"time"
)

// ErrSourceClosed is returned by [ChannelSource.Push] after Close.
var ErrSourceClosed = errors.New("audio: frame source is closed")

// FrameSource acquires raw audio from an input device and emits fixed-size
// frames at a fixed sample rate.
//
// Implementations must deliver frames in capture order and close the Frames
// channel when the device is released.
type FrameSource interface {
	// Frames returns the channel on which captured frames are delivered.
	// The channel is closed when the source is closed or the device fails.
	Frames() <-chan Frame

	// Close releases the input device. Safe to call more than once; subsequent
	// calls are no-ops and return nil.
	Close() error
}

// ChannelSource is a FrameSource fed by its owner, one frame at a time. The
// WebSocket gateway uses it to turn decoded mic packets from the browser into
// a frame stream; tests use it to script capture sequences.
//
// All methods are safe for concurrent use.
type ChannelSource struct {
	mu     sync.Mutex
	ch     chan Frame
	closed bool
}

// Compile-time interface assertion.
var _ FrameSource = (*ChannelSource)(nil)

// NewChannelSource creates a ChannelSource with the given channel buffer depth.
func NewChannelSource(buf int) *ChannelSource {
	if buf <= 0 {
		buf = 8
	}
	return &ChannelSource{ch: make(chan Frame, buf)}
}

// Push delivers a frame to consumers. It blocks until the frame is accepted,
// the timeout elapses, or the source is closed; a zero timeout means block
// indefinitely. Returns ErrSourceClosed after Close, including when Close
// lands while Push is blocked on a full buffer.
func (s *ChannelSource) Push(f Frame, timeout time.Duration) (err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSourceClosed
	}
	ch := s.ch
	s.mu.Unlock()

	// A send racing Close panics on the closed channel; translate that to
	// the same error the fast path returns.
	defer func() {
		if recover() != nil {
			err = ErrSourceClosed
		}
	}()

	if timeout <= 0 {
		ch <- f
		return nil
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case ch <- f:
		return nil
	case <-t.C:
		return errors.New("audio: push timed out")
	}
}

// Frames implements [FrameSource].
func (s *ChannelSource) Frames() <-chan Frame {
	return s.ch
}

// Close implements [FrameSource]. Pending frames already in the channel remain
// readable; the channel is closed so consumers terminate cleanly.
func (s *ChannelSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.ch)
	return nil
}
