// Package playback delivers synthesized audio to an output sink with
// instant cancellation.
//
// The orchestrator holds a Player for the lifetime of a session and calls
// Play once per turn. Play blocks until the clip has been fully delivered
// or Cancel pre-empts it; barge-in depends on Cancel taking effect within
// one chunk quantum, so the player never sits in a long uninterruptible
// write.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Outcome reports how a Play call ended.
type Outcome int

const (
	// OutcomeCompleted means the clip played to its natural end.
	OutcomeCompleted Outcome = iota
	// OutcomeCancelled means Cancel or ctx pre-empted the clip.
	OutcomeCancelled
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ErrSinkClosed is returned when the sink rejects a chunk mid-clip.
var ErrSinkClosed = errors.New("playback: sink closed")

// Player plays one audio clip at a time.
type Player interface {
	// Play delivers the clip and blocks until it finishes or is
	// cancelled. Only one Play may be active at a time.
	Play(ctx context.Context, pcm []byte) (Outcome, error)

	// Cancel halts the active Play, if any, within one chunk quantum.
	// Cancelling an idle or already-cancelled player is a no-op.
	Cancel()
}

const (
	// defaultChunkBytes is 20 ms of 16-bit mono PCM at 48 kHz.
	defaultChunkBytes = 1920
	// defaultChunkInterval paces delivery at real time.
	defaultChunkInterval = 20 * time.Millisecond
)

// Compile-time assertion that SinkPlayer satisfies Player.
var _ Player = (*SinkPlayer)(nil)

// SinkPlayer writes fixed-size chunks to a channel-backed audio sink,
// paced at real time so cancellation latency stays within one chunk
// interval regardless of clip length. The sink channel is owned by the
// caller (typically the session gateway forwarding to the browser).
type SinkPlayer struct {
	sink          chan<- []byte
	chunkBytes    int
	chunkInterval time.Duration
	logger        *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// SinkOption is a functional option for configuring a SinkPlayer.
type SinkOption func(*SinkPlayer)

// WithChunkBytes sets the chunk size in bytes. Defaults to 20 ms of
// 16-bit mono PCM at 48 kHz.
func WithChunkBytes(n int) SinkOption {
	return func(p *SinkPlayer) { p.chunkBytes = n }
}

// WithChunkInterval sets the real-time pacing interval between chunks.
func WithChunkInterval(d time.Duration) SinkOption {
	return func(p *SinkPlayer) { p.chunkInterval = d }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) SinkOption {
	return func(p *SinkPlayer) { p.logger = l }
}

// NewSinkPlayer creates a SinkPlayer writing to sink.
func NewSinkPlayer(sink chan<- []byte, opts ...SinkOption) *SinkPlayer {
	p := &SinkPlayer{
		sink:          sink,
		chunkBytes:    defaultChunkBytes,
		chunkInterval: defaultChunkInterval,
		logger:        slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Play implements Player. It slices pcm into chunks and writes one per
// interval; a cancel between chunks stops delivery immediately.
func (p *SinkPlayer) Play(ctx context.Context, pcm []byte) (Outcome, error) {
	if len(pcm) == 0 {
		return OutcomeCompleted, nil
	}

	playCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.cancel = nil
		p.mu.Unlock()
	}()

	ticker := time.NewTicker(p.chunkInterval)
	defer ticker.Stop()

	for off := 0; off < len(pcm); off += p.chunkBytes {
		end := off + p.chunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}

		select {
		case p.sink <- pcm[off:end]:
		case <-playCtx.Done():
			return OutcomeCancelled, nil
		}

		// Pace at real time so a cancel never waits on more than one
		// chunk interval.
		select {
		case <-ticker.C:
		case <-playCtx.Done():
			return OutcomeCancelled, nil
		}
	}

	return OutcomeCompleted, nil
}

// Cancel implements Player.
func (p *SinkPlayer) Cancel() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
