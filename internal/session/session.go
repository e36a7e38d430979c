// Package session owns the full listening pipeline for one conversation
// activation: the audio frame source, the bounded frame queue, the
// voice-activity worker, and the turn orchestrator.
//
// Two goroutines run under an errgroup. The pump forwards frames from the
// capture source into the queue and never blocks on downstream work; the
// detection worker drains the queue, runs the detector, and drives the
// orchestrator's speech handlers. If detection falls behind, the queue
// drops the oldest frames with a logged warning rather than stalling
// capture.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tugatalk/tugatalk/internal/observe"
	"github.com/tugatalk/tugatalk/internal/orchestrator"
	"github.com/tugatalk/tugatalk/internal/vad"
	"github.com/tugatalk/tugatalk/pkg/audio"
)

// defaultQueueCapacity bounds the frame queue between capture and
// detection. At 96 ms per frame this is roughly six seconds of backlog.
const defaultQueueCapacity = 64

// Session wires capture, detection, and the orchestrator together for the
// lifetime of one conversation activation.
type Session struct {
	source   audio.FrameSource
	detector *vad.Detector
	orch     *orchestrator.Orchestrator
	queue    *audio.Queue
	metrics  *observe.Metrics
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	group   *errgroup.Group

	stopOnce sync.Once
	done     chan struct{}
	runErr   error
}

// Option is a functional option for configuring a Session.
type Option func(*Session)

// WithQueueCapacity overrides the frame queue capacity.
func WithQueueCapacity(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.queue = audio.NewQueue(n)
		}
	}
}

// WithMetrics sets the metrics instance. Defaults to
// observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// New creates a Session over the given collaborators. The session takes
// ownership of source and detector; both are released by Stop.
func New(source audio.FrameSource, detector *vad.Detector, orch *orchestrator.Orchestrator, opts ...Option) (*Session, error) {
	if source == nil {
		return nil, errors.New("session: source must not be nil")
	}
	if detector == nil {
		return nil, errors.New("session: detector must not be nil")
	}
	if orch == nil {
		return nil, errors.New("session: orchestrator must not be nil")
	}

	s := &Session{
		source:   source,
		detector: detector,
		orch:     orch,
		queue:    audio.NewQueue(defaultQueueCapacity),
		logger:   slog.Default(),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s, nil
}

// Start launches the pipeline workers. It returns immediately; use Done
// and Err to observe the session ending on its own (source closed or a
// device-level detection failure).
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("session: already started")
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	g, gctx := errgroup.WithContext(runCtx)
	s.group = g
	s.mu.Unlock()

	if err := s.orch.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("session: start orchestrator: %w", err)
	}

	s.metrics.ActiveSessions.Add(context.Background(), 1)

	g.Go(func() error { return s.pump(gctx) })
	g.Go(func() error { return s.detect(gctx) })

	go func() {
		err := g.Wait()
		s.mu.Lock()
		s.runErr = err
		s.mu.Unlock()
		s.metrics.ActiveSessions.Add(context.Background(), -1)
		close(s.done)
	}()

	return nil
}

// pump forwards frames from the capture source into the queue. It never
// blocks on detection: Queue.Push drops the oldest frame when full.
func (s *Session) pump(ctx context.Context) error {
	defer s.queue.Close()
	for {
		select {
		case frame, ok := <-s.source.Frames():
			if !ok {
				s.logger.Info("audio source closed, ending session")
				return nil
			}
			s.queue.Push(frame)
		case <-ctx.Done():
			return nil
		}
	}
}

// detect drains the queue through the detector and drives the
// orchestrator. A ScorerFailureError is device-level and ends the
// session; any other detector error is logged and the frame skipped.
func (s *Session) detect(ctx context.Context) error {
	for {
		frame, ok := s.queue.Pop(ctx.Done())
		if !ok {
			return nil
		}

		event, err := s.detector.ProcessFrame(frame)
		if err != nil {
			var sfe *vad.ScorerFailureError
			if errors.As(err, &sfe) {
				s.logger.Error("speech scorer failing persistently, ending session",
					"consecutive", sfe.Consecutive, "error", sfe.Last)
				return fmt.Errorf("session: %w", err)
			}
			s.logger.Warn("detector error on frame", "error", err)
			continue
		}

		switch event.Type {
		case vad.EventSpeechStarted:
			s.metrics.RecordVADEvent(context.Background(), "speech_started")
			s.orch.OnSpeechStarted()
		case vad.EventSpeechEnded:
			s.metrics.RecordVADEvent(context.Background(), "speech_ended")
			if event.Utterance != nil {
				s.orch.OnSpeechEnded(*event.Utterance)
			}
		}
	}
}

// Stop tears the session down: capture stops, the in-flight turn is
// cancelled, and both workers are waited for. Idempotent.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		cancel := s.cancel
		started := s.started
		s.mu.Unlock()

		if err := s.source.Close(); err != nil && !errors.Is(err, audio.ErrSourceClosed) {
			s.logger.Warn("failed to close audio source", "error", err)
		}
		if cancel != nil {
			cancel()
		}
		s.orch.Stop()
		if started {
			<-s.done
		}
		if err := s.detector.Close(); err != nil {
			s.logger.Warn("failed to release speech scorer", "error", err)
		}

		dropped := s.queue.Dropped()
		if dropped > 0 {
			s.metrics.DroppedFrames.Add(context.Background(), int64(dropped))
			s.logger.Warn("frames were dropped during session", "dropped", dropped)
		}
	})
}

// Done is closed when both workers have exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the terminal worker error, if any. Valid after Done is
// closed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runErr
}
