package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tugatalk/tugatalk/internal/orchestrator"
	"github.com/tugatalk/tugatalk/internal/playback"
	"github.com/tugatalk/tugatalk/internal/vad"
	"github.com/tugatalk/tugatalk/pkg/audio"
	agentmock "github.com/tugatalk/tugatalk/pkg/provider/agent/mock"
	scorermock "github.com/tugatalk/tugatalk/pkg/provider/scorer/mock"
	"github.com/tugatalk/tugatalk/pkg/provider/stt"
	sttmock "github.com/tugatalk/tugatalk/pkg/provider/stt/mock"
	ttsmock "github.com/tugatalk/tugatalk/pkg/provider/tts/mock"
)

const (
	testRate         = 16000
	testFrameSamples = 1536
)

// stubPlayer completes every clip instantly.
type stubPlayer struct {
	mu      sync.Mutex
	played  int
	cancels int
}

func (p *stubPlayer) Play(ctx context.Context, pcm []byte) (playback.Outcome, error) {
	p.mu.Lock()
	p.played++
	p.mu.Unlock()
	return playback.OutcomeCompleted, nil
}

func (p *stubPlayer) Cancel() {
	p.mu.Lock()
	p.cancels++
	p.mu.Unlock()
}

// fixture assembles a session over a channel source and scripted mocks.
type fixture struct {
	session *Session
	source  *audio.ChannelSource
	scorer  *scorermock.Scorer
	turns   chan orchestrator.Turn
}

func newFixture(t *testing.T, scores []float64) *fixture {
	t.Helper()

	sc := &scorermock.Scorer{Sequence: scores}
	detector, err := vad.New(sc, vad.Config{
		SampleRate:         testRate,
		FrameSamples:       testFrameSamples,
		PositiveThreshold:  0.5,
		NegativeThreshold:  0.35,
		MinSpeechFrames:    3,
		RedemptionFrames:   8,
		PreSpeechPadFrames: 3,
	})
	if err != nil {
		t.Fatalf("vad.New: %v", err)
	}

	turns := make(chan orchestrator.Turn, 16)
	orch, err := orchestrator.New(
		&sttmock.Transcriber{Result: stt.Transcript{Text: "bom dia"}},
		&agentmock.Responder{Reply: "Olá! Como está?"},
		&ttsmock.Synthesizer{Audio: []byte("wav")},
		&stubPlayer{},
		orchestrator.Config{},
		orchestrator.Callbacks{
			OnTurnComplete: func(turn orchestrator.Turn) { turns <- turn },
		},
	)
	if err != nil {
		t.Fatalf("orchestrator.New: %v", err)
	}

	source := audio.NewChannelSource(8)
	sess, err := New(source, detector, orch)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(sess.Stop)

	return &fixture{session: sess, source: source, scorer: sc, turns: turns}
}

// pushFrames feeds n frames through the source.
func (f *fixture) pushFrames(t *testing.T, n int) {
	t.Helper()
	frameDur := time.Duration(testFrameSamples) * time.Second / testRate
	for i := 0; i < n; i++ {
		frame := audio.Frame{
			Samples:    make([]float32, testFrameSamples),
			SampleRate: testRate,
			Timestamp:  time.Duration(i) * frameDur,
		}
		if err := f.source.Push(frame, 5*time.Second); err != nil {
			t.Fatalf("Push frame %d: %v", i, err)
		}
	}
}

func TestSessionRunsUtteranceThroughPipeline(t *testing.T) {
	t.Parallel()

	// 3 speech frames trigger onset; 8 silent ones confirm the end.
	scores := []float64{0.9, 0.9, 0.9, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1}
	f := newFixture(t, scores)

	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.pushFrames(t, len(scores))

	select {
	case turn := <-f.turns:
		if turn.Outcome != orchestrator.OutcomeCompleted {
			t.Fatalf("outcome = %v (failed stage %q), want completed", turn.Outcome, turn.FailedStage)
		}
		if turn.Transcript != "bom dia" {
			t.Errorf("transcript = %q, want %q", turn.Transcript, "bom dia")
		}
		if turn.Response != "Olá! Como está?" {
			t.Errorf("response = %q, want %q", turn.Response, "Olá! Como está?")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("no turn completed within deadline")
	}
}

func TestSessionEndsWhenSourceCloses(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := f.source.Close(); err != nil {
		t.Fatalf("Close source: %v", err)
	}

	select {
	case <-f.session.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("session did not end after source closed")
	}
	if err := f.session.Err(); err != nil {
		t.Errorf("Err = %v, want nil for clean source close", err)
	}
}

func TestSessionSurfacesPersistentScorerFailure(t *testing.T) {
	t.Parallel()

	sc := &scorermock.Scorer{ScoreErr: errors.New("model crashed")}
	detector, err := vad.New(sc, vad.Config{
		SampleRate:         testRate,
		FrameSamples:       testFrameSamples,
		PositiveThreshold:  0.5,
		NegativeThreshold:  0.35,
		MinSpeechFrames:    3,
		RedemptionFrames:   8,
		PreSpeechPadFrames: 3,
		MaxScoreFailures:   3,
	})
	if err != nil {
		t.Fatalf("vad.New: %v", err)
	}

	orch, err := orchestrator.New(
		&sttmock.Transcriber{},
		&agentmock.Responder{Reply: "x"},
		&ttsmock.Synthesizer{Audio: []byte("wav")},
		&stubPlayer{},
		orchestrator.Config{},
		orchestrator.Callbacks{},
	)
	if err != nil {
		t.Fatalf("orchestrator.New: %v", err)
	}

	source := audio.NewChannelSource(8)
	sess, err := New(source, detector, orch)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(sess.Stop)

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 3; i++ {
		frame := audio.Frame{Samples: make([]float32, testFrameSamples), SampleRate: testRate}
		if err := source.Push(frame, 5*time.Second); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	select {
	case <-sess.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("session did not end on persistent scorer failure")
	}

	var sfe *vad.ScorerFailureError
	if err := sess.Err(); !errors.As(err, &sfe) {
		t.Errorf("Err = %v, want ScorerFailureError", err)
	}
}

func TestSessionStopIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	f.session.Stop()
	f.session.Stop()

	select {
	case <-f.session.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("session did not end after Stop")
	}
}

func TestSessionStopReleasesScorer(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	f.session.Stop()
	f.session.Stop()

	if got := f.scorer.CloseCallCount; got != 1 {
		t.Errorf("scorer Close calls = %d, want 1", got)
	}
}

func TestSessionStartTwiceFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.session.Start(context.Background()); err == nil {
		t.Fatal("second Start succeeded, want error")
	}
}
