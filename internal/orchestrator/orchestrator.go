// Package orchestrator drives the conversation turn pipeline: a completed
// utterance flows through transcription, the conversation agent, speech
// synthesis, and playback, with every stage bounded by a timeout and
// cancellable by a new speech onset (barge-in).
//
// At most one turn is in flight. Every stage call is tagged with its
// turn's identifier; before a stage result is applied, the identifier is
// checked against the orchestrator's current turn under the mutex, and
// stale results are dropped. A result from a cancelled turn is never
// surfaced through any callback.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tugatalk/tugatalk/internal/history"
	"github.com/tugatalk/tugatalk/internal/observe"
	"github.com/tugatalk/tugatalk/internal/playback"
	"github.com/tugatalk/tugatalk/internal/transcript"
	"github.com/tugatalk/tugatalk/pkg/audio"
	"github.com/tugatalk/tugatalk/pkg/provider/agent"
	"github.com/tugatalk/tugatalk/pkg/provider/stt"
	"github.com/tugatalk/tugatalk/pkg/provider/tts"
)

// Config carries per-stage timeouts and synthesis parameters.
type Config struct {
	// TranscriptionTimeout bounds the speech-to-text stage. Default 10s.
	TranscriptionTimeout time.Duration

	// AgentTimeout bounds the conversation-agent stage. Default 20s.
	AgentTimeout time.Duration

	// SynthesisTimeout bounds the text-to-speech stage. Default 15s.
	SynthesisTimeout time.Duration

	// Language is the transcription language hint. Default "pt".
	Language string

	// Voice is the synthesis voice. Empty means the synthesizer default.
	Voice string

	// SpeakingRate is the synthesis rate multiplier. Zero means 1.0.
	SpeakingRate float64

	// SourceLabel identifies the transcription backend to the agent.
	SourceLabel string
}

// WithDefaults returns a copy of c with zero fields set to defaults.
func (c Config) WithDefaults() Config {
	if c.TranscriptionTimeout <= 0 {
		c.TranscriptionTimeout = 10 * time.Second
	}
	if c.AgentTimeout <= 0 {
		c.AgentTimeout = 20 * time.Second
	}
	if c.SynthesisTimeout <= 0 {
		c.SynthesisTimeout = 15 * time.Second
	}
	if c.Language == "" {
		c.Language = "pt"
	}
	return c
}

// Orchestrator owns the turn pipeline for one session.
type Orchestrator struct {
	transcriber stt.Transcriber
	responder   agent.Responder
	synthesizer tts.Synthesizer
	player      playback.Player

	corrector *transcript.Corrector
	store     history.Store
	metrics   *observe.Metrics
	logger    *slog.Logger

	cfg Config
	cb  Callbacks

	mu         sync.Mutex
	state      State
	nextTurnID uint64
	currentID  uint64 // 0 = no turn in flight
	cancelTurn context.CancelFunc
	started    bool
	stopped    bool
	baseCtx    context.Context
	baseCancel context.CancelFunc

	wg sync.WaitGroup
}

// Option is a functional option for configuring an Orchestrator.
type Option func(*Orchestrator)

// WithCorrector attaches a phonetic vocabulary corrector applied to each
// transcript before the agent stage.
func WithCorrector(c *transcript.Corrector) Option {
	return func(o *Orchestrator) { o.corrector = c }
}

// WithStore attaches a turn history store. Archive failures are logged,
// never surfaced.
func WithStore(s history.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithMetrics sets the metrics instance. Defaults to
// observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an Orchestrator over the four stage collaborators.
func New(transcriber stt.Transcriber, responder agent.Responder, synthesizer tts.Synthesizer, player playback.Player, cfg Config, cb Callbacks, opts ...Option) (*Orchestrator, error) {
	if transcriber == nil {
		return nil, errors.New("orchestrator: transcriber must not be nil")
	}
	if responder == nil {
		return nil, errors.New("orchestrator: responder must not be nil")
	}
	if synthesizer == nil {
		return nil, errors.New("orchestrator: synthesizer must not be nil")
	}
	if player == nil {
		return nil, errors.New("orchestrator: player must not be nil")
	}

	o := &Orchestrator{
		transcriber: transcriber,
		responder:   responder,
		synthesizer: synthesizer,
		player:      player,
		cfg:         cfg.WithDefaults(),
		cb:          cb,
		state:       StateListening,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o, nil
}

// Start prepares the orchestrator to accept speech events. All in-flight
// work derives from ctx; cancelling it is equivalent to Stop.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return errors.New("orchestrator: already stopped")
	}
	if o.started {
		return errors.New("orchestrator: already started")
	}
	o.started = true
	o.baseCtx, o.baseCancel = context.WithCancel(ctx)
	return nil
}

// Stop cancels any in-flight turn, halts playback, and waits for the turn
// goroutine to finish. Idempotent.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	cancel := o.baseCancel
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.player.Cancel()
	o.wg.Wait()
}

// State returns the current pipeline state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// OnSpeechStarted pre-empts any in-flight turn: the turn's context is
// cancelled, playback halts, and the turn's eventual stage results are
// invalidated so they can never reach a callback.
func (o *Orchestrator) OnSpeechStarted() {
	o.mu.Lock()
	cancel := o.cancelTurn
	o.cancelTurn = nil
	preemptedID := o.currentID
	o.currentID = 0
	o.setStateLocked(StateListening)
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.player.Cancel()

	if preemptedID != 0 {
		o.logger.Info("turn pre-empted by new speech onset", "turn_id", preemptedID)
	}
}

// OnSpeechEnded starts a new turn for the completed utterance. The turn
// runs on its own goroutine; OnSpeechEnded returns immediately so the
// detection worker is never blocked on network I/O.
func (o *Orchestrator) OnSpeechEnded(utt audio.Utterance) {
	o.mu.Lock()
	if !o.started || o.stopped {
		o.mu.Unlock()
		return
	}
	o.nextTurnID++
	id := o.nextTurnID
	o.currentID = id
	turnCtx, cancel := context.WithCancel(o.baseCtx)
	o.cancelTurn = cancel
	o.setStateLocked(StateTranscribing)
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runTurn(turnCtx, id, utt, time.Now())
	}()
}

// setStateLocked transitions the state and fires OnStateChange. Caller
// holds o.mu.
func (o *Orchestrator) setStateLocked(next State) {
	if o.state == next {
		return
	}
	prev := o.state
	o.state = next
	if o.cb.OnStateChange != nil {
		// Fired under the mutex so observers see transitions in order.
		o.cb.OnStateChange(prev, next)
	}
}

// isCurrent reports whether id is still the live turn.
func (o *Orchestrator) isCurrent(id uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.currentID == id
}

// advance moves the pipeline to next if id is still the live turn.
func (o *Orchestrator) advance(id uint64, next State) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.currentID != id {
		return false
	}
	o.setStateLocked(next)
	return true
}

// runTurn executes the pipeline stages for one utterance.
func (o *Orchestrator) runTurn(ctx context.Context, id uint64, utt audio.Utterance, speechEnd time.Time) {
	turn := Turn{ID: id, StartedAt: speechEnd}
	log := o.logger.With("turn_id", id)

	ctx, span := observe.StartSpan(ctx, "conversation.turn",
		trace.WithAttributes(attribute.Int64("turn.id", int64(id))))
	defer func() {
		span.SetAttributes(attribute.String("turn.outcome", turn.Outcome.String()))
		span.End()
	}()

	// Stage 1: transcription.
	sctx, cancel := context.WithTimeout(ctx, o.cfg.TranscriptionTimeout)
	stageStart := time.Now()
	result, err := o.transcriber.Transcribe(sctx, utt, o.cfg.Language)
	cancel()
	o.metrics.TranscriptionDuration.Record(context.Background(), time.Since(stageStart).Seconds())

	if !o.isCurrent(id) || ctx.Err() != nil {
		o.finish(log, &turn, OutcomeCancelled)
		return
	}
	if err != nil {
		o.fail(log, &turn, StageTranscription, fmt.Errorf("orchestrator: transcribe: %w", err))
		return
	}

	text := transcript.Normalize(result.Text)
	if o.corrector != nil && text != "" {
		corrected, n := o.corrector.Correct(text)
		if n > 0 {
			log.Debug("transcript corrected against lesson vocabulary",
				"original", text, "corrected", corrected, "replacements", n)
		}
		text = transcript.Normalize(corrected)
	}
	if text == "" {
		log.Debug("empty transcript, skipping agent")
		o.finish(log, &turn, OutcomeEmptyTranscript)
		return
	}
	turn.Transcript = text
	if o.cb.OnTranscript != nil && o.isCurrent(id) {
		o.cb.OnTranscript(id, text)
	}

	// Stage 2: agent.
	if !o.advance(id, StateThinking) {
		o.finish(log, &turn, OutcomeCancelled)
		return
	}
	actx, cancel := context.WithTimeout(ctx, o.cfg.AgentTimeout)
	stageStart = time.Now()
	reply, err := o.responder.Respond(actx, text, o.cfg.SourceLabel)
	cancel()
	o.metrics.AgentDuration.Record(context.Background(), time.Since(stageStart).Seconds())

	if !o.isCurrent(id) || ctx.Err() != nil {
		o.finish(log, &turn, OutcomeCancelled)
		return
	}
	if err != nil {
		o.fail(log, &turn, StageAgent, fmt.Errorf("orchestrator: agent: %w", err))
		return
	}
	turn.Response = reply
	if o.cb.OnResponse != nil && o.isCurrent(id) {
		o.cb.OnResponse(id, reply)
	}

	// Stage 3: synthesis.
	if !o.advance(id, StateSynthesizing) {
		o.finish(log, &turn, OutcomeCancelled)
		return
	}
	yctx, cancel := context.WithTimeout(ctx, o.cfg.SynthesisTimeout)
	stageStart = time.Now()
	clip, err := o.synthesizer.Synthesize(yctx, reply, tts.SynthesisOptions{
		Voice:    o.cfg.Voice,
		Rate:     o.cfg.SpeakingRate,
		Language: o.cfg.Language,
	})
	cancel()
	o.metrics.SynthesisDuration.Record(context.Background(), time.Since(stageStart).Seconds())

	if !o.isCurrent(id) || ctx.Err() != nil {
		o.finish(log, &turn, OutcomeCancelled)
		return
	}
	if err != nil {
		// Partial success: the reply text is already surfaced, only the
		// audio is lost. Skip playback.
		o.fail(log, &turn, StageSynthesis, fmt.Errorf("orchestrator: synthesize: %w", err))
		return
	}
	turn.Audio = clip

	// Stage 4: playback.
	if !o.advance(id, StateSpeaking) {
		o.finish(log, &turn, OutcomeCancelled)
		return
	}
	turn.Latency = time.Since(speechEnd)
	o.metrics.TurnLatency.Record(context.Background(), turn.Latency.Seconds())

	playOutcome, err := o.player.Play(ctx, clip)
	if !o.isCurrent(id) || ctx.Err() != nil || playOutcome == playback.OutcomeCancelled {
		o.finish(log, &turn, OutcomeCancelled)
		return
	}
	if err != nil {
		o.fail(log, &turn, StagePlayback, fmt.Errorf("orchestrator: playback: %w", err))
		return
	}

	o.finish(log, &turn, OutcomeCompleted)
}

// fail records a stage failure and completes the turn. A single bad turn
// never ends the session; the orchestrator returns to Listening.
func (o *Orchestrator) fail(log *slog.Logger, turn *Turn, stage Stage, err error) {
	turn.FailedStage = stage
	turn.Err = err
	o.metrics.RecordStageError(context.Background(), string(stage))
	log.Warn("turn stage failed", "stage", string(stage), "error", err)
	if o.cb.OnError != nil {
		o.cb.OnError(stage, err)
	}
	o.finish(log, turn, OutcomeFailed)
}

// finish records the terminal outcome, releases the live-turn slot, and
// archives the turn.
func (o *Orchestrator) finish(log *slog.Logger, turn *Turn, outcome Outcome) {
	turn.Outcome = outcome
	turn.CompletedAt = time.Now()

	o.mu.Lock()
	if o.currentID == turn.ID {
		o.currentID = 0
		o.cancelTurn = nil
		o.setStateLocked(StateListening)
	}
	o.mu.Unlock()

	o.metrics.RecordTurnOutcome(context.Background(), outcome.String())
	if o.cb.OnTurnComplete != nil {
		o.cb.OnTurnComplete(*turn)
	}
	o.archive(log, turn)
}

// archive persists the turn to the history store, best-effort.
func (o *Orchestrator) archive(log *slog.Logger, turn *Turn) {
	if o.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec := history.Turn{
		ID:          turn.ID,
		Transcript:  turn.Transcript,
		Response:    turn.Response,
		Outcome:     turn.Outcome.String(),
		FailedStage: string(turn.FailedStage),
		Latency:     turn.Latency,
		StartedAt:   turn.StartedAt,
		CompletedAt: turn.CompletedAt,
	}
	if err := o.store.Archive(ctx, rec); err != nil {
		log.Warn("failed to archive turn", "error", err)
	}
}
