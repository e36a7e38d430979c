// Package vad implements the debounced voice-activity state machine that
// turns per-frame speech probabilities into discrete utterances.
//
// The detector consumes fixed-size audio frames one at a time, asks a
// pluggable [scorer.Scorer] for a speech probability, and applies a
// four-state machine with hysteresis:
//
//	Silence → SpeechPending → Speaking → EndingSilence → Silence
//
// Speech onset is confirmed only after MinSpeechFrames consecutive frames at
// or above PositiveThreshold, so a single loud transient cannot trigger a
// false turn. Speech end is confirmed only after RedemptionFrames consecutive
// frames below NegativeThreshold, so a brief mid-sentence pause does not cut
// an utterance short. Frames scoring inside the hysteresis band between the
// two thresholds neither advance nor reset either counter while speaking.
//
// A ring of the most recent PreSpeechPadFrames frames is retained during
// silence and prepended to each utterance, capturing the attack of the word
// that triggered onset.
//
// ProcessFrame is synchronous and must be called from a single goroutine; the
// caller (the session's VAD worker) serialises frames in capture order.
package vad

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tugatalk/tugatalk/pkg/audio"
	"github.com/tugatalk/tugatalk/pkg/provider/scorer"
)

// State enumerates the detector's debounce states. Exactly one is active at
// a time; there is no terminal state.
type State int

const (
	// StateSilence means no speech is being tracked.
	StateSilence State = iota

	// StateSpeechPending means recent frames scored as speech but onset is not
	// yet confirmed.
	StateSpeechPending

	// StateSpeaking means an utterance is in progress.
	StateSpeaking

	// StateEndingSilence means the current utterance has gone quiet but the
	// end is not yet confirmed.
	StateEndingSilence
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateSilence:
		return "silence"
	case StateSpeechPending:
		return "speech-pending"
	case StateSpeaking:
		return "speaking"
	case StateEndingSilence:
		return "ending-silence"
	default:
		return "unknown"
	}
}

// EventType classifies the result of processing one frame.
type EventType int

const (
	// EventNone means the frame produced no state-machine edge of interest.
	EventNone EventType = iota

	// EventSpeechStarted fires on the frame where onset is confirmed.
	EventSpeechStarted

	// EventSpeechEnded fires on the frame where the utterance end is
	// confirmed; the completed utterance rides along.
	EventSpeechEnded
)

// Event is the detector's per-frame output.
type Event struct {
	// Type is the detection result.
	Type EventType

	// Probability is the speech probability of the frame that produced the
	// event.
	Probability float64

	// Utterance is the completed utterance. Non-nil only for EventSpeechEnded.
	Utterance *audio.Utterance
}

// Config holds the detector's tuning parameters. The zero value is not
// usable; call [Config.WithDefaults] or fill every field.
type Config struct {
	// SampleRate is the expected frame sample rate in Hz. Default: 16000.
	SampleRate int

	// FrameSamples is the expected frame length. Default: 1536.
	FrameSamples int

	// PositiveThreshold is the probability at or above which a frame counts as
	// speech. Default: 0.5.
	PositiveThreshold float64

	// NegativeThreshold is the probability below which a frame counts as
	// silence while speaking. Must be ≤ PositiveThreshold; the gap is the
	// hysteresis band. Default: 0.35.
	NegativeThreshold float64

	// MinSpeechFrames is the number of consecutive speech frames required to
	// confirm onset. Default: 3.
	MinSpeechFrames int

	// RedemptionFrames is the number of consecutive silence frames required to
	// confirm the end of an utterance. Default: 8.
	RedemptionFrames int

	// PreSpeechPadFrames is the number of pre-onset frames prepended to each
	// utterance. Default: 3.
	PreSpeechPadFrames int

	// MaxUtteranceDuration force-ends an utterance that never crosses the
	// silence threshold. Default: 30s.
	MaxUtteranceDuration time.Duration

	// MaxScoreFailures is the number of consecutive scorer failures tolerated
	// before the detector reports a device-level error. Individual failures
	// are treated as silence for that frame only. Default: 25.
	MaxScoreFailures int
}

// WithDefaults returns a copy of c with zero-valued fields replaced by their
// defaults.
func (c Config) WithDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.FrameSamples <= 0 {
		c.FrameSamples = 1536
	}
	if c.PositiveThreshold <= 0 {
		c.PositiveThreshold = 0.5
	}
	if c.NegativeThreshold <= 0 {
		c.NegativeThreshold = 0.35
	}
	if c.MinSpeechFrames <= 0 {
		c.MinSpeechFrames = 3
	}
	if c.RedemptionFrames <= 0 {
		c.RedemptionFrames = 8
	}
	if c.PreSpeechPadFrames <= 0 {
		c.PreSpeechPadFrames = 3
	}
	if c.MaxUtteranceDuration <= 0 {
		c.MaxUtteranceDuration = 30 * time.Second
	}
	if c.MaxScoreFailures <= 0 {
		c.MaxScoreFailures = 25
	}
	return c
}

// Validate checks the configuration for coherence.
func (c Config) Validate() error {
	var errs []error
	if c.PositiveThreshold <= 0 || c.PositiveThreshold > 1 {
		errs = append(errs, fmt.Errorf("positive threshold %v out of (0, 1]", c.PositiveThreshold))
	}
	if c.NegativeThreshold <= 0 || c.NegativeThreshold > 1 {
		errs = append(errs, fmt.Errorf("negative threshold %v out of (0, 1]", c.NegativeThreshold))
	}
	if c.NegativeThreshold > c.PositiveThreshold {
		errs = append(errs, fmt.Errorf("negative threshold %v exceeds positive threshold %v", c.NegativeThreshold, c.PositiveThreshold))
	}
	if c.MinSpeechFrames < 1 {
		errs = append(errs, errors.New("min speech frames must be ≥ 1"))
	}
	if c.RedemptionFrames < 1 {
		errs = append(errs, errors.New("redemption frames must be ≥ 1"))
	}
	return errors.Join(errs...)
}

// ScorerFailureError is the device-level error reported after
// MaxScoreFailures consecutive scorer failures. The session treats it as
// fatal to listening and tears down.
type ScorerFailureError struct {
	// Consecutive is the failure streak length when the error was raised.
	Consecutive int

	// Last is the most recent underlying scorer error.
	Last error
}

func (e *ScorerFailureError) Error() string {
	return fmt.Sprintf("vad: scorer failed %d consecutive frames: %v", e.Consecutive, e.Last)
}

func (e *ScorerFailureError) Unwrap() error { return e.Last }

// Detector is the VAD state machine. It is not safe for concurrent use; a
// single goroutine must feed it frames in capture order.
type Detector struct {
	cfg Config
	sc  scorer.Scorer

	state              State
	consecutiveSpeech  int
	consecutiveSilence int

	// pad retains the most recent frames while not speaking. Capacity covers
	// the pre-roll plus the onset debounce frames, so the confirmed utterance
	// starts PreSpeechPadFrames before the first speech frame.
	pad *frameRing

	utterance  []float32
	uttStart   time.Duration
	uttEnd     time.Duration
	uttID      uint64
	maxSamples int

	scoreFailures int
	lastScoreErr  error

	closeOnce sync.Once
	closeErr  error
}

// New creates a Detector over the given scorer. cfg is defaulted and
// validated; an invalid configuration is returned as an error.
func New(sc scorer.Scorer, cfg Config) (*Detector, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("vad: config: %w", err)
	}
	return &Detector{
		cfg:        cfg,
		sc:         sc,
		state:      StateSilence,
		pad:        newFrameRing(cfg.PreSpeechPadFrames + cfg.MinSpeechFrames),
		maxSamples: int(cfg.MaxUtteranceDuration.Seconds() * float64(cfg.SampleRate)),
	}, nil
}

// State returns the current debounce state.
func (d *Detector) State() State { return d.state }

// ProcessFrame advances the state machine by one frame.
//
// A scorer failure is treated as silence for that frame only; after
// MaxScoreFailures consecutive failures ProcessFrame returns a
// [*ScorerFailureError] and the caller should stop the session.
func (d *Detector) ProcessFrame(frame audio.Frame) (Event, error) {
	p, err := d.sc.Score(frame)
	if err != nil {
		d.scoreFailures++
		d.lastScoreErr = err
		if d.scoreFailures >= d.cfg.MaxScoreFailures {
			return Event{}, &ScorerFailureError{Consecutive: d.scoreFailures, Last: err}
		}
		p = 0 // fail-safe toward not falsely triggering
	} else {
		d.scoreFailures = 0
		d.lastScoreErr = nil
	}

	switch d.state {
	case StateSilence, StateSpeechPending:
		return d.processQuietFrame(frame, p), nil
	default: // StateSpeaking, StateEndingSilence
		return d.processSpeakingFrame(frame, p), nil
	}
}

// processQuietFrame handles Silence and SpeechPending.
func (d *Detector) processQuietFrame(frame audio.Frame, p float64) Event {
	d.pad.push(frame.Clone())

	if p < d.cfg.PositiveThreshold {
		d.consecutiveSpeech = 0
		d.state = StateSilence
		return Event{Type: EventNone, Probability: p}
	}

	d.consecutiveSpeech++
	if d.consecutiveSpeech < d.cfg.MinSpeechFrames {
		d.state = StateSpeechPending
		return Event{Type: EventNone, Probability: p}
	}

	// Onset confirmed: seed the utterance from the pad ring (pre-roll plus
	// the debounce frames, current frame included).
	d.state = StateSpeaking
	d.consecutiveSpeech = 0
	d.consecutiveSilence = 0
	d.beginUtterance()
	return Event{Type: EventSpeechStarted, Probability: p}
}

// processSpeakingFrame handles Speaking and EndingSilence.
func (d *Detector) processSpeakingFrame(frame audio.Frame, p float64) Event {
	d.appendToUtterance(frame)

	switch {
	case p >= d.cfg.PositiveThreshold:
		// Speech resumed: a brief pause must not end the utterance.
		d.consecutiveSilence = 0
		d.state = StateSpeaking

	case p < d.cfg.NegativeThreshold:
		d.consecutiveSilence++
		d.state = StateEndingSilence
		if d.consecutiveSilence >= d.cfg.RedemptionFrames {
			return Event{Type: EventSpeechEnded, Probability: p, Utterance: d.endUtterance()}
		}

	default:
		// Hysteresis band: neither advance nor reset counters.
	}

	if d.maxSamples > 0 && len(d.utterance) >= d.maxSamples {
		// Open-ended monologue guard: force the end rather than buffering
		// without bound.
		return Event{Type: EventSpeechEnded, Probability: p, Utterance: d.endUtterance()}
	}

	return Event{Type: EventNone, Probability: p}
}

// beginUtterance seeds the utterance buffer from the pad ring.
func (d *Detector) beginUtterance() {
	frames := d.pad.drain()
	d.utterance = d.utterance[:0]
	if len(frames) > 0 {
		d.uttStart = frames[0].Timestamp
		d.uttEnd = frames[0].Timestamp
	}
	for _, f := range frames {
		d.appendToUtterance(f)
	}
}

// appendToUtterance buffers one frame into the current utterance.
func (d *Detector) appendToUtterance(f audio.Frame) {
	if len(d.utterance) == 0 {
		d.uttStart = f.Timestamp
	}
	d.utterance = append(d.utterance, f.Samples...)
	d.uttEnd = f.Timestamp + f.Duration()
}

// endUtterance finalises the current buffer as an Utterance and resets the
// machine to Silence.
func (d *Detector) endUtterance() *audio.Utterance {
	samples := make([]float32, len(d.utterance))
	copy(samples, d.utterance)
	d.uttID++

	u := &audio.Utterance{
		ID:         d.uttID,
		Samples:    samples,
		SampleRate: d.cfg.SampleRate,
		Start:      d.uttStart,
		End:        d.uttEnd,
	}

	d.utterance = d.utterance[:0]
	d.consecutiveSpeech = 0
	d.consecutiveSilence = 0
	d.state = StateSilence
	return u
}

// Reset clears all detector and scorer state. Use when the audio stream is
// interrupted so stale state does not leak into the next segment.
func (d *Detector) Reset() {
	d.state = StateSilence
	d.consecutiveSpeech = 0
	d.consecutiveSilence = 0
	d.pad.reset()
	d.utterance = d.utterance[:0]
	d.scoreFailures = 0
	d.lastScoreErr = nil
	d.sc.Reset()
}

// Close releases the underlying scorer. Idempotent; the detector must not
// process further frames after Close. Native scorers hold inference
// resources, so the owner of the detector must call this on teardown.
func (d *Detector) Close() error {
	d.closeOnce.Do(func() {
		if err := d.sc.Close(); err != nil {
			d.closeErr = fmt.Errorf("vad: close scorer: %w", err)
		}
	})
	return d.closeErr
}

// frameRing is a fixed-capacity ring of recent frames.
type frameRing struct {
	frames []audio.Frame
	cap    int
}

func newFrameRing(capacity int) *frameRing {
	if capacity < 1 {
		capacity = 1
	}
	return &frameRing{frames: make([]audio.Frame, 0, capacity), cap: capacity}
}

func (r *frameRing) push(f audio.Frame) {
	if len(r.frames) >= r.cap {
		copy(r.frames, r.frames[1:])
		r.frames = r.frames[:len(r.frames)-1]
	}
	r.frames = append(r.frames, f)
}

// drain returns the buffered frames oldest-first and empties the ring.
func (r *frameRing) drain() []audio.Frame {
	out := r.frames
	r.frames = make([]audio.Frame, 0, r.cap)
	return out
}

func (r *frameRing) reset() {
	r.frames = r.frames[:0]
}
