// Package energy provides a model-free scorer.Scorer based on root-mean-square
// signal level. It is the fallback when no Silero model file is available:
// far less selective than a trained model, but dependency-free and fast.
//
// The RMS level is mapped onto [0, 1] by linear interpolation between a noise
// floor and a speech ceiling so the detector's probability thresholds keep
// working unchanged.
package energy

import (
	"errors"
	"math"

	"github.com/tugatalk/tugatalk/pkg/audio"
	"github.com/tugatalk/tugatalk/pkg/provider/scorer"
)

// Compile-time interface assertion.
var _ scorer.Scorer = (*Scorer)(nil)

const (
	// defaultNoiseFloor is the RMS level (normalized scale) mapped to
	// probability 0. Room tone on a typical laptop mic sits below this.
	defaultNoiseFloor = 0.008

	// defaultSpeechCeiling is the RMS level mapped to probability 1.
	// Conversational speech close to the mic reaches this easily.
	defaultSpeechCeiling = 0.06
)

// Scorer estimates speech probability from frame energy.
// Stateless between frames; safe to Reset at any time.
type Scorer struct {
	noiseFloor    float64
	speechCeiling float64
	closed        bool
}

// Option is a functional option for configuring a Scorer.
type Option func(*Scorer)

// WithNoiseFloor sets the RMS level treated as certain silence.
func WithNoiseFloor(level float64) Option {
	return func(s *Scorer) { s.noiseFloor = level }
}

// WithSpeechCeiling sets the RMS level treated as certain speech.
func WithSpeechCeiling(level float64) Option {
	return func(s *Scorer) { s.speechCeiling = level }
}

// New returns an energy Scorer with the supplied options applied.
func New(opts ...Option) *Scorer {
	s := &Scorer{noiseFloor: defaultNoiseFloor, speechCeiling: defaultSpeechCeiling}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Score implements scorer.Scorer.
func (s *Scorer) Score(frame audio.Frame) (float64, error) {
	if s.closed {
		return 0, errors.New("energy: scorer is closed")
	}
	if len(frame.Samples) == 0 {
		return 0, errors.New("energy: empty frame")
	}

	var sum float64
	for _, v := range frame.Samples {
		sum += float64(v) * float64(v)
	}
	rms := math.Sqrt(sum / float64(len(frame.Samples)))

	switch {
	case rms <= s.noiseFloor:
		return 0, nil
	case rms >= s.speechCeiling:
		return 1, nil
	default:
		return (rms - s.noiseFloor) / (s.speechCeiling - s.noiseFloor), nil
	}
}

// Reset implements scorer.Scorer. The energy scorer carries no state.
func (s *Scorer) Reset() {}

// Close implements scorer.Scorer. Safe to call more than once.
func (s *Scorer) Close() error {
	s.closed = true
	return nil
}
