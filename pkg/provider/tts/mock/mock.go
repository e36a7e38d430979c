// Package mock provides a test double for the tts.Synthesizer interface.
//
// Use Synthesizer to return scripted audio and to verify which text and
// options reach the synthesis backend.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/tugatalk/tugatalk/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Synthesizer)(nil)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Text is the text passed to Synthesize.
	Text string
	// Opts is the options struct passed to Synthesize.
	Opts tts.SynthesisOptions
}

// Synthesizer is a mock implementation of tts.Synthesizer.
type Synthesizer struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Audio is returned from every Synthesize call.
	Audio []byte

	// Err, if non-nil, is returned from every Synthesize call.
	Err error

	// Delay, if positive, makes Synthesize block for the given duration or
	// until ctx is cancelled, whichever comes first.
	Delay time.Duration

	// --- Call records ---

	// SynthesizeCalls records every invocation of Synthesize.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize implements tts.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts tts.SynthesisOptions) ([]byte, error) {
	s.mu.Lock()
	s.SynthesizeCalls = append(s.SynthesizeCalls, SynthesizeCall{
		Ctx:  ctx,
		Text: text,
		Opts: opts,
	})
	audio := s.Audio
	err := s.Err
	delay := s.Delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return audio, nil
}

// CallCount returns the number of Synthesize invocations so far.
func (s *Synthesizer) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SynthesizeCalls)
}
