// Package tts defines the text-to-speech synthesizer abstraction.
//
// A Synthesizer converts one reply text into a complete audio clip. Calls
// are single-shot and bounded: the caller applies a deadline via ctx, and
// cancelling ctx must abort any in-flight network or compute work. The
// returned bytes are a self-contained audio container (WAV unless the
// implementation documents otherwise) ready to hand to a playback sink.
package tts

import "context"

// SynthesisOptions carries per-call synthesis parameters. Zero values mean
// "use the implementation default".
type SynthesisOptions struct {
	// Voice selects the voice to synthesize with, using the
	// implementation's own naming scheme.
	Voice string

	// Rate is a speaking-rate multiplier. 1.0 is normal speed; values
	// below 1.0 slow speech down for learners. Zero means 1.0.
	Rate float64

	// Language is a BCP-47 language code hint, e.g. "pt".
	Language string
}

// Synthesizer converts text into spoken audio.
type Synthesizer interface {
	// Synthesize renders text as a complete audio clip. It returns an
	// error if ctx is cancelled before synthesis finishes; partial audio
	// is never returned.
	Synthesize(ctx context.Context, text string, opts SynthesisOptions) ([]byte, error)
}
