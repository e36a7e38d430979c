package resilience

import (
	"context"

	"github.com/tugatalk/tugatalk/pkg/provider/tts"
)

// TTSFallback implements [tts.Synthesizer] with automatic failover across
// multiple synthesis backends. Each backend has its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Synthesizer]
}

// Compile-time interface assertion.
var _ tts.Synthesizer = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred
// backend.
func NewTTSFallback(primary tts.Synthesizer, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional synthesizer as a fallback.
func (f *TTSFallback) AddFallback(name string, s tts.Synthesizer) {
	f.group.AddFallback(name, s)
}

// Synthesize renders text against the first healthy backend. If the
// primary fails or its breaker is open, subsequent fallbacks are tried.
// Note that fallback voices may differ from the primary's.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, opts tts.SynthesisOptions) ([]byte, error) {
	return Attempt(f.group, func(s tts.Synthesizer) ([]byte, error) {
		return s.Synthesize(ctx, text, opts)
	})
}
