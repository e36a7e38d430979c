package resilience

import (
	"context"

	"github.com/tugatalk/tugatalk/pkg/audio"
	"github.com/tugatalk/tugatalk/pkg/provider/stt"
)

// STTFallback implements [stt.Transcriber] with automatic failover across
// multiple speech-to-text backends. Each backend has its own circuit
// breaker.
type STTFallback struct {
	group *FallbackGroup[stt.Transcriber]
}

// Compile-time interface assertion.
var _ stt.Transcriber = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred
// backend.
func NewSTTFallback(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional transcriber as a fallback.
func (f *STTFallback) AddFallback(name string, t stt.Transcriber) {
	f.group.AddFallback(name, t)
}

// Transcribe runs the utterance against the first healthy backend. If the
// primary fails or its breaker is open, subsequent fallbacks are tried.
func (f *STTFallback) Transcribe(ctx context.Context, utt audio.Utterance, language string) (stt.Transcript, error) {
	return Attempt(f.group, func(t stt.Transcriber) (stt.Transcript, error) {
		return t.Transcribe(ctx, utt, language)
	})
}
