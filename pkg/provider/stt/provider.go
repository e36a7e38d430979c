// Package stt defines the Transcriber interface for speech-to-text backends.
//
// A Transcriber wraps a transcription service (a whisper.cpp server, the
// OpenAI audio API, or the native whisper.cpp bindings) behind a single
// bounded, cancellable request/response operation: one completed utterance in,
// one transcript out. The turn orchestrator relies on true cancellation —
// aborting the underlying request when ctx is cancelled, not merely ignoring
// a late result.
//
// Implementations must be safe for concurrent use; the orchestrator issues at
// most one call at a time per session, but multiple sessions may share one
// Transcriber.
package stt

import (
	"context"

	"github.com/tugatalk/tugatalk/pkg/audio"
)

// Transcript is the result of transcribing one utterance.
type Transcript struct {
	// Text is the transcribed speech content, unprocessed. May be empty when
	// the service detected no speech.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// provider does not report confidence.
	Confidence float64

	// Language is the language the provider detected or was told to assume
	// (BCP-47), when reported.
	Language string
}

// Transcriber is the abstraction over any STT backend.
type Transcriber interface {
	// Transcribe sends the utterance audio to the service and returns the
	// transcript. language is a BCP-47 hint (e.g., "pt"); empty lets the
	// provider auto-detect when supported.
	//
	// The call must respect ctx cancellation and deadline by aborting the
	// in-flight request. An empty-text result with a nil error is the normal
	// "no speech" outcome, not an error.
	Transcribe(ctx context.Context, utt audio.Utterance, language string) (Transcript, error)
}
