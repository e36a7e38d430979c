// Package agent defines the conversation agent abstraction.
//
// A Responder turns a learner's transcribed utterance into one reply
// text. Calls are single-shot and bounded: the caller applies a deadline
// via ctx, and cancelling ctx must abort any in-flight work. How much
// conversation memory a Responder keeps is an implementation concern;
// callers only hand over the latest transcript.
package agent

import "context"

// Responder produces a reply to one transcribed utterance.
type Responder interface {
	// Respond returns a reply to transcript. source identifies which
	// speech-to-text backend produced the transcript, so implementations
	// can weigh or log recognition quality per source.
	Respond(ctx context.Context, transcript, source string) (string, error)
}
