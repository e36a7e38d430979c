// Package scorer defines the Scorer interface for frame-level speech
// probability models.
//
// A Scorer wraps an acoustic speech detector (e.g., Silero VAD via ONNX
// Runtime, or a simple energy estimator) and surfaces it as a stateful,
// per-stream scoring session: many models carry recurrent hidden state across
// frames, so a single Scorer must only ever see one ordered frame stream.
//
// Scoring is synchronous by design: Score returns immediately with a
// probability, making it suitable for the low-latency detector loop that gates
// utterance assembly. Score must complete well under the frame duration
// (~96 ms for a 1536-sample frame at 16 kHz) to avoid backlog.
//
// A single Scorer must not be shared across goroutines unless the
// implementation explicitly documents thread safety.
package scorer

import "github.com/tugatalk/tugatalk/pkg/audio"

// Scorer scores individual audio frames for speech content.
type Scorer interface {
	// Score returns the speech probability of frame in [0, 1]. The frame must
	// match the sample rate and length the scorer was created for. Returns an
	// error if the frame is malformed or inference fails; the caller treats a
	// failed frame as silence.
	Score(frame audio.Frame) (float64, error)

	// Reset clears accumulated model state (hidden state, smoothing history)
	// without closing the scorer. Use when the audio stream is interrupted or
	// restarted so stale state does not bleed into the next segment.
	Reset()

	// Close releases model resources. Calling Close more than once is safe and
	// returns nil. Score after Close returns an error.
	Close() error
}
