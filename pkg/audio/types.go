package audio

import "time"

// Frame is a fixed-length slice of captured audio, the unit of processing for
// the voice-activity detector. Samples are normalized amplitudes in [-1, 1].
//
// Frames are produced by a [FrameSource], consumed exactly once by the VAD,
// and retained only when buffered into an utterance.
type Frame struct {
	// Samples is the normalized mono PCM payload. Length is constant for a
	// given pipeline configuration (e.g., 1536 samples at 16 kHz).
	Samples []float32

	// SampleRate in Hz (e.g., 16000 for VAD/STT input, 48000 for Opus decode
	// output on the gateway path).
	SampleRate int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the wall-clock length of the frame's audio.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// Clone returns a deep copy of the frame. The detector uses this when a frame
// must outlive the capture buffer it arrived in (pre-roll ring, utterance
// assembly).
func (f Frame) Clone() Frame {
	cp := make([]float32, len(f.Samples))
	copy(cp, f.Samples)
	return Frame{Samples: cp, SampleRate: f.SampleRate, Timestamp: f.Timestamp}
}

// Utterance is the contiguous audio spanning one confirmed speech onset
// (including pre-roll) through its confirmed end.
type Utterance struct {
	// ID uniquely identifies the utterance within its session.
	ID uint64

	// Samples is the concatenated normalized PCM of every buffered frame.
	Samples []float32

	// SampleRate in Hz.
	SampleRate int

	// Start is the capture timestamp of the first buffered frame.
	Start time.Duration

	// End is the capture timestamp just past the last buffered frame.
	End time.Duration
}

// Duration returns the wall-clock length of the utterance audio.
func (u Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.Samples)) * time.Second / time.Duration(u.SampleRate)
}
