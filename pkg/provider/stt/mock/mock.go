// Package mock provides a test double for the stt.Transcriber interface.
//
// Use Transcriber to return scripted transcripts and to verify which
// utterances and languages reach the speech-to-text backend.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/tugatalk/tugatalk/pkg/audio"
	"github.com/tugatalk/tugatalk/pkg/provider/stt"
)

// Compile-time assertion that Transcriber satisfies stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Utterance is the utterance passed to Transcribe.
	Utterance audio.Utterance
	// Language is the language hint passed to Transcribe.
	Language string
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Result is returned from Transcribe when Results is exhausted or empty.
	Result stt.Transcript

	// Results, if non-empty, is consumed one entry per Transcribe call.
	Results []stt.Transcript

	// Err, if non-nil, is returned from every Transcribe call.
	Err error

	// Delay, if positive, makes Transcribe block for the given duration or
	// until ctx is cancelled, whichever comes first.
	Delay time.Duration

	// Gate, if non-nil, makes Transcribe block until the channel is closed,
	// ignoring ctx. The scripted result is then returned even if ctx was
	// cancelled, modelling a backend call that outlives its turn.
	Gate chan struct{}

	// --- Call records ---

	// TranscribeCalls records every invocation of Transcribe.
	TranscribeCalls []TranscribeCall
}

// Transcribe implements stt.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, utt audio.Utterance, language string) (stt.Transcript, error) {
	t.mu.Lock()
	t.TranscribeCalls = append(t.TranscribeCalls, TranscribeCall{
		Ctx:       ctx,
		Utterance: utt,
		Language:  language,
	})
	var result stt.Transcript
	if len(t.Results) > 0 {
		result = t.Results[0]
		t.Results = t.Results[1:]
	} else {
		result = t.Result
	}
	err := t.Err
	delay := t.Delay
	gate := t.Gate
	t.mu.Unlock()

	if gate != nil {
		<-gate
		if err != nil {
			return stt.Transcript{}, err
		}
		return result, nil
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return stt.Transcript{}, ctx.Err()
		}
	}
	if err != nil {
		return stt.Transcript{}, err
	}
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, err
	}
	return result, nil
}

// CallCount returns the number of Transcribe invocations so far.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.TranscribeCalls)
}
