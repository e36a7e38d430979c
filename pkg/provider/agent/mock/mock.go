// Package mock provides a test double for the agent.Responder interface.
//
// Use Responder to return scripted replies and to verify which transcripts
// reach the conversation agent.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/tugatalk/tugatalk/pkg/provider/agent"
)

// Compile-time assertion that Responder satisfies agent.Responder.
var _ agent.Responder = (*Responder)(nil)

// RespondCall records a single invocation of Respond.
type RespondCall struct {
	// Ctx is the context passed to Respond.
	Ctx context.Context
	// Transcript is the transcript passed to Respond.
	Transcript string
	// Source is the transcription source label passed to Respond.
	Source string
}

// Responder is a mock implementation of agent.Responder.
type Responder struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Reply is returned from Respond when Replies is exhausted or empty.
	Reply string

	// Replies, if non-empty, is consumed one entry per Respond call.
	Replies []string

	// Err, if non-nil, is returned from every Respond call.
	Err error

	// Delay, if positive, makes Respond block for the given duration or
	// until ctx is cancelled, whichever comes first.
	Delay time.Duration

	// Gate, if non-nil, makes Respond block until the channel is closed,
	// ignoring ctx. The scripted reply is then returned even if ctx was
	// cancelled, modelling a backend call that outlives its turn.
	Gate chan struct{}

	// --- Call records ---

	// RespondCalls records every invocation of Respond.
	RespondCalls []RespondCall
}

// Respond implements agent.Responder.
func (r *Responder) Respond(ctx context.Context, transcript, source string) (string, error) {
	r.mu.Lock()
	r.RespondCalls = append(r.RespondCalls, RespondCall{
		Ctx:        ctx,
		Transcript: transcript,
		Source:     source,
	})
	reply := r.Reply
	if len(r.Replies) > 0 {
		reply = r.Replies[0]
		r.Replies = r.Replies[1:]
	}
	err := r.Err
	delay := r.Delay
	gate := r.Gate
	r.mu.Unlock()

	if gate != nil {
		<-gate
		if err != nil {
			return "", err
		}
		return reply, nil
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return reply, nil
}

// CallCount returns the number of Respond invocations so far.
func (r *Responder) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.RespondCalls)
}
