package orchestrator

import (
	"fmt"
	"time"
)

// State is the orchestrator's position in the turn pipeline. Exactly one
// state is active at a time; every state other than Listening can be
// pre-empted back to Listening by a new confirmed speech onset.
type State int

const (
	// StateListening means no turn is in flight.
	StateListening State = iota
	// StateTranscribing means the utterance is at the speech-to-text stage.
	StateTranscribing
	// StateThinking means the transcript is at the conversation agent.
	StateThinking
	// StateSynthesizing means the reply text is at the text-to-speech stage.
	StateSynthesizing
	// StateSpeaking means the reply audio is playing.
	StateSpeaking
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateTranscribing:
		return "transcribing"
	case StateThinking:
		return "thinking"
	case StateSynthesizing:
		return "synthesizing"
	case StateSpeaking:
		return "speaking"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome is the terminal result of one conversation turn.
type Outcome int

const (
	// OutcomeCompleted means the reply played to its natural end.
	OutcomeCompleted Outcome = iota
	// OutcomeEmptyTranscript means recognition heard nothing usable; the
	// agent was never contacted. Not an error.
	OutcomeEmptyTranscript
	// OutcomeCancelled means a new speech onset or a session stop
	// pre-empted the turn. Not an error.
	OutcomeCancelled
	// OutcomeFailed means a pipeline stage errored; Turn.FailedStage
	// names it.
	OutcomeFailed
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeEmptyTranscript:
		return "empty_transcript"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Stage names a pipeline stage for error reporting and metrics.
type Stage string

const (
	StageTranscription Stage = "transcription"
	StageAgent         Stage = "agent"
	StageSynthesis     Stage = "synthesis"
	StagePlayback      Stage = "playback"
)

// Turn is the record of one conversation turn. Fields fill in as stages
// complete; once Outcome is terminal the turn is immutable.
type Turn struct {
	// ID is unique within a session and tags every in-flight stage call
	// so stale results can be rejected.
	ID uint64

	// Transcript is the normalized, vocabulary-corrected learner
	// utterance text. Empty if transcription never completed.
	Transcript string

	// Response is the tutor reply text. Set even when synthesis later
	// fails, so the text can still be surfaced.
	Response string

	// Audio is the synthesized reply clip.
	Audio []byte

	Outcome Outcome

	// FailedStage names the stage that failed when Outcome is
	// OutcomeFailed.
	FailedStage Stage

	// Err is the stage error when Outcome is OutcomeFailed.
	Err error

	// Latency is end of learner speech to start of tutor playback. Zero
	// when the turn never reached playback.
	Latency time.Duration

	// StartedAt is when the utterance was handed to the orchestrator.
	StartedAt time.Time

	// CompletedAt is when the turn reached its terminal outcome.
	CompletedAt time.Time
}

// Callbacks notify the session of turn progress. Nil fields are no-ops.
// Callbacks run on the turn goroutine; they must not block for long.
type Callbacks struct {
	// OnStateChange fires on every orchestrator state transition. It runs
	// under the orchestrator's internal lock so observers see transitions
	// in order; it must not call back into the orchestrator.
	OnStateChange func(from, to State)

	// OnTranscript fires when a live turn's transcript is ready.
	OnTranscript func(turnID uint64, text string)

	// OnResponse fires when a live turn's reply text is ready, before
	// synthesis starts, so the text reaches the learner even when
	// synthesis later fails.
	OnResponse func(turnID uint64, text string)

	// OnTurnComplete fires once per turn with its terminal record.
	OnTurnComplete func(turn Turn)

	// OnError fires when a stage fails.
	OnError func(stage Stage, err error)
}
