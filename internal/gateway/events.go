package gateway

// The wire protocol between the browser client and the gateway:
//
//   - The first client message is a text "start" frame negotiating the mic
//     codec. Every later binary frame carries mic audio in that codec.
//   - Server text frames are [Event] values. Server binary frames carry
//     synthesized playback audio: 16-bit little-endian mono PCM by default,
//     or one Opus packet per frame when the start message asks for an opus
//     downlink.

// Codec identifies the mic uplink encoding.
type Codec string

const (
	// CodecPCM16 is raw 16-bit little-endian mono PCM at the negotiated rate.
	CodecPCM16 Codec = "pcm16"

	// CodecOpus is one Opus packet per binary frame, 48 kHz mono, 20 ms.
	CodecOpus Codec = "opus"
)

// IsValid reports whether c is a recognised codec.
func (c Codec) IsValid() bool {
	return c == CodecPCM16 || c == CodecOpus
}

// StartMessage is the first client frame on a new connection.
type StartMessage struct {
	Type string `json:"type"` // must be "start"

	// Codec selects the mic uplink encoding. Empty means pcm16.
	Codec Codec `json:"codec,omitempty"`

	// SampleRate is the uplink rate in Hz for pcm16. Ignored for opus
	// (always 48000). Empty means the server's configured capture rate.
	SampleRate int `json:"sample_rate,omitempty"`

	// PlaybackCodec selects the downlink encoding for synthesized audio.
	// Empty means pcm16 (48 kHz mono). Opus halves downlink bandwidth for
	// browser clients that feed packets straight into a decoder worklet.
	PlaybackCodec Codec `json:"playback_codec,omitempty"`
}

// ControlMessage is any later client text frame.
type ControlMessage struct {
	Type string `json:"type"` // "stop"
}

// Event types sent to the client.
const (
	EventState      = "state"      // pipeline state transition
	EventTranscript = "transcript" // corrected transcript accepted for a turn
	EventResponse   = "response"   // tutor reply text
	EventTurn       = "turn"       // turn finished, with outcome
	EventError      = "error"      // a stage failed
)

// Event is a server-to-client notification about pipeline progress.
type Event struct {
	Type string `json:"type"`

	// State is set for "state" events (listening, transcribing, thinking,
	// synthesizing, speaking).
	State string `json:"state,omitempty"`

	// Text is set for "transcript" and "response" events.
	Text string `json:"text,omitempty"`

	// TurnID identifies the turn the event belongs to, when known.
	TurnID uint64 `json:"turn_id,omitempty"`

	// Outcome is set for "turn" events (completed, empty_transcript,
	// cancelled, failed).
	Outcome string `json:"outcome,omitempty"`

	// LatencyMs is set for completed "turn" events: speech end to playback
	// start.
	LatencyMs int64 `json:"latency_ms,omitempty"`

	// Stage and Message are set for "error" events.
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message,omitempty"`
}
