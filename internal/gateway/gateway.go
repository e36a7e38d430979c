// Package gateway exposes the spoken-dialogue pipeline over a WebSocket
// endpoint for browser clients.
//
// Each connection gets its own pipeline: mic frames flow in as binary
// messages, pipeline progress flows back as JSON text events, and
// synthesized playback audio flows back as binary PCM chunks.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/tugatalk/tugatalk/internal/orchestrator"
	"github.com/tugatalk/tugatalk/internal/session"
	"github.com/tugatalk/tugatalk/pkg/audio"
)

const (
	// startTimeout bounds how long a client may take to send its start frame.
	startTimeout = 10 * time.Second

	// pushTimeout bounds a mic frame hand-off to the pipeline. The source
	// buffer absorbs bursts; a stuck pipeline drops the connection instead
	// of wedging the read loop.
	pushTimeout = time.Second

	defaultSampleRate   = 16000
	defaultFrameSamples = 1536
)

// Pipeline bundles the per-connection processing chain. The gateway owns its
// lifecycle: Session.Stop is called when the connection ends.
type Pipeline struct {
	// Source receives decoded mic frames.
	Source *audio.ChannelSource

	// Session runs capture, detection, and orchestration for the connection.
	Session *session.Session
}

// PipelineBuilder creates a fresh pipeline for one connection. sink receives
// synthesized playback chunks to forward to the client; cb carries the turn
// callbacks the gateway uses to emit events.
type PipelineBuilder func(sink chan<- []byte, cb orchestrator.Callbacks) (*Pipeline, error)

// Server accepts WebSocket sessions and runs one pipeline per connection.
type Server struct {
	build        PipelineBuilder
	sampleRate   int
	frameSamples int
	logger       *slog.Logger
	insecureSkip bool
}

// Option configures a [Server].
type Option func(*Server)

// WithSampleRate sets the default mic capture rate in Hz.
func WithSampleRate(hz int) Option {
	return func(s *Server) {
		if hz > 0 {
			s.sampleRate = hz
		}
	}
}

// WithFrameSamples sets the samples per frame handed to the detector.
func WithFrameSamples(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.frameSamples = n
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithInsecureSkipVerify disables the WebSocket origin check. Intended for
// tests and local development.
func WithInsecureSkipVerify() Option {
	return func(s *Server) { s.insecureSkip = true }
}

// New creates a gateway server. build must not be nil.
func New(build PipelineBuilder, opts ...Option) (*Server, error) {
	if build == nil {
		return nil, errors.New("gateway: pipeline builder must not be nil")
	}
	s := &Server{
		build:        build,
		sampleRate:   defaultSampleRate,
		frameSamples: defaultFrameSamples,
		logger:       slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Register adds the /ws/session route to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/session", s.handleSession)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: s.insecureSkip,
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "session ended")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	start, err := s.readStart(ctx, conn)
	if err != nil {
		s.logger.Warn("session handshake failed", "err", err)
		conn.Close(websocket.StatusPolicyViolation, "expected start message")
		return
	}

	dec, err := s.newFrameDecoder(start)
	if err != nil {
		s.logger.Warn("session handshake rejected", "err", err)
		conn.Close(websocket.StatusPolicyViolation, err.Error())
		return
	}

	enc, err := newDownlinkEncoder(start.PlaybackCodec)
	if err != nil {
		s.logger.Warn("session handshake rejected", "err", err)
		conn.Close(websocket.StatusPolicyViolation, err.Error())
		return
	}

	events := make(chan Event, 32)
	sink := make(chan []byte, 32)

	pipe, err := s.build(sink, s.callbacks(events))
	if err != nil {
		s.logger.Error("pipeline build failed", "err", err)
		conn.Close(websocket.StatusInternalError, "pipeline unavailable")
		return
	}
	if err := pipe.Session.Start(ctx); err != nil {
		s.logger.Error("pipeline start failed", "err", err)
		conn.Close(websocket.StatusInternalError, "pipeline unavailable")
		return
	}
	defer pipe.Session.Stop()

	// Single writer: both playback chunks and events go through here.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx, conn, enc, events, sink)
	}()

	s.logger.Info("session connected",
		"remote", r.RemoteAddr,
		"codec", start.Codec,
		"playback_codec", start.PlaybackCodec,
		"sample_rate", dec.sampleRate,
	)

	err = s.readLoop(ctx, conn, dec, pipe.Source)

	// Stop feeding the pipeline, let it wind down, then release the writer.
	pipe.Session.Stop()
	cancel()
	<-writerDone

	switch {
	case err == nil || isClientGone(err):
		conn.Close(websocket.StatusNormalClosure, "bye")
		s.logger.Info("session closed", "remote", r.RemoteAddr)
	default:
		s.logger.Warn("session aborted", "remote", r.RemoteAddr, "err", err)
	}
}

// readStart waits for the client's negotiation frame.
func (s *Server) readStart(ctx context.Context, conn *websocket.Conn) (StartMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()

	typ, data, err := conn.Read(ctx)
	if err != nil {
		return StartMessage{}, fmt.Errorf("gateway: read start frame: %w", err)
	}
	if typ != websocket.MessageText {
		return StartMessage{}, errors.New("gateway: first frame must be a text start message")
	}

	var start StartMessage
	if err := json.Unmarshal(data, &start); err != nil {
		return StartMessage{}, fmt.Errorf("gateway: parse start frame: %w", err)
	}
	if start.Type != "start" {
		return StartMessage{}, fmt.Errorf("gateway: unexpected message type %q", start.Type)
	}
	return start, nil
}

// callbacks converts orchestrator progress into client events. Pushes are
// non-blocking: a slow client loses events rather than stalling a turn.
func (s *Server) callbacks(events chan<- Event) orchestrator.Callbacks {
	push := func(ev Event) {
		select {
		case events <- ev:
		default:
			s.logger.Debug("event dropped, client not keeping up", "type", ev.Type)
		}
	}

	return orchestrator.Callbacks{
		OnStateChange: func(_, to orchestrator.State) {
			push(Event{Type: EventState, State: to.String()})
		},
		OnTranscript: func(turnID uint64, text string) {
			push(Event{Type: EventTranscript, TurnID: turnID, Text: text})
		},
		OnResponse: func(turnID uint64, text string) {
			push(Event{Type: EventResponse, TurnID: turnID, Text: text})
		},
		OnTurnComplete: func(turn orchestrator.Turn) {
			push(Event{
				Type:      EventTurn,
				TurnID:    turn.ID,
				Outcome:   turn.Outcome.String(),
				LatencyMs: turn.Latency.Milliseconds(),
			})
		},
		OnError: func(stage orchestrator.Stage, err error) {
			push(Event{Type: EventError, Stage: string(stage), Message: err.Error()})
		},
	}
}

// readLoop consumes client frames until the connection ends or the client
// sends a stop control message.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, dec *frameDecoder, source *audio.ChannelSource) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		switch typ {
		case websocket.MessageBinary:
			frames, err := dec.decode(data)
			if err != nil {
				s.logger.Warn("mic frame rejected", "err", err)
				continue
			}
			for _, f := range frames {
				if err := source.Push(f, pushTimeout); err != nil {
					if errors.Is(err, audio.ErrSourceClosed) {
						return nil
					}
					return fmt.Errorf("gateway: push mic frame: %w", err)
				}
			}

		case websocket.MessageText:
			var msg ControlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				s.logger.Warn("control message rejected", "err", err)
				continue
			}
			if msg.Type == "stop" {
				return nil
			}
		}
	}
}

// writeLoop forwards events and playback audio to the client. enc, when set,
// converts playback chunks to opus packets. The loop exits when ctx is
// cancelled.
func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, enc *downlinkEncoder, events <-chan Event, sink <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("event marshal failed", "type", ev.Type, "err", err)
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		case chunk := <-sink:
			if enc == nil {
				if err := conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
					return
				}
				continue
			}
			packets, err := enc.encode(chunk)
			if err != nil {
				s.logger.Error("playback encode failed", "err", err)
				continue
			}
			for _, pkt := range packets {
				if err := conn.Write(ctx, websocket.MessageBinary, pkt); err != nil {
					return
				}
			}
		}
	}
}

// isClientGone reports whether err is an expected end-of-connection error.
func isClientGone(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	status := websocket.CloseStatus(err)
	return status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway
}
