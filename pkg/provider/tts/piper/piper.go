// Package piper provides a tts.Synthesizer backed by a Piper HTTP
// synthesis server.
//
// The server exposes POST /tts accepting a JSON body {text, lang,
// voiceKey} and returning a complete audio/wav clip, plus GET /health for
// liveness probes. A single-model server ignores lang and voiceKey; they
// are sent for API symmetry with multi-voice deployments.
//
// Typical usage:
//
//	s := piper.New("http://localhost:8000",
//	    piper.WithVoice("pt_PT-tugão-medium"),
//	    piper.WithTimeout(15*time.Second),
//	)
//	wav, err := s.Synthesize(ctx, "Olá! Como está?", tts.SynthesisOptions{})
package piper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tugatalk/tugatalk/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Synthesizer)(nil)

const (
	defaultVoice    = "pt_PT-tugão-medium"
	defaultLanguage = "pt-PT"
	defaultTimeout  = 30 * time.Second

	ttsEndpoint    = "/tts"
	healthEndpoint = "/health"

	// maxResponseBytes caps how much audio a single reply may carry.
	maxResponseBytes = 32 << 20
)

// Synthesizer implements tts.Synthesizer against a Piper HTTP server.
type Synthesizer struct {
	baseURL  string
	voice    string
	language string
	client   *http.Client
}

// Option is a functional option for configuring a Synthesizer.
type Option func(*Synthesizer)

// WithVoice sets the default voice key sent with each request. Defaults
// to the European Portuguese tugão medium voice.
func WithVoice(voice string) Option {
	return func(s *Synthesizer) { s.voice = voice }
}

// WithLanguage sets the default language code sent with each request.
// Defaults to "pt-PT".
func WithLanguage(lang string) Option {
	return func(s *Synthesizer) { s.language = lang }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30s.
func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) { s.client.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Synthesizer) { s.client = c }
}

// New creates a Synthesizer targeting the Piper server at baseURL.
func New(baseURL string, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		baseURL:  strings.TrimRight(baseURL, "/"),
		voice:    defaultVoice,
		language: defaultLanguage,
		client:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ttsRequest is the JSON body of POST /tts.
type ttsRequest struct {
	Text     string `json:"text"`
	Lang     string `json:"lang,omitempty"`
	VoiceKey string `json:"voiceKey,omitempty"`
}

// Synthesize implements tts.Synthesizer. Cancelling ctx aborts the
// in-flight HTTP request. opts.Rate is not supported by the Piper wire
// format and is ignored.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts tts.SynthesisOptions) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("piper: text must not be empty")
	}

	reqBody := ttsRequest{
		Text:     text,
		Lang:     s.language,
		VoiceKey: s.voice,
	}
	if opts.Language != "" {
		reqBody.Lang = opts.Language
	}
	if opts.Voice != "" {
		reqBody.VoiceKey = opts.Voice
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("piper: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+ttsEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("piper: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("piper: synthesize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("piper: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	wav, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("piper: read audio: %w", err)
	}
	if len(wav) == 0 {
		return nil, fmt.Errorf("piper: server returned empty audio")
	}
	return wav, nil
}

// Healthy probes GET /health and reports whether the server answered 200.
func (s *Synthesizer) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+healthEndpoint, nil)
	if err != nil {
		return fmt.Errorf("piper: build health request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("piper: health probe: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 512))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("piper: health probe returned %d", resp.StatusCode)
	}
	return nil
}
