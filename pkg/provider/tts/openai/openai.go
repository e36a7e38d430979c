// Package openai provides a tts.Synthesizer backed by the OpenAI speech
// synthesis API.
package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/tugatalk/tugatalk/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Synthesizer)(nil)

const (
	defaultModel = oai.SpeechModelTTS1
	// "nova" is a valid API voice; openai-go v1.11+ no longer exports a
	// constant for it.
	defaultVoice = "nova"

	// maxResponseBytes caps how much audio a single reply may carry.
	maxResponseBytes = 32 << 20
)

// Synthesizer implements tts.Synthesizer using the OpenAI API. Audio is
// requested in WAV format so downstream playback does not need a decoder.
type Synthesizer struct {
	client oai.Client
	model  oai.SpeechModel
	voice  string
}

// config holds optional configuration for the synthesizer.
type config struct {
	baseURL string
	model   oai.SpeechModel
	voice   string
	timeout time.Duration
}

// Option is a functional option for Synthesizer.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel overrides the speech model. Defaults to tts-1.
func WithModel(model string) Option {
	return func(c *config) { c.model = oai.SpeechModel(model) }
}

// WithVoice sets the default voice used when a call does not specify one.
func WithVoice(voice string) Option {
	return func(c *config) { c.voice = voice }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a Synthesizer authenticated with the given API key.
func New(apiKey string, opts ...Option) (*Synthesizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	cfg := &config{model: defaultModel, voice: defaultVoice}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Synthesizer{
		client: oai.NewClient(reqOpts...),
		model:  cfg.model,
		voice:  cfg.voice,
	}, nil
}

// Synthesize implements tts.Synthesizer. Cancelling ctx aborts the
// in-flight HTTP request. opts.Language is ignored; the OpenAI voices are
// multilingual and follow the input text.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts tts.SynthesisOptions) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("openai: text must not be empty")
	}

	voice := s.voice
	if opts.Voice != "" {
		voice = opts.Voice
	}

	params := oai.AudioSpeechNewParams{
		Model:          s.model,
		Input:          text,
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatWAV,
	}
	if opts.Rate > 0 && opts.Rate != 1.0 {
		params.Speed = oai.Float(opts.Rate)
	}

	resp, err := s.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: synthesize: %w", err)
	}
	defer resp.Body.Close()

	wav, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("openai: read audio: %w", err)
	}
	if len(wav) == 0 {
		return nil, fmt.Errorf("openai: server returned empty audio")
	}
	return wav, nil
}
