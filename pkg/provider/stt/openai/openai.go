// Package openai provides a speech-to-text transcriber backed by the
// OpenAI audio transcriptions API.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/tugatalk/tugatalk/pkg/audio"
	"github.com/tugatalk/tugatalk/pkg/provider/stt"
)

// Compile-time assertion that Transcriber satisfies stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

const defaultModel = oai.AudioModelWhisper1

// Transcriber implements stt.Transcriber using the OpenAI API. Each call
// encodes the utterance as a WAV file and uploads it in one request.
type Transcriber struct {
	client oai.Client
	model  oai.AudioModel
}

// config holds optional configuration for the transcriber.
type config struct {
	baseURL string
	model   oai.AudioModel
	timeout time.Duration
}

// Option is a functional option for Transcriber.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel overrides the transcription model. Defaults to whisper-1.
func WithModel(model string) Option {
	return func(c *config) { c.model = oai.AudioModel(model) }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a Transcriber authenticated with the given API key.
func New(apiKey string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	cfg := &config{model: defaultModel}
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

	return &Transcriber{
		client: oai.NewClient(reqOpts...),
		model:  cfg.model,
	}, nil
}

// Transcribe implements stt.Transcriber. Cancelling ctx aborts the
// in-flight HTTP request.
func (t *Transcriber) Transcribe(ctx context.Context, utt audio.Utterance, language string) (stt.Transcript, error) {
	if len(utt.Samples) == 0 {
		return stt.Transcript{}, fmt.Errorf("openai: utterance has no samples")
	}

	wav := audio.EncodeWAV(utt.Samples, utt.SampleRate)

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "utterance.wav", "audio/wav"),
		Model: t.model,
	}
	if language != "" {
		params.Language = oai.String(language)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("openai: transcribe: %w", err)
	}

	return stt.Transcript{
		Text:     resp.Text,
		Language: language,
	}, nil
}
