// Package whisperhttp provides an stt.Transcriber backed by a running
// whisper-server binary (whisper.cpp), which exposes a REST API at
// POST /inference.
//
// Each utterance is encoded as a mono 16-bit WAV file and submitted as one
// multipart batch inference request. Cancellation is real: the HTTP request
// is built on the caller's context, so aborting the turn aborts the upload.
//
// Usage:
//
//	p, err := whisperhttp.New("http://localhost:8080",
//	    whisperhttp.WithLanguage("pt"),
//	)
//	tr, err := p.Transcribe(ctx, utterance, "pt")
package whisperhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/tugatalk/tugatalk/pkg/audio"
	"github.com/tugatalk/tugatalk/pkg/provider/stt"
)

// Compile-time assertion that Provider implements stt.Transcriber.
var _ stt.Transcriber = (*Provider)(nil)

const (
	defaultLanguage = "pt"
	defaultTimeout  = 30 * time.Second
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper-server
// (e.g., "base", "small"). When empty the server uses whichever model it was
// started with — this is the default.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the default BCP-47 language code sent to the server.
// Defaults to "pt". A non-empty language argument to Transcribe overrides it.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithHTTPClient replaces the HTTP client, e.g. to tune the transport. The
// per-call deadline still comes from the caller's context.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider is a whisper-server-backed Transcriber.
// Safe for concurrent use.
type Provider struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a Provider targeting the whisper-server at serverURL
// (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisperhttp: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  serverURL,
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Transcriber. The utterance is wrapped in a WAV
// container and POSTed to /inference as multipart/form-data.
func (p *Provider) Transcribe(ctx context.Context, utt audio.Utterance, language string) (stt.Transcript, error) {
	if len(utt.Samples) == 0 {
		return stt.Transcript{}, errors.New("whisperhttp: empty utterance")
	}
	lang := language
	if lang == "" {
		lang = p.language
	}

	wav := audio.EncodeWAV(utt.Samples, utt.SampleRate)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisperhttp: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisperhttp: write wav data: %w", err)
	}
	if lang != "" {
		if err := mw.WriteField("language", lang); err != nil {
			return stt.Transcript{}, fmt.Errorf("whisperhttp: write language field: %w", err)
		}
	}
	if p.model != "" {
		if err := mw.WriteField("model", p.model); err != nil {
			return stt.Transcript{}, fmt.Errorf("whisperhttp: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisperhttp: close multipart writer: %w", err)
	}

	endpoint := p.serverURL + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisperhttp: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisperhttp: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stt.Transcript{}, fmt.Errorf("whisperhttp: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisperhttp: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisperhttp: parse JSON response: %w", err)
	}

	return stt.Transcript{Text: result.Text, Language: lang}, nil
}
