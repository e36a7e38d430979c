// Package native implements stt.Transcriber on top of the whisper.cpp
// CGO bindings, eliminating HTTP overhead entirely. The whisper.cpp
// static library (libwhisper.a) and headers (whisper.h) must be
// available at link time via LIBRARY_PATH and C_INCLUDE_PATH.
package native

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/tugatalk/tugatalk/pkg/audio"
	"github.com/tugatalk/tugatalk/pkg/provider/stt"
)

// Compile-time assertion that Transcriber satisfies stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

const defaultLanguage = "pt"

// Transcriber runs whisper.cpp inference in-process. The model is loaded
// once at construction and shared across all calls; each Transcribe call
// creates its own whisper context, so concurrent calls do not interfere.
type Transcriber struct {
	model    whisperlib.Model
	language string
}

// Option is a functional option for configuring a Transcriber.
type Option func(*Transcriber)

// WithLanguage sets the default BCP-47 language code used when a call
// does not specify one. Defaults to "pt".
func WithLanguage(lang string) Option {
	return func(t *Transcriber) { t.language = lang }
}

// New loads the whisper.cpp model from the given file path. The caller
// must call Close when the transcriber is no longer needed.
func New(modelPath string, opts ...Option) (*Transcriber, error) {
	if modelPath == "" {
		return nil, errors.New("native: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("native: load model %q: %w", modelPath, err)
	}
	t := &Transcriber{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Transcribe runs one-shot inference over the utterance. whisper.cpp does
// not support mid-inference cancellation, so ctx is only checked before
// work begins; a context expiring during inference returns ctx.Err after
// the run completes.
func (t *Transcriber) Transcribe(ctx context.Context, utt audio.Utterance, language string) (stt.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, fmt.Errorf("native: %w", err)
	}
	if len(utt.Samples) == 0 {
		return stt.Transcript{}, errors.New("native: utterance has no samples")
	}

	lang := language
	if lang == "" {
		lang = t.language
	}

	samples := utt.Samples
	if utt.SampleRate != whisperlib.SampleRate {
		samples = audio.ResampleMono(samples, utt.SampleRate, whisperlib.SampleRate)
	}

	// Each context is NOT thread-safe, but the model can be shared.
	wctx, err := t.model.NewContext()
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("native: create context: %w", err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("native: failed to set language, using default", "language", lang, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return stt.Transcript{}, fmt.Errorf("native: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Transcript{}, fmt.Errorf("native: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, fmt.Errorf("native: %w", err)
	}
	return stt.Transcript{
		Text:     strings.Join(parts, " "),
		Language: lang,
	}, nil
}

// Close releases the whisper model.
func (t *Transcriber) Close() error {
	if t.model != nil {
		return t.model.Close()
	}
	return nil
}
