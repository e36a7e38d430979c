package app

import (
	"errors"
	"fmt"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/tugatalk/tugatalk/internal/config"
	"github.com/tugatalk/tugatalk/internal/resilience"
	"github.com/tugatalk/tugatalk/pkg/provider/agent"
	"github.com/tugatalk/tugatalk/pkg/provider/agent/anyllm"
	"github.com/tugatalk/tugatalk/pkg/provider/scorer"
	"github.com/tugatalk/tugatalk/pkg/provider/scorer/energy"
	"github.com/tugatalk/tugatalk/pkg/provider/scorer/silero"
	"github.com/tugatalk/tugatalk/pkg/provider/stt"
	sttnative "github.com/tugatalk/tugatalk/pkg/provider/stt/native"
	sttopenai "github.com/tugatalk/tugatalk/pkg/provider/stt/openai"
	"github.com/tugatalk/tugatalk/pkg/provider/stt/whisperhttp"
	"github.com/tugatalk/tugatalk/pkg/provider/tts"
	"github.com/tugatalk/tugatalk/pkg/provider/tts/piper"
	ttsopenai "github.com/tugatalk/tugatalk/pkg/provider/tts/openai"
)

// Providers holds the constructed provider set for the pipeline.
//
// Transcriber and Synthesizer are shared across connections (they are
// stateless per call, possibly wrapped in a fallback group). The agent and
// the scorer are stateful, so each connection gets a fresh instance through
// the factory functions.
type Providers struct {
	STT stt.Transcriber
	TTS tts.Synthesizer

	// NewAgent creates a per-connection responder with its own
	// conversation history.
	NewAgent func() (agent.Responder, error)

	// NewScorer creates a per-connection speech scorer with its own
	// model state.
	NewScorer func() (scorer.Scorer, error)
}

// DefaultRegistry returns a [config.Registry] with every built-in provider
// registered under the names [config.ValidProviderNames] documents.
func DefaultRegistry() *config.Registry {
	reg := config.NewRegistry()

	// ── Scorers ──────────────────────────────────────────────────────────
	reg.RegisterScorer("silero", func(e config.ProviderEntry) (scorer.Scorer, error) {
		if e.Model == "" {
			return nil, errors.New("app: silero scorer requires a model path")
		}
		var opts []silero.Option
		if rate, ok := intOption(e, "sample_rate"); ok {
			opts = append(opts, silero.WithSampleRate(rate))
		}
		if lib, ok := stringOption(e, "library_path"); ok {
			opts = append(opts, silero.WithLibraryPath(lib))
		}
		return silero.New(e.Model, opts...)
	})
	reg.RegisterScorer("energy", func(e config.ProviderEntry) (scorer.Scorer, error) {
		var opts []energy.Option
		if floor, ok := floatOption(e, "noise_floor"); ok {
			opts = append(opts, energy.WithNoiseFloor(floor))
		}
		if ceil, ok := floatOption(e, "speech_ceiling"); ok {
			opts = append(opts, energy.WithSpeechCeiling(ceil))
		}
		return energy.New(opts...), nil
	})

	// ── Transcribers ─────────────────────────────────────────────────────
	reg.RegisterSTT("whisper", func(e config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisperhttp.Option
		if e.Model != "" {
			opts = append(opts, whisperhttp.WithModel(e.Model))
		}
		return whisperhttp.New(e.BaseURL, opts...)
	})
	reg.RegisterSTT("whisper-native", func(e config.ProviderEntry) (stt.Transcriber, error) {
		return sttnative.New(e.Model)
	})
	reg.RegisterSTT("openai", func(e config.ProviderEntry) (stt.Transcriber, error) {
		var opts []sttopenai.Option
		if e.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(e.BaseURL))
		}
		if e.Model != "" {
			opts = append(opts, sttopenai.WithModel(e.Model))
		}
		return sttopenai.New(e.APIKey, opts...)
	})

	// ── Synthesizers ─────────────────────────────────────────────────────
	reg.RegisterTTS("piper", func(e config.ProviderEntry) (tts.Synthesizer, error) {
		if e.BaseURL == "" {
			return nil, errors.New("app: piper synthesizer requires a base URL")
		}
		var opts []piper.Option
		if voice, ok := stringOption(e, "voice"); ok {
			opts = append(opts, piper.WithVoice(voice))
		}
		if lang, ok := stringOption(e, "language"); ok {
			opts = append(opts, piper.WithLanguage(lang))
		}
		return piper.New(e.BaseURL, opts...), nil
	})
	reg.RegisterTTS("openai", func(e config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []ttsopenai.Option
		if e.BaseURL != "" {
			opts = append(opts, ttsopenai.WithBaseURL(e.BaseURL))
		}
		if e.Model != "" {
			opts = append(opts, ttsopenai.WithModel(e.Model))
		}
		return ttsopenai.New(e.APIKey, opts...)
	})

	// ── Agents ───────────────────────────────────────────────────────────
	for _, name := range config.ValidProviderNames["agent"] {
		reg.RegisterAgent(name, func(e config.ProviderEntry) (agent.Responder, error) {
			var libOpts []anyllmlib.Option
			if e.APIKey != "" {
				libOpts = append(libOpts, anyllmlib.WithAPIKey(e.APIKey))
			}
			if e.BaseURL != "" {
				libOpts = append(libOpts, anyllmlib.WithBaseURL(e.BaseURL))
			}
			var opts []anyllm.Option
			if prompt, ok := stringOption(e, "system_prompt"); ok {
				opts = append(opts, anyllm.WithSystemPrompt(prompt))
			}
			if n, ok := intOption(e, "max_history"); ok {
				opts = append(opts, anyllm.WithMaxHistory(n))
			}
			if n, ok := intOption(e, "max_tokens"); ok {
				opts = append(opts, anyllm.WithMaxTokens(n))
			}
			if temp, ok := floatOption(e, "temperature"); ok {
				opts = append(opts, anyllm.WithTemperature(temp))
			}
			return anyllm.New(e.Name, e.Model, libOpts, opts...)
		})
	}

	return reg
}

// BuildProviders constructs the provider set declared in cfg using the
// factories registered in reg. Fallback entries are wrapped in circuit-broken
// fallback groups.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	if cfg.Providers.STT.Name == "" {
		return nil, errors.New("app: providers.stt is required")
	}
	if cfg.Providers.TTS.Name == "" {
		return nil, errors.New("app: providers.tts is required")
	}
	if cfg.Providers.Agent.Name == "" {
		return nil, errors.New("app: providers.agent is required")
	}

	p := &Providers{}

	transcriber, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("app: create stt provider: %w", err)
	}
	p.STT = transcriber
	if fb := cfg.Providers.STTFallback; fb != nil {
		fallback, err := reg.CreateSTT(*fb)
		if err != nil {
			return nil, fmt.Errorf("app: create stt fallback: %w", err)
		}
		group := resilience.NewSTTFallback(transcriber, cfg.Providers.STT.Name, resilience.FallbackConfig{})
		group.AddFallback(fb.Name, fallback)
		p.STT = group
	}

	synthesizer, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		return nil, fmt.Errorf("app: create tts provider: %w", err)
	}
	p.TTS = synthesizer
	if fb := cfg.Providers.TTSFallback; fb != nil {
		fallback, err := reg.CreateTTS(*fb)
		if err != nil {
			return nil, fmt.Errorf("app: create tts fallback: %w", err)
		}
		group := resilience.NewTTSFallback(synthesizer, cfg.Providers.TTS.Name, resilience.FallbackConfig{})
		group.AddFallback(fb.Name, fallback)
		p.TTS = group
	}

	// Tutor behaviour rides along as provider options so the agent factory
	// sees one coherent entry.
	agentEntry := cfg.Providers.Agent
	agentEntry.Options = mergeOptions(agentEntry.Options, tutorOptions(cfg.Tutor))
	p.NewAgent = func() (agent.Responder, error) {
		return reg.CreateAgent(agentEntry)
	}

	scorerEntry := cfg.Providers.Scorer
	if scorerEntry.Name == "" {
		scorerEntry.Name = "energy"
	}
	p.NewScorer = func() (scorer.Scorer, error) {
		return reg.CreateScorer(scorerEntry)
	}

	return p, nil
}

// tutorOptions converts the tutor config into agent provider options.
func tutorOptions(t config.TutorConfig) map[string]any {
	opts := make(map[string]any)
	if t.SystemPrompt != "" {
		opts["system_prompt"] = t.SystemPrompt
	}
	if t.MaxHistory > 0 {
		opts["max_history"] = t.MaxHistory
	}
	return opts
}

// mergeOptions overlays extra on top of a copy of base.
func mergeOptions(base, extra map[string]any) map[string]any {
	if len(extra) == 0 {
		return base
	}
	merged := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

// stringOption reads a string value from an entry's options map.
func stringOption(e config.ProviderEntry, key string) (string, bool) {
	v, ok := e.Options[key].(string)
	return v, ok && v != ""
}

// intOption reads an integer value from an entry's options map. YAML decodes
// whole numbers as int.
func intOption(e config.ProviderEntry, key string) (int, bool) {
	switch v := e.Options[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// floatOption reads a float value from an entry's options map.
func floatOption(e config.ProviderEntry, key string) (float64, bool) {
	switch v := e.Options[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
