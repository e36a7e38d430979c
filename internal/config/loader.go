package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"scorer": {"silero", "energy"},
	"stt":    {"whisper", "whisper-native", "openai"},
	"tts":    {"piper", "openai"},
	"agent":  {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FrameSamples < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_samples %d must not be negative", cfg.Audio.FrameSamples))
	}

	// VAD
	if cfg.VAD.PositiveThreshold < 0 || cfg.VAD.PositiveThreshold > 1 {
		errs = append(errs, fmt.Errorf("vad.positive_threshold %.2f is out of range [0, 1]", cfg.VAD.PositiveThreshold))
	}
	if cfg.VAD.NegativeThreshold < 0 || cfg.VAD.NegativeThreshold > 1 {
		errs = append(errs, fmt.Errorf("vad.negative_threshold %.2f is out of range [0, 1]", cfg.VAD.NegativeThreshold))
	}
	if cfg.VAD.PositiveThreshold != 0 && cfg.VAD.NegativeThreshold > cfg.VAD.PositiveThreshold {
		errs = append(errs, fmt.Errorf("vad.negative_threshold %.2f must not exceed vad.positive_threshold %.2f", cfg.VAD.NegativeThreshold, cfg.VAD.PositiveThreshold))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("scorer", cfg.Providers.Scorer.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("agent", cfg.Providers.Agent.Name)
	if cfg.Providers.STTFallback != nil {
		validateProviderName("stt", cfg.Providers.STTFallback.Name)
		if cfg.Providers.STT.Name == "" {
			errs = append(errs, errors.New("providers.stt_fallback is set but providers.stt is not configured"))
		}
	}
	if cfg.Providers.TTSFallback != nil {
		validateProviderName("tts", cfg.Providers.TTSFallback.Name)
		if cfg.Providers.TTS.Name == "" {
			errs = append(errs, errors.New("providers.tts_fallback is set but providers.tts is not configured"))
		}
	}

	// Timeouts
	if cfg.Timeouts.TranscriptionSeconds < 0 {
		errs = append(errs, fmt.Errorf("timeouts.transcription_seconds %d must not be negative", cfg.Timeouts.TranscriptionSeconds))
	}
	if cfg.Timeouts.AgentSeconds < 0 {
		errs = append(errs, fmt.Errorf("timeouts.agent_seconds %d must not be negative", cfg.Timeouts.AgentSeconds))
	}
	if cfg.Timeouts.SynthesisSeconds < 0 {
		errs = append(errs, fmt.Errorf("timeouts.synthesis_seconds %d must not be negative", cfg.Timeouts.SynthesisSeconds))
	}

	// Tutor
	if cfg.Tutor.SpeakingRate != 0 {
		if cfg.Tutor.SpeakingRate < 0.5 || cfg.Tutor.SpeakingRate > 2.0 {
			errs = append(errs, fmt.Errorf("tutor.speaking_rate %.2f is out of range [0.5, 2.0]", cfg.Tutor.SpeakingRate))
		}
	}
	if cfg.Tutor.MaxHistory < 0 {
		errs = append(errs, fmt.Errorf("tutor.max_history %d must not be negative", cfg.Tutor.MaxHistory))
	}

	// Transcript correction
	if cfg.Transcript.PhoneticThreshold < 0 || cfg.Transcript.PhoneticThreshold > 1 {
		errs = append(errs, fmt.Errorf("transcript.phonetic_threshold %.2f is out of range [0, 1]", cfg.Transcript.PhoneticThreshold))
	}
	if cfg.Transcript.FuzzyThreshold < 0 || cfg.Transcript.FuzzyThreshold > 1 {
		errs = append(errs, fmt.Errorf("transcript.fuzzy_threshold %.2f is out of range [0, 1]", cfg.Transcript.FuzzyThreshold))
	}

	// History availability
	if cfg.History.PostgresDSN == "" {
		slog.Warn("history.postgres_dsn is empty; turn history will be kept in memory only")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
