package config_test

import (
	"testing"

	"github.com/tugatalk/tugatalk/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Tutor: config.TutorConfig{
			Language:     "pt",
			Voice:        "pt_PT-tugão-medium",
			SpeakingRate: 1.0,
			MaxHistory:   20,
		},
		Transcript: config.TranscriptConfig{
			Vocabulary: []string{"obrigado", "adeus"},
		},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	old := baseConfig()
	new := baseConfig()

	d := config.Diff(old, new)
	if d.HasChanges() {
		t.Errorf("expected no changes, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	old := baseConfig()
	new := baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("LogLevelChanged should be true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel: got %q, want %q", d.NewLogLevel, config.LogDebug)
	}
}

func TestDiff_TutorChanged(t *testing.T) {
	old := baseConfig()
	new := baseConfig()
	new.Tutor.Voice = "pt_PT-other"
	new.Tutor.SpeakingRate = 0.8
	new.Tutor.SystemPrompt = "custom persona"

	d := config.Diff(old, new)
	if !d.VoiceChanged {
		t.Error("VoiceChanged should be true")
	}
	if !d.SpeakingRateChanged {
		t.Error("SpeakingRateChanged should be true")
	}
	if !d.SystemPromptChanged {
		t.Error("SystemPromptChanged should be true")
	}
	if d.MaxHistoryChanged {
		t.Error("MaxHistoryChanged should be false")
	}
	if d.LogLevelChanged {
		t.Error("LogLevelChanged should be false")
	}
}

func TestDiff_VocabularyChanged(t *testing.T) {
	old := baseConfig()
	new := baseConfig()
	new.Transcript.Vocabulary = append(new.Transcript.Vocabulary, "saudade")

	d := config.Diff(old, new)
	if !d.VocabularyChanged {
		t.Error("VocabularyChanged should be true")
	}
	if !d.HasChanges() {
		t.Error("HasChanges should be true")
	}
}

func TestDiff_VocabularyOrderMatters(t *testing.T) {
	old := baseConfig()
	new := baseConfig()
	new.Transcript.Vocabulary = []string{"adeus", "obrigado"}

	d := config.Diff(old, new)
	if !d.VocabularyChanged {
		t.Error("reordered vocabulary should count as changed")
	}
}
