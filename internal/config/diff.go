package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; provider,
// audio, and VAD changes require a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// Tutor behaviour (applies to the next turn).
	VoiceChanged        bool
	SpeakingRateChanged bool
	SystemPromptChanged bool
	MaxHistoryChanged   bool

	// Correction vocabulary (applies to the next transcript).
	VocabularyChanged bool
}

// HasChanges reports whether any hot-reloadable field differs.
func (d ConfigDiff) HasChanges() bool {
	return d.LogLevelChanged ||
		d.VoiceChanged ||
		d.SpeakingRateChanged ||
		d.SystemPromptChanged ||
		d.MaxHistoryChanged ||
		d.VocabularyChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Tutor.Voice != new.Tutor.Voice {
		d.VoiceChanged = true
	}
	if old.Tutor.SpeakingRate != new.Tutor.SpeakingRate {
		d.SpeakingRateChanged = true
	}
	if old.Tutor.SystemPrompt != new.Tutor.SystemPrompt {
		d.SystemPromptChanged = true
	}
	if old.Tutor.MaxHistory != new.Tutor.MaxHistory {
		d.MaxHistoryChanged = true
	}

	if !slices.Equal(old.Transcript.Vocabulary, new.Transcript.Vocabulary) {
		d.VocabularyChanged = true
	}

	return d
}
