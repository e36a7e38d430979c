package energy

import (
	"testing"

	"github.com/tugatalk/tugatalk/pkg/audio"
)

// constantFrame builds a frame whose RMS equals level exactly.
func constantFrame(level float32, n int) audio.Frame {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = level
	}
	return audio.Frame{Samples: samples, SampleRate: 16000}
}

func TestScoreMapsRMSOntoProbability(t *testing.T) {
	t.Parallel()

	s := New(WithNoiseFloor(0.01), WithSpeechCeiling(0.05))

	tests := []struct {
		name  string
		level float32
		want  float64
	}{
		{"below floor", 0.005, 0},
		{"at floor", 0.01, 0},
		{"midpoint", 0.03, 0.5},
		{"at ceiling", 0.05, 1},
		{"above ceiling", 0.2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := s.Score(constantFrame(tt.level, 160))
			if err != nil {
				t.Fatalf("Score: %v", err)
			}
			if diff := got - tt.want; diff > 1e-6 || diff < -1e-6 {
				t.Errorf("Score(rms=%v) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestScoreSilentFrame(t *testing.T) {
	t.Parallel()

	got, err := New().Score(constantFrame(0, 160))
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got != 0 {
		t.Errorf("Score(silence) = %v, want 0", got)
	}
}

func TestScoreEmptyFrame(t *testing.T) {
	t.Parallel()

	if _, err := New().Score(audio.Frame{}); err == nil {
		t.Fatal("want error for empty frame, got nil")
	}
}

func TestCloseRejectsFurtherScoring(t *testing.T) {
	t.Parallel()

	s := New()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := s.Score(constantFrame(0.1, 160)); err == nil {
		t.Fatal("want error after Close, got nil")
	}
}
