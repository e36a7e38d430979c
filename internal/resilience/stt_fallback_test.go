package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/tugatalk/tugatalk/pkg/audio"
	"github.com/tugatalk/tugatalk/pkg/provider/stt"
	sttmock "github.com/tugatalk/tugatalk/pkg/provider/stt/mock"
)

func testUtt() audio.Utterance {
	return audio.Utterance{ID: 1, Samples: make([]float32, 512), SampleRate: 16000}
}

func TestSTTFallback_PrimarySuccess(t *testing.T) {
	primary := &sttmock.Transcriber{Result: stt.Transcript{Text: "bom dia"}}
	secondary := &sttmock.Transcriber{Result: stt.Transcript{Text: "never used"}}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	got, err := fb.Transcribe(context.Background(), testUtt(), "pt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Text != "bom dia" {
		t.Fatalf("text = %q, want %q", got.Text, "bom dia")
	}
	if primary.CallCount() != 1 {
		t.Fatalf("primary called %d times, want 1", primary.CallCount())
	}
	if secondary.CallCount() != 0 {
		t.Fatalf("secondary called %d times, want 0", secondary.CallCount())
	}
}

func TestSTTFallback_Failover(t *testing.T) {
	primary := &sttmock.Transcriber{Err: errors.New("primary down")}
	secondary := &sttmock.Transcriber{Result: stt.Transcript{Text: "obrigado"}}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	got, err := fb.Transcribe(context.Background(), testUtt(), "pt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Text != "obrigado" {
		t.Fatalf("text = %q, want %q", got.Text, "obrigado")
	}
	if primary.CallCount() != 1 {
		t.Fatalf("primary called %d times, want 1", primary.CallCount())
	}
	if secondary.CallCount() != 1 {
		t.Fatalf("secondary called %d times, want 1", secondary.CallCount())
	}
}

func TestSTTFallback_AllFail(t *testing.T) {
	primary := &sttmock.Transcriber{Err: errors.New("primary down")}
	secondary := &sttmock.Transcriber{Err: errors.New("secondary down")}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.Transcribe(context.Background(), testUtt(), "pt")
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("error = %v, want ErrAllFailed", err)
	}
}

func TestSTTFallback_OpenBreakerSkipsPrimary(t *testing.T) {
	primary := &sttmock.Transcriber{Err: errors.New("primary down")}
	secondary := &sttmock.Transcriber{Result: stt.Transcript{Text: "adeus"}}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2},
	})
	fb.AddFallback("secondary", secondary)

	// Trip the primary's breaker.
	for i := 0; i < 2; i++ {
		if _, err := fb.Transcribe(context.Background(), testUtt(), "pt"); err != nil {
			t.Fatalf("Transcribe %d: %v", i, err)
		}
	}
	primaryCalls := primary.CallCount()

	// Breaker is now open: the primary must not be invoked again.
	got, err := fb.Transcribe(context.Background(), testUtt(), "pt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Text != "adeus" {
		t.Fatalf("text = %q, want %q", got.Text, "adeus")
	}
	if primary.CallCount() != primaryCalls {
		t.Fatalf("primary called after breaker opened: %d -> %d", primaryCalls, primary.CallCount())
	}
}
