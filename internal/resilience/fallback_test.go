package resilience

import (
	"errors"
	"testing"
	"time"
)

// scriptedGroup builds a two-backend group over plain string handles; the
// STT/TTS wrapper tests cover the real provider interfaces.
func scriptedGroup(cfg CircuitBreakerConfig) *FallbackGroup[string] {
	g := NewFallbackGroup("primary", "primary", FallbackConfig{CircuitBreaker: cfg})
	g.AddFallback("secondary", "secondary")
	return g
}

func TestAttemptPrefersPrimary(t *testing.T) {
	t.Parallel()

	g := scriptedGroup(CircuitBreakerConfig{MaxFailures: 3})
	got, err := Attempt(g, func(b string) (string, error) {
		return "served by " + b, nil
	})
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if got != "served by primary" {
		t.Fatalf("result = %q, want the primary's", got)
	}
}

func TestAttemptFailsOverInOrder(t *testing.T) {
	t.Parallel()

	g := scriptedGroup(CircuitBreakerConfig{MaxFailures: 3})
	var tried []string
	got, err := Attempt(g, func(b string) (string, error) {
		tried = append(tried, b)
		if b == "primary" {
			return "", errBackendDown
		}
		return "served by " + b, nil
	})
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if got != "served by secondary" {
		t.Fatalf("result = %q, want the secondary's", got)
	}
	if len(tried) != 2 || tried[0] != "primary" || tried[1] != "secondary" {
		t.Fatalf("tried %v, want primary then secondary", tried)
	}
}

func TestAttemptAllFail(t *testing.T) {
	t.Parallel()

	g := scriptedGroup(CircuitBreakerConfig{MaxFailures: 3})
	_, err := Attempt(g, func(b string) (string, error) {
		return "", errBackendDown
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestAttemptSkipsOpenBreaker(t *testing.T) {
	t.Parallel()

	g := scriptedGroup(CircuitBreakerConfig{
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	})

	// Trip the primary's breaker.
	for i := 0; i < 2; i++ {
		_, _ = Attempt(g, func(b string) (string, error) {
			if b == "primary" {
				return "", errBackendDown
			}
			return "ok", nil
		})
	}

	// With the primary open, it must not even be invoked.
	var tried []string
	got, err := Attempt(g, func(b string) (string, error) {
		tried = append(tried, b)
		return "served by " + b, nil
	})
	if err != nil {
		t.Fatalf("Attempt: %v", err)
	}
	if got != "served by secondary" {
		t.Fatalf("result = %q, want the secondary's", got)
	}
	if len(tried) != 1 || tried[0] != "secondary" {
		t.Fatalf("tried %v, want only secondary", tried)
	}
}

func TestAttemptSingleBackendGroup(t *testing.T) {
	t.Parallel()

	g := NewFallbackGroup("only", "only", FallbackConfig{})
	_, err := Attempt(g, func(b string) (string, error) {
		return "", errBackendDown
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}

	got, err := Attempt(g, func(b string) (string, error) { return b, nil })
	if err != nil || got != "only" {
		t.Fatalf("Attempt = %q, %v, want only, nil", got, err)
	}
}
