package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBackendDown = errors.New("backend down")

// trip drives n consecutive failures through the breaker.
func trip(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_ = cb.Execute(func() error { return errBackendDown })
	}
}

func TestBreakerDefaults(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "whisper"})
	if cb.maxFailures != 5 || cb.cooldown != 30*time.Second || cb.probeMax != 3 {
		t.Errorf("defaults = %d/%v/%d, want 5/30s/3", cb.maxFailures, cb.cooldown, cb.probeMax)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
}

func TestBreakerForwardsWhileClosed(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "whisper", MaxFailures: 3})
	called := false
	if err := cb.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !called {
		t.Fatal("backend was not invoked")
	}
}

func TestBreakerOpensOnFailureStreak(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "whisper",
		MaxFailures:  3,
		ResetTimeout: time.Hour,
	})
	trip(cb, 3)

	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open after 3 failures", cb.State())
	}

	invoked := false
	err := cb.Execute(func() error { invoked = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Execute while open = %v, want ErrCircuitOpen", err)
	}
	if invoked {
		t.Fatal("backend invoked while breaker open")
	}
}

func TestBreakerSuccessClearsStreak(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "whisper", MaxFailures: 3})

	trip(cb, 2)
	_ = cb.Execute(func() error { return nil })
	trip(cb, 2)

	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed: success must reset the streak", cb.State())
	}
}

func TestBreakerProbesAfterCooldown(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "whisper",
		MaxFailures:  2,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  2,
	})
	trip(cb, 2)

	time.Sleep(15 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after cooldown", cb.State())
	}
}

func TestBreakerClosesAfterSuccessfulProbes(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "whisper",
		MaxFailures:  2,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  2,
	})
	trip(cb, 2)
	time.Sleep(15 * time.Millisecond)

	for i := 0; i < 2; i++ {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after successful probes", cb.State())
	}
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "whisper",
		MaxFailures:  2,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  3,
	})
	trip(cb, 2)
	time.Sleep(15 * time.Millisecond)

	if err := cb.Execute(func() error { return errBackendDown }); err == nil {
		t.Fatal("failing probe returned nil")
	}

	// The raw state is open; State() would report half-open again only
	// after another full cooldown.
	cb.mu.Lock()
	s := cb.state
	cb.mu.Unlock()
	if s != StateOpen {
		t.Fatalf("state = %v, want open after failed probe", s)
	}
}

func TestBreakerProbeBudgetExhausts(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "whisper",
		MaxFailures:  2,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  1,
	})
	trip(cb, 2)
	time.Sleep(15 * time.Millisecond)

	// One slow probe holds the only slot; a second call must be rejected
	// instead of piling onto a backend under recovery.
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = cb.Execute(func() error { <-release; return nil })
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)

	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("second probe = %v, want ErrCircuitOpen", err)
	}
	close(release)
	<-done
}

func TestStateString(t *testing.T) {
	t.Parallel()

	cases := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(42), "unknown"},
	}
	for _, tc := range cases {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("State(%d).String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}
