// Package resilience keeps the spoken pipeline responsive when a speech
// backend degrades. Each configured STT or TTS backend sits behind its own
// circuit breaker, and [STTFallback] and [TTSFallback] fail a turn over to
// the next healthy backend instead of failing the learner's turn outright.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without invoking the backend while its breaker
// is open and the cooldown has not elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker's operating mode.
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the cooldown
	// elapses.
	StateOpen

	// StateHalfOpen admits a bounded number of probe calls to decide
	// between closing and re-opening.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig tunes one backend's breaker. Zero fields take the
// defaults noted per field.
type CircuitBreakerConfig struct {
	// Name labels the backend in log messages, usually the provider name
	// from the config file.
	Name string

	// MaxFailures is the consecutive-failure count that opens the breaker.
	// Default: 5.
	MaxFailures int

	// ResetTimeout is the cooldown before an open breaker starts probing.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the probe budget in the half-open state. Default: 3.
	HalfOpenMax int

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// CircuitBreaker guards one speech backend with the classic three-state
// pattern: closed until MaxFailures consecutive failures, open for the
// cooldown, then probing until it either recovers or trips again.
type CircuitBreaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	probeMax    int
	logger      *slog.Logger

	mu         sync.Mutex
	state      State
	failStreak int
	lastFailAt time.Time
	probeCalls int
	probeFails int
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CircuitBreaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.ResetTimeout,
		probeMax:    cfg.HalfOpenMax,
		logger:      cfg.Logger,
		state:       StateClosed,
	}
}

// Execute runs fn if the breaker admits the call and folds fn's result into
// the failure accounting. Open breakers return [ErrCircuitOpen] without
// touching the backend.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probing, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(probing, err)
	return err
}

// admit decides whether a call may proceed and whether it counts as a
// half-open probe.
func (cb *CircuitBreaker) admit() (probing bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailAt) < cb.cooldown {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probeCalls = 0
		cb.probeFails = 0
		cb.logger.Info("backend breaker probing after cooldown", "backend", cb.name)

	case StateHalfOpen:
		if cb.probeCalls >= cb.probeMax {
			return false, ErrCircuitOpen
		}
	}

	if cb.state == StateHalfOpen {
		cb.probeCalls++
		return true, nil
	}
	return false, nil
}

// settle records one call's outcome.
func (cb *CircuitBreaker) settle(probing bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if !probing {
			cb.failStreak = 0
			return
		}
		if cb.probeCalls-cb.probeFails >= cb.probeMax {
			cb.state = StateClosed
			cb.failStreak = 0
			cb.probeCalls = 0
			cb.probeFails = 0
			cb.logger.Info("backend recovered, breaker closed", "backend", cb.name)
		}
		return
	}

	cb.lastFailAt = time.Now()
	if probing {
		// Any probe failure re-opens for a full cooldown.
		cb.probeFails++
		cb.state = StateOpen
		cb.failStreak = cb.maxFailures
		cb.logger.Warn("backend probe failed, breaker re-opened", "backend", cb.name)
		return
	}

	cb.failStreak++
	if cb.failStreak >= cb.maxFailures {
		cb.state = StateOpen
		cb.logger.Warn("backend breaker opened",
			"backend", cb.name, "consecutive_failures", cb.failStreak)
	}
}

// State reports the breaker's mode. An open breaker whose cooldown has
// elapsed reports half-open; the transition itself happens on the next
// Execute.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && time.Since(cb.lastFailAt) >= cb.cooldown {
		return StateHalfOpen
	}
	return cb.state
}
