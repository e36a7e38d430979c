package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every backend in a [FallbackGroup] failed or
// had an open breaker.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures a [FallbackGroup]: every backend added to the
// group gets its own breaker built from CircuitBreaker.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// backend pairs one provider instance with its dedicated breaker.
type backend[T any] struct {
	name    string
	impl    T
	breaker *CircuitBreaker
}

// FallbackGroup holds a primary backend and its fallbacks in preference
// order. A call walks the chain until a backend with a closed (or probing)
// breaker serves it.
type FallbackGroup[T any] struct {
	chain  []backend[T]
	cfg    FallbackConfig
	logger *slog.Logger
}

// NewFallbackGroup creates a group with primary as the preferred backend.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	g := &FallbackGroup[T]{cfg: cfg, logger: cfg.Logger}
	g.add(primaryName, primary)
	return g
}

// AddFallback appends a backend tried after everything already registered.
func (g *FallbackGroup[T]) AddFallback(name string, fallback T) {
	g.add(name, fallback)
}

func (g *FallbackGroup[T]) add(name string, impl T) {
	cbCfg := g.cfg.CircuitBreaker
	cbCfg.Name = name
	cbCfg.Logger = g.cfg.Logger
	g.chain = append(g.chain, backend[T]{
		name:    name,
		impl:    impl,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Attempt walks the group's chain calling fn on each admitted backend until
// one succeeds. Open-breaker backends are skipped without being called.
// When the whole chain fails the last error is wrapped in [ErrAllFailed].
//
// A package-level function because Go methods cannot introduce the result
// type parameter.
func Attempt[T, R any](g *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range g.chain {
		b := &g.chain[i]
		var result R
		err := b.breaker.Execute(func() error {
			var callErr error
			result, callErr = fn(b.impl)
			return callErr
		})
		if err == nil {
			if i > 0 {
				g.logger.Info("served by fallback backend", "backend", b.name)
			}
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			g.logger.Debug("skipping backend, breaker open", "backend", b.name)
		} else {
			g.logger.Warn("backend failed, trying next", "backend", b.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
