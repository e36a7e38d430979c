// Package app wires configuration, providers, and the HTTP surface into a
// running tutoring service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tugatalk/tugatalk/internal/config"
	"github.com/tugatalk/tugatalk/internal/gateway"
	"github.com/tugatalk/tugatalk/internal/health"
	"github.com/tugatalk/tugatalk/internal/history"
	"github.com/tugatalk/tugatalk/internal/observe"
	"github.com/tugatalk/tugatalk/internal/orchestrator"
	"github.com/tugatalk/tugatalk/internal/playback"
	"github.com/tugatalk/tugatalk/internal/session"
	"github.com/tugatalk/tugatalk/internal/transcript"
	"github.com/tugatalk/tugatalk/internal/vad"
	"github.com/tugatalk/tugatalk/pkg/audio"
)

const shutdownTimeout = 10 * time.Second

// App owns the service lifecycle: it builds per-connection pipelines for the
// gateway, serves health and metrics endpoints, and applies config reloads.
type App struct {
	providers *Providers
	store     history.Store
	metrics   *observe.Metrics
	logger    *slog.Logger
	level     *slog.LevelVar
	checkers  []health.Checker

	mu  sync.RWMutex
	cfg *config.Config

	mux        *http.ServeMux
	httpSrv    *http.Server
	configPath string
	watcher    *config.Watcher

	closers  []func() error
	stopOnce sync.Once
	stopErr  error
}

// Option configures an [App].
type Option func(*App)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithStore sets the conversation archive. Defaults to an in-memory store
// sized by the history config.
func WithStore(s history.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics sets the metrics set recorded by pipelines and HTTP middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar sets the level var that config reloads adjust. Pass the var
// backing the process logger so "log_level" changes take effect live.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithHealthCheckers adds readiness checkers beyond the built-in archive
// check.
func WithHealthCheckers(checkers ...health.Checker) Option {
	return func(a *App) { a.checkers = append(a.checkers, checkers...) }
}

// WithConfigWatcher watches path and applies supported changes to running
// state. Unsupported changes require a restart and are only logged.
func WithConfigWatcher(path string) Option {
	return func(a *App) { a.configPath = path }
}

// New assembles an App from a validated config and a built provider set.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if providers == nil {
		return nil, errors.New("app: providers are required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.store == nil {
		a.store = history.NewMemStore(cfg.History.MemoryCapacity)
	}

	gw, err := gateway.New(a.buildPipeline,
		gateway.WithSampleRate(cfg.Audio.SampleRate),
		gateway.WithFrameSamples(cfg.Audio.FrameSamples),
		gateway.WithLogger(a.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("app: init gateway: %w", err)
	}

	a.mux = http.NewServeMux()
	gw.Register(a.mux)
	health.New(a.checkers).Register(a.mux)
	a.mux.Handle("GET /metrics", promhttp.Handler())

	a.httpSrv = &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      observe.Middleware(a.metrics)(a.mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // websocket sessions hold the connection open
		IdleTimeout:  2 * time.Minute,
	}

	return a, nil
}

// Handler returns the HTTP handler serving the websocket gateway, health,
// and metrics endpoints.
func (a *App) Handler() http.Handler {
	return a.httpSrv.Handler
}

// Run serves HTTP until ctx is cancelled or the listener fails, then shuts
// the app down.
func (a *App) Run(ctx context.Context) error {
	if a.configPath != "" {
		watcher, err := config.NewWatcher(a.configPath, a.applyConfig)
		if err != nil {
			return fmt.Errorf("app: start config watcher: %w", err)
		}
		a.watcher = watcher
		a.closers = append(a.closers, func() error {
			watcher.Stop()
			return nil
		})
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.snapshot().Server.TLS; tls != nil {
			a.logger.Info("serving https", "addr", a.httpSrv.Addr)
			err = a.httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			a.logger.Info("serving http", "addr", a.httpSrv.Addr)
			err = a.httpSrv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	case err, ok := <-errCh:
		if ok && err != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return errors.Join(fmt.Errorf("app: serve: %w", err), a.Shutdown(shutdownCtx))
		}
		return nil
	}
}

// Shutdown stops the HTTP server and runs registered closers in reverse
// order. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() {
		var errs []error
		if err := a.httpSrv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("app: shutdown http server: %w", err))
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		a.stopErr = errors.Join(errs...)
	})
	return a.stopErr
}

// snapshot returns the current config under the read lock.
func (a *App) snapshot() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// applyConfig is the watcher callback. Live-applicable changes take effect
// for new connections; the log level changes process-wide.
func (a *App) applyConfig(old, next *config.Config) {
	diff := config.Diff(old, next)
	if !diff.HasChanges() {
		return
	}

	a.mu.Lock()
	a.cfg = next
	a.mu.Unlock()

	if diff.LogLevelChanged && a.level != nil {
		a.level.Set(diff.NewLogLevel.Slog())
		a.logger.Info("log level changed", "level", diff.NewLogLevel)
	}
	if diff.VoiceChanged || diff.SpeakingRateChanged {
		a.logger.Info("tutor voice settings changed",
			"voice", next.Tutor.Voice, "speaking_rate", next.Tutor.SpeakingRate)
	}
	if diff.SystemPromptChanged || diff.MaxHistoryChanged {
		a.logger.Info("tutor agent settings changed; applies to new sessions")
	}
	if diff.VocabularyChanged {
		a.logger.Info("transcript vocabulary changed; applies to new sessions",
			"terms", len(next.Transcript.Vocabulary))
	}
}

// buildPipeline constructs the capture-to-playback pipeline for one gateway
// connection.
func (a *App) buildPipeline(sink chan<- []byte, cb orchestrator.Callbacks) (*gateway.Pipeline, error) {
	cfg := a.snapshot()

	sc, err := a.providers.NewScorer()
	if err != nil {
		return nil, fmt.Errorf("app: create scorer: %w", err)
	}
	detector, err := vad.New(sc, vad.Config{
		SampleRate:           cfg.Audio.SampleRate,
		FrameSamples:         cfg.Audio.FrameSamples,
		PositiveThreshold:    cfg.VAD.PositiveThreshold,
		NegativeThreshold:    cfg.VAD.NegativeThreshold,
		MinSpeechFrames:      cfg.VAD.MinSpeechFrames,
		RedemptionFrames:     cfg.VAD.RedemptionFrames,
		PreSpeechPadFrames:   cfg.VAD.PreSpeechPadFrames,
		MaxUtteranceDuration: time.Duration(cfg.VAD.MaxUtteranceSeconds) * time.Second,
		MaxScoreFailures:     cfg.VAD.MaxScoreFailures,
	})
	if err != nil {
		return nil, fmt.Errorf("app: create detector: %w", err)
	}

	responder, err := a.providers.NewAgent()
	if err != nil {
		return nil, fmt.Errorf("app: create agent: %w", err)
	}

	player := playback.NewSinkPlayer(sink, playback.WithLogger(a.logger))

	orchOpts := []orchestrator.Option{
		orchestrator.WithStore(a.store),
		orchestrator.WithMetrics(a.metrics),
		orchestrator.WithLogger(a.logger),
	}
	if len(cfg.Transcript.Vocabulary) > 0 {
		var correctorOpts []transcript.Option
		if cfg.Transcript.PhoneticThreshold > 0 {
			correctorOpts = append(correctorOpts, transcript.WithPhoneticThreshold(cfg.Transcript.PhoneticThreshold))
		}
		if cfg.Transcript.FuzzyThreshold > 0 {
			correctorOpts = append(correctorOpts, transcript.WithFuzzyThreshold(cfg.Transcript.FuzzyThreshold))
		}
		corrector := transcript.NewCorrector(cfg.Transcript.Vocabulary, correctorOpts...)
		orchOpts = append(orchOpts, orchestrator.WithCorrector(corrector))
	}

	orch, err := orchestrator.New(a.providers.STT, responder, a.providers.TTS, player,
		orchestrator.Config{
			TranscriptionTimeout: time.Duration(cfg.Timeouts.TranscriptionSeconds) * time.Second,
			AgentTimeout:         time.Duration(cfg.Timeouts.AgentSeconds) * time.Second,
			SynthesisTimeout:     time.Duration(cfg.Timeouts.SynthesisSeconds) * time.Second,
			Language:             cfg.Tutor.Language,
			Voice:                cfg.Tutor.Voice,
			SpeakingRate:         cfg.Tutor.SpeakingRate,
			SourceLabel:          "websocket",
		}, cb, orchOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: create orchestrator: %w", err)
	}

	source := audio.NewChannelSource(cfg.Audio.QueueCapacity)

	sess, err := session.New(source, detector, orch,
		session.WithQueueCapacity(cfg.Audio.QueueCapacity),
		session.WithMetrics(a.metrics),
		session.WithLogger(a.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("app: create session: %w", err)
	}

	return &gateway.Pipeline{Source: source, Session: sess}, nil
}
