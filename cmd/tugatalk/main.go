// Command tugatalk is the main entry point for the TugaTalk tutoring server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tugatalk/tugatalk/internal/app"
	"github.com/tugatalk/tugatalk/internal/config"
	"github.com/tugatalk/tugatalk/internal/health"
	"github.com/tugatalk/tugatalk/internal/history"
	"github.com/tugatalk/tugatalk/internal/observe"
)

const version = "0.3.0"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "tugatalk: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "tugatalk: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level var is shared with the app so config reloads adjust verbosity
	// without a restart.
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Slog())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("tugatalk starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "tugatalk",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	providers, err := app.BuildProviders(cfg, app.DefaultRegistry())
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	appOpts := []app.Option{
		app.WithLogger(logger),
		app.WithLevelVar(level),
		app.WithConfigWatcher(*configPath),
	}

	// ── Conversation archive ──────────────────────────────────────────────────
	if dsn := cfg.History.PostgresDSN; dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			slog.Error("failed to connect to postgres", "err", err)
			return 1
		}
		defer pool.Close()

		store := history.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			slog.Error("failed to migrate archive schema", "err", err)
			return 1
		}
		appOpts = append(appOpts,
			app.WithStore(store),
			app.WithHealthCheckers(health.Archive(pool)),
		)
		slog.Info("conversation archive enabled", "backend", "postgres")
	} else {
		slog.Info("conversation archive enabled", "backend", "memory",
			"capacity", cfg.History.MemoryCapacity)
	}

	// Readiness probes the synthesizer when it exposes a health endpoint.
	if prober, ok := providers.TTS.(health.Prober); ok {
		appOpts = append(appOpts, app.WithHealthCheckers(
			health.Provider(cfg.Providers.TTS.Name, prober),
		))
	}

	printStartupSummary(cfg)

	application, err := app.New(cfg, providers, appOpts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        TugaTalk — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Scorer", cfg.Providers.Scorer.Name, cfg.Providers.Scorer.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	if fb := cfg.Providers.STTFallback; fb != nil {
		printProvider("STT fallback", fb.Name, fb.Model)
	}
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	if fb := cfg.Providers.TTSFallback; fb != nil {
		printProvider("TTS fallback", fb.Name, fb.Model)
	}
	printProvider("Agent", cfg.Providers.Agent.Name, cfg.Providers.Agent.Model)
	printField("Language", cfg.Tutor.Language)
	printField("Voice", cfg.Tutor.Voice)
	if cfg.History.PostgresDSN != "" {
		printField("Archive", "postgres")
	} else {
		printField("Archive", "memory")
	}
	printField("Vocabulary", fmt.Sprintf("%d terms", len(cfg.Transcript.Vocabulary)))
	if cfg.Server.ListenAddr != "" {
		printField("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printField(kind, value)
}

func printField(kind, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}
