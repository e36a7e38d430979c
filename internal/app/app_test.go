package app

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tugatalk/tugatalk/internal/config"
	"github.com/tugatalk/tugatalk/internal/history"
	"github.com/tugatalk/tugatalk/internal/orchestrator"
)

func testConfig() *config.Config {
	cfg := stubConfig()
	cfg.Server = config.ServerConfig{ListenAddr: "127.0.0.1:0", LogLevel: config.LogInfo}
	cfg.Audio = config.AudioConfig{SampleRate: 16000, FrameSamples: 1536, QueueCapacity: 8}
	cfg.Tutor = config.TutorConfig{Language: "pt", Voice: "pt_PT-tugao-medium"}
	return cfg
}

func newTestApp(t *testing.T, opts ...Option) *App {
	t.Helper()

	providers, err := BuildProviders(testConfig(), stubRegistry(map[string]config.ProviderEntry{}))
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}

	opts = append([]Option{WithStore(history.NewMemStore(8))}, opts...)
	a, err := New(testConfig(), providers, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestNewValidatesInputs(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, &Providers{}); err == nil {
		t.Error("New with nil config: want error, got nil")
	}
	if _, err := New(testConfig(), nil); err == nil {
		t.Error("New with nil providers: want error, got nil")
	}
}

func TestHandlerServesOperationalEndpoints(t *testing.T) {
	t.Parallel()

	a := newTestApp(t)
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want %d", path, resp.StatusCode, http.StatusOK)
		}
	}
}

func TestBuildPipelineWiresSessionAndSource(t *testing.T) {
	t.Parallel()

	a := newTestApp(t)
	sink := make(chan []byte, 1)

	p, err := a.buildPipeline(sink, orchestrator.Callbacks{})
	if err != nil {
		t.Fatalf("buildPipeline: %v", err)
	}
	if p.Source == nil {
		t.Error("pipeline source is nil")
	}
	if p.Session == nil {
		t.Fatal("pipeline session is nil")
	}

	// Each connection must get its own state.
	p2, err := a.buildPipeline(make(chan []byte, 1), orchestrator.Callbacks{})
	if err != nil {
		t.Fatalf("second buildPipeline: %v", err)
	}
	if p2.Session == p.Session {
		t.Error("pipelines share a session")
	}
	if p2.Source == p.Source {
		t.Error("pipelines share a frame source")
	}
}

func TestApplyConfigSwapsSnapshotAndLevel(t *testing.T) {
	t.Parallel()

	level := new(slog.LevelVar)
	a := newTestApp(t, WithLevelVar(level))

	old := a.snapshot()
	next := testConfig()
	next.Server.LogLevel = config.LogDebug
	next.Transcript.Vocabulary = []string{"obrigado", "saudade"}

	a.applyConfig(old, next)

	if a.snapshot() != next {
		t.Error("config snapshot was not swapped")
	}
	if got := level.Level(); got != slog.LevelDebug {
		t.Errorf("level after reload = %v, want %v", got, slog.LevelDebug)
	}
}

func TestApplyConfigIgnoresNoopReload(t *testing.T) {
	t.Parallel()

	level := new(slog.LevelVar)
	a := newTestApp(t, WithLevelVar(level))

	old := a.snapshot()
	a.applyConfig(old, testConfig())

	if a.snapshot() != old {
		t.Error("unchanged reload must keep the existing snapshot")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	t.Parallel()

	a := newTestApp(t)
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
