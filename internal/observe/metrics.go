// Package observe provides application-wide observability primitives for
// TugaTalk: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all TugaTalk metrics.
const meterName = "github.com/tugatalk/tugatalk"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TranscriptionDuration tracks speech-to-text transcription latency.
	TranscriptionDuration metric.Float64Histogram

	// AgentDuration tracks conversation-agent inference latency.
	AgentDuration metric.Float64Histogram

	// SynthesisDuration tracks text-to-speech synthesis latency.
	SynthesisDuration metric.Float64Histogram

	// TurnLatency tracks the learner-perceived round trip: end of speech
	// to start of playback.
	TurnLatency metric.Float64Histogram

	// --- Counters ---

	// TurnOutcomes counts completed conversation turns. Use with attribute:
	//   attribute.String("outcome", ...)
	TurnOutcomes metric.Int64Counter

	// StageErrors counts per-turn stage failures. Use with attribute:
	//   attribute.String("stage", ...)
	StageErrors metric.Int64Counter

	// VADEvents counts speech boundary events. Use with attribute:
	//   attribute.String("event", ...)
	VADEvents metric.Int64Counter

	// DroppedFrames counts capture frames discarded because the detection
	// worker fell behind.
	DroppedFrames metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live tutoring sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranscriptionDuration, err = m.Float64Histogram("tugatalk.transcription.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AgentDuration, err = m.Float64Histogram("tugatalk.agent.duration",
		metric.WithDescription("Latency of conversation-agent inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("tugatalk.synthesis.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnLatency, err = m.Float64Histogram("tugatalk.turn.latency",
		metric.WithDescription("End of learner speech to start of tutor playback."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.TurnOutcomes, err = m.Int64Counter("tugatalk.turn.outcomes",
		metric.WithDescription("Total conversation turns by terminal outcome."),
	); err != nil {
		return nil, err
	}
	if met.StageErrors, err = m.Int64Counter("tugatalk.stage.errors",
		metric.WithDescription("Total per-turn stage failures by pipeline stage."),
	); err != nil {
		return nil, err
	}
	if met.VADEvents, err = m.Int64Counter("tugatalk.vad.events",
		metric.WithDescription("Total speech boundary events by event type."),
	); err != nil {
		return nil, err
	}
	if met.DroppedFrames, err = m.Int64Counter("tugatalk.frames.dropped",
		metric.WithDescription("Capture frames dropped because detection fell behind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("tugatalk.active_sessions",
		metric.WithDescription("Number of live tutoring sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("tugatalk.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTurnOutcome records a terminal turn outcome.
func (m *Metrics) RecordTurnOutcome(ctx context.Context, outcome string) {
	m.TurnOutcomes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordStageError records a per-turn stage failure.
func (m *Metrics) RecordStageError(ctx context.Context, stage string) {
	m.StageErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordVADEvent records a speech boundary event.
func (m *Metrics) RecordVADEvent(ctx context.Context, event string) {
	m.VADEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("event", event)),
	)
}
