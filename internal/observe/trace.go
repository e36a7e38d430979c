package observe

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope for all spans this server emits.
const tracerName = "github.com/tugatalk/tugatalk"

// Tracer returns the server's [trace.Tracer] from the globally registered
// provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan opens a span on the server's tracer. Callers own span.End.
// The HTTP middleware spans each request; the orchestrator spans each
// conversation turn.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID is the trace ID of the active span, or empty when there is
// none. It doubles as the request correlation identifier in logs and in the
// X-Correlation-ID response header.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
