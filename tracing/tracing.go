// Package tracing wraps the OpenTelemetry trace API in the span-per-call,
// span-per-sub-operation shape the liquidation orchestrator's dispatch
// model needs: one span for a LiquidatePosition call, one child span per
// dispatched LQ/SP/sell-wall frame, closed when that frame's reply is
// handled. Grounded on josephblackelite-nhbchain's observability/otel
// package, trimmed to the bare otel/otel-trace API surface (no OTLP
// exporter wiring: this repo has no collector endpoint to ship spans to,
// only the in-process span lifetimes the dispatch model itself needs).
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/sharehodl/cdpcore")

// StartSpan opens a span named after the operation it wraps. Callers end
// it with the returned trace.Span's End method once the operation (or,
// for a dispatch frame, its reply) resolves.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordOutcome annotates the span with the terminal state an operation
// resolved to (e.g. a DispatchFrame's Kind and whether it repaid in
// full), without treating it as an error unless the caller also calls
// span.RecordError.
func RecordOutcome(span trace.Span, status string) {
	span.SetAttributes(attribute.String("outcome", status))
}
