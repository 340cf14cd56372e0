package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// tracerName identifies spans emitted by this module in any configured
// OpenTelemetry exporter.
const tracerName = "github.com/bvbrc/workflow-conductor"

// NewNoopProvider returns a TracerProvider that creates spans but exports
// them nowhere; used when no OTLP endpoint is configured. Callers that do
// configure an exporter construct their own trace.NewTracerProvider and
// call otel.SetTracerProvider before starting the Executor.
func NewNoopProvider() *trace.TracerProvider {
	return trace.NewTracerProvider()
}

// StartSpan starts a span under this module's tracer, used to wrap outbound
// Scheduler Gateway RPCs and State Store calls so their latency shows up
// alongside the correlation id already carried on ctx.
func StartSpan(ctx context.Context, name string) (context.Context, oteltrace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, name)
}
