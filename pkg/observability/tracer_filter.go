package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// SpanScoreChunk is the per-chunk scoring span. Without
// Config.TraceVerbose it is never exported.
const SpanScoreChunk = "fillspc.pipeline.score_chunk"

// chunkFilter keeps trace volume per run rather than per row: hot-path
// span names get no-op spans, everything else goes to the real provider.
type chunkFilter struct {
	embedded.TracerProvider

	real trace.TracerProvider
	hot  map[string]struct{}
}

// NewFilteringTracerProvider wraps real so SpanScoreChunk spans are
// discarded at creation while stage spans are kept.
func NewFilteringTracerProvider(real trace.TracerProvider) trace.TracerProvider {
	return &chunkFilter{real: real, hot: map[string]struct{}{SpanScoreChunk: {}}}
}

// Tracer implements [trace.TracerProvider].
func (f *chunkFilter) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return &chunkFilterTracer{Tracer: f.real.Tracer(name, opts...), hot: f.hot}
}

type chunkFilterTracer struct {
	trace.Tracer

	hot map[string]struct{}
}

// Start returns a non-recording span for hot-path names.
func (t *chunkFilterTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if _, hot := t.hot[name]; hot {
		return nooptrace.NewTracerProvider().Tracer("").Start(ctx, name, opts...)
	}

	return t.Tracer.Start(ctx, name, opts...)
}
