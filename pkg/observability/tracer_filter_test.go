package observability_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/fillspc/pkg/observability"
)

func TestFilteringTracerProvider_SuppressesChunkSpans(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	sdkTP := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	t.Cleanup(func() { require.NoError(t, sdkTP.Shutdown(context.Background())) })

	tracer := observability.NewFilteringTracerProvider(sdkTP).Tracer("test")

	ctx, stage := tracer.Start(context.Background(), "fillspc.pipeline.monitor")

	for range 3 {
		_, chunk := tracer.Start(ctx, observability.SpanScoreChunk)
		assert.False(t, chunk.IsRecording())
		chunk.End()
	}

	stage.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "fillspc.pipeline.monitor", spans[0].Name)
}

func TestRecordSpanError(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	_, span := tp.Tracer("test").Start(context.Background(), "fit")
	observability.RecordSpanError(span, errors.New("rank deficient"), observability.ErrTypeInvalidInput)
	observability.RecordSpanError(span, nil, observability.ErrTypeInternal)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "rank deficient", spans[0].Status.Description)

	var errType string

	for _, kv := range spans[0].Attributes {
		if kv.Key == "error.type" {
			errType = kv.Value.AsString()
		}
	}

	assert.Equal(t, observability.ErrTypeInvalidInput, errType)
}
