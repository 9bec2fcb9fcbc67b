package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/fillspc/pkg/observability"
)

func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var record map[string]any

	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	return record
}

func spanContext(t *testing.T) context.Context {
	t.Helper()

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)

	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})

	return trace.ContextWithSpanContext(context.Background(), sc)
}

func TestTracingHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		env    string
		mode   observability.AppMode
		log    func(l *slog.Logger, ctx context.Context)
		traced bool
		check  func(t *testing.T, record map[string]any)
	}{
		{
			name:   "injects span ids",
			env:    "line-3",
			mode:   observability.ModeCLI,
			traced: true,
			log:    func(l *slog.Logger, ctx context.Context) { l.InfoContext(ctx, "model fitted") },
			check: func(t *testing.T, record map[string]any) {
				t.Helper()

				assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", record["trace_id"])
				assert.Equal(t, "00f067aa0ba902b7", record["span_id"])
				assert.Equal(t, "line-3", record["env"])
				assert.Equal(t, "cli", record["mode"])
			},
		},
		{
			name: "no span no ids",
			mode: observability.ModeMCP,
			log:  func(l *slog.Logger, ctx context.Context) { l.InfoContext(ctx, "tool called") },
			check: func(t *testing.T, record map[string]any) {
				t.Helper()

				assert.NotContains(t, record, "trace_id")
				assert.NotContains(t, record, "env")
				assert.Equal(t, "mcp", record["mode"])
			},
		},
		{
			name: "service stays top level under groups",
			mode: observability.ModeCLI,
			log: func(l *slog.Logger, ctx context.Context) {
				l.WithGroup("pipeline").InfoContext(ctx, "batch scored", slog.String("stage", "monitor"))
			},
			check: func(t *testing.T, record map[string]any) {
				t.Helper()

				assert.Equal(t, "fillspc", record["service"])

				group, ok := record["pipeline"].(map[string]any)
				require.True(t, ok)
				assert.Equal(t, "monitor", group["stage"])
			},
		},
		{
			name: "with attrs",
			mode: observability.ModeServe,
			log: func(l *slog.Logger, ctx context.Context) {
				l.With(slog.Int("workers", 4)).InfoContext(ctx, "scoring")
			},
			check: func(t *testing.T, record map[string]any) {
				t.Helper()

				assert.InDelta(t, 4, record["workers"], 0)
				assert.Equal(t, "serve", record["mode"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer

			inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
			logger := slog.New(observability.NewTracingHandler(inner, "fillspc", tt.env, tt.mode))

			ctx := context.Background()
			if tt.traced {
				ctx = spanContext(t)
			}

			tt.log(logger, ctx)
			tt.check(t, decodeRecord(t, &buf))
		})
	}
}

func TestNewLogger_JSONOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	cfg := observability.DefaultConfig()
	cfg.LogJSON = true
	cfg.LogOutput = &buf
	cfg.Mode = observability.ModeServe

	observability.NewLogger(cfg).InfoContext(context.Background(), "limits computed", slog.Float64("spc.t2_limit", 9.3))

	record := decodeRecord(t, &buf)
	assert.Equal(t, "limits computed", record["msg"])
	assert.Equal(t, "serve", record["mode"])
	assert.InDelta(t, 9.3, record["spc.t2_limit"], 1e-9)
}

func TestNewLogger_RespectsLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	cfg := observability.DefaultConfig()
	cfg.LogOutput = &buf
	cfg.LogLevel = slog.LevelWarn

	logger := observability.NewLogger(cfg)
	logger.Info("dropped")
	assert.Empty(t, buf.String())

	logger.Warn("empty residual subspace")
	assert.Contains(t, buf.String(), "empty residual subspace")
}
