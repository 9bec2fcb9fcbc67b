package observability_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/fillspc/pkg/observability"
)

func initProviders(t *testing.T, cfg observability.Config) observability.Providers {
	t.Helper()

	providers, err := observability.Init(cfg)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

	return providers
}

func TestInit_NoopByDefault(t *testing.T) {
	t.Parallel()

	providers := initProviders(t, observability.DefaultConfig())

	require.NotNil(t, providers.Tracer)
	require.NotNil(t, providers.Meter)
	require.NotNil(t, providers.Logger)
	assert.Nil(t, providers.MetricsHandler)

	_, span := providers.Tracer.Start(context.Background(), "fillspc.pipeline.fit")
	assert.False(t, span.SpanContext().IsValid(), "no-op tracer yields invalid span contexts")
	span.End()

	providers.Logger.InfoContext(context.Background(), "batch scored", "rows", 10)
}

func TestInit_ShutdownTwice(t *testing.T) {
	t.Parallel()

	providers, err := observability.Init(observability.DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, providers.Shutdown(context.Background()))
	require.NoError(t, providers.Shutdown(context.Background()))
}

func TestInit_PrometheusScrape(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()
	cfg.Mode = observability.ModeServe
	cfg.Prometheus = true

	providers := initProviders(t, cfg)
	require.NotNil(t, providers.MetricsHandler)

	mm, err := observability.NewMonitoringMetrics(providers.Meter)
	require.NoError(t, err)

	mm.RecordRun(context.Background(), observability.RunStats{
		Stage: "monitor", Scored: 40, Anomalies: 2, Duration: 5 * time.Millisecond, T2Limit: 6.2, QLimit: 0.8,
	})

	rec := httptest.NewRecorder()
	providers.MetricsHandler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "fillspc_observations_scored")
	assert.Contains(t, body, "fillspc_control_limit")
	assert.Contains(t, body, "go_goroutines")
}

func TestBuildResource(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()
	cfg.ServiceVersion = "0.3.0"
	cfg.Environment = "line-3"
	cfg.Mode = observability.ModeMCP

	res, err := observability.ProbeBuildResource(cfg)
	require.NoError(t, err)

	got := make(map[string]string)
	for _, kv := range res.Attributes() {
		got[string(kv.Key)] = kv.Value.Emit()
	}

	assert.Equal(t, "fillspc", got["service.name"])
	assert.Equal(t, "0.3.0", got["service.version"])
	assert.Equal(t, "line-3", got["deployment.environment"])
	assert.Equal(t, "mcp", got["app.mode"])
}

func TestParseOTLPHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  map[string]string
	}{
		{name: "empty", input: "", want: nil},
		{name: "single", input: "api-key=secret", want: map[string]string{"api-key": "secret"}},
		{name: "trimmed", input: " a = 1 , b = 2 ", want: map[string]string{"a": "1", "b": "2"}},
		{name: "skips bare keys", input: "a=1,junk", want: map[string]string{"a": "1"}},
		{name: "nothing parses", input: "junk", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, observability.ParseOTLPHeaders(tt.input))
		})
	}
}

// Sampler cases set process env and cannot run in parallel.
func TestSelectSampler(t *testing.T) {
	tests := []struct {
		name    string
		sampler string
		arg     string
		debug   bool
		ratio   float64
		sampled bool
	}{
		{name: "default", sampled: true},
		{name: "config ratio", ratio: 1, sampled: true},
		{name: "always_on", sampler: "always_on", sampled: true},
		{name: "always_off", sampler: "always_off"},
		{name: "traceidratio full", sampler: "traceidratio", arg: "1.0", sampled: true},
		{name: "traceidratio zero", sampler: "traceidratio", arg: "0"},
		{name: "malformed arg means full", sampler: "parentbased_traceidratio", arg: "lots", sampled: true},
		{name: "parentbased_always_on", sampler: "parentbased_always_on", sampled: true},
		{name: "parentbased_always_off drops roots", sampler: "parentbased_always_off"},
		{name: "unknown falls back", sampler: "sometimes", sampled: true},
		{name: "debug overrides env", sampler: "always_off", debug: true, sampled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OTEL_TRACES_SAMPLER", tt.sampler)
			t.Setenv("OTEL_TRACES_SAMPLER_ARG", tt.arg)

			cfg := observability.DefaultConfig()
			cfg.DebugTrace = tt.debug
			cfg.SampleRatio = tt.ratio

			assert.Equal(t, tt.sampled, observability.ProbeSamplerSpan(cfg))
		})
	}
}
