package pipeline_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gonum.org/v1/gonum/mat"

	"github.com/Sumatoshi-tech/fillspc/pkg/dataset"
	"github.com/Sumatoshi-tech/fillspc/pkg/observability"
	"github.com/Sumatoshi-tech/fillspc/pkg/pca"
	"github.com/Sumatoshi-tech/fillspc/pkg/pca/pcatest"
	"github.com/Sumatoshi-tech/fillspc/pkg/pipeline"
	"github.com/Sumatoshi-tech/fillspc/pkg/spc"
)

func quietRunner() *pipeline.Runner {
	return &pipeline.Runner{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func lineTable(seed uint64, n int) *dataset.Table {
	return dataset.FromMatrix(pcatest.FillingLine(seed, n), pcatest.FillingLineNames())
}

func TestRun_SelfScoring(t *testing.T) {
	t.Parallel()

	training := lineTable(1, 200)

	result, err := quietRunner().Run(context.Background(), training, training, pipeline.DefaultConfig())
	require.NoError(t, err)

	require.Len(t, result.Observations, 200)
	assert.Equal(t, 2, result.Model.Components())
	assert.InDelta(t, 0.95, result.Limits.Confidence, 1e-12)
	assert.Equal(t, training.Schema, result.Schema)

	direct, err := result.Model.Score(training.Matrix)
	require.NoError(t, err)

	for i, obs := range result.Observations {
		assert.Equal(t, i, obs.Row)
		assert.Len(t, obs.Scores, 2)
		assert.InDelta(t, direct.T2[i], obs.T2, 1e-9)
		assert.InDelta(t, direct.Q[i], obs.Q, 1e-9)
		assert.Equal(t, obs.T2 > result.Limits.T2, obs.T2Flag)
		assert.Equal(t, obs.Q > result.Limits.Q, obs.QFlag)
		assert.Equal(t, obs.T2Flag || obs.QFlag, obs.Anomaly)
	}

	counts := result.Counts()
	assert.Less(t, counts.Anomalies, 40, "in-control data should rarely be flagged")
}

func TestRun_DefaultFalseAlarmRate(t *testing.T) {
	t.Parallel()

	const runs = 40

	var total, inBand int

	for seed := range uint64(runs) {
		training := lineTable(500+seed, 100)

		result, err := quietRunner().Run(context.Background(), training, nil, pipeline.DefaultConfig())
		require.NoError(t, err)
		require.True(t, result.Limits.Joint)

		anomalies := result.Counts().Anomalies
		total += anomalies

		if anomalies >= 2 && anomalies <= 8 {
			inBand++
		}
	}

	// 100 in-control rows, k=2, c=0.95: about 5 anomalies per run, within ±3.
	assert.InDelta(t, 5, float64(total)/runs, 2)
	assert.GreaterOrEqual(t, inBand, runs*3/4)
}

func TestRun_NilScoringReusesTraining(t *testing.T) {
	t.Parallel()

	training := lineTable(2, 120)

	withNil, err := quietRunner().Run(context.Background(), training, nil, pipeline.DefaultConfig())
	require.NoError(t, err)

	withSelf, err := quietRunner().Run(context.Background(), training, training, pipeline.DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, withSelf.Observations, withNil.Observations)
}

func TestScoreTable_DeterministicAcrossWorkers(t *testing.T) {
	t.Parallel()

	training := lineTable(3, 150)
	batch := lineTable(4, 997)

	serial := &pipeline.Runner{Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), Workers: 1, ChunkSize: 1000}
	parallel := &pipeline.Runner{Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), Workers: 8, ChunkSize: 13}

	model, limits, err := serial.Fit(context.Background(), training, pipeline.DefaultConfig())
	require.NoError(t, err)

	want, err := serial.ScoreTable(context.Background(), model, limits, batch)
	require.NoError(t, err)

	got, err := parallel.ScoreTable(context.Background(), model, limits, batch)
	require.NoError(t, err)

	assert.Equal(t, want, got)
}

func TestRun_OutOfSampleShiftIsFlagged(t *testing.T) {
	t.Parallel()

	training := lineTable(5, 300)

	x := pcatest.FillingLine(6, 100)
	for i := 50; i < 100; i++ {
		// Fill volume drifts by ten standard deviations.
		x.Set(i, 0, x.At(i, 0)+20)
	}

	batch := dataset.FromMatrix(x, pcatest.FillingLineNames())

	result, err := quietRunner().Run(context.Background(), training, batch, pipeline.DefaultConfig())
	require.NoError(t, err)
	require.Len(t, result.Observations, 100)

	var before, after int

	for _, obs := range result.Observations {
		if !obs.Anomaly {
			continue
		}

		if obs.Row < 50 {
			before++
		} else {
			after++
		}
	}

	assert.LessOrEqual(t, before, 15)
	assert.GreaterOrEqual(t, after, 45)
}

func TestMonitor_ReusesSavedModelAndLimits(t *testing.T) {
	t.Parallel()

	runner := quietRunner()

	model, limits, err := runner.Fit(context.Background(), lineTable(7, 200), pipeline.DefaultConfig())
	require.NoError(t, err)

	first, err := runner.Monitor(context.Background(), model, limits, lineTable(8, 50))
	require.NoError(t, err)

	second, err := runner.Monitor(context.Background(), model, limits, lineTable(9, 50))
	require.NoError(t, err)

	assert.Same(t, limits, first.Limits)
	assert.Same(t, limits, second.Limits)
	assert.Same(t, model, second.Model)
}

func TestScoreTable_ReattachesAuxiliaryColumns(t *testing.T) {
	t.Parallel()

	runner := quietRunner()

	model, limits, err := runner.Fit(context.Background(), lineTable(10, 100), pipeline.DefaultConfig())
	require.NoError(t, err)

	batch := lineTable(11, 3)
	stamp := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	batch.Rows = []dataset.RowMeta{
		{PartID: "P-001", Timestamp: stamp},
		{PartID: "P-002", Timestamp: stamp.Add(time.Minute), RejectType: "underfill"},
		{PartID: "P-003", Timestamp: stamp.Add(2 * time.Minute)},
	}

	observations, err := runner.ScoreTable(context.Background(), model, limits, batch)
	require.NoError(t, err)
	require.Len(t, observations, 3)

	for i, obs := range observations {
		assert.Equal(t, batch.Rows[i].PartID, obs.PartID)
		assert.Equal(t, batch.Rows[i].Timestamp, obs.Timestamp)
		assert.Equal(t, batch.Rows[i].RejectType, obs.RejectType)
	}
}

func TestScoreTable_MeanObservationIsInControl(t *testing.T) {
	t.Parallel()

	runner := quietRunner()

	model, limits, err := runner.Fit(context.Background(), lineTable(12, 100), pipeline.DefaultConfig())
	require.NoError(t, err)

	batch := dataset.FromMatrix(mat.NewDense(1, 4, model.Mean()), pcatest.FillingLineNames())

	observations, err := runner.ScoreTable(context.Background(), model, limits, batch)
	require.NoError(t, err)
	require.Len(t, observations, 1)

	assert.InDelta(t, 0, observations[0].T2, 1e-9)
	assert.InDelta(t, 0, observations[0].Q, 1e-9)
	assert.False(t, observations[0].Anomaly)
}

func TestRun_AllComponentsWarnsAndZeroesQ(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer

	runner := &pipeline.Runner{Logger: slog.New(slog.NewTextHandler(&logs, nil))}

	cfg := pipeline.DefaultConfig()
	cfg.Components = 4

	result, err := runner.Run(context.Background(), lineTable(13, 100), nil, cfg)
	require.NoError(t, err)

	assert.True(t, result.Limits.HasWarning(spc.EmptyResidualWarning))
	assert.Zero(t, result.Limits.Q)
	assert.Zero(t, result.Counts().Q)

	for _, obs := range result.Observations {
		assert.Zero(t, obs.Q)
	}

	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), string(spc.EmptyResidualWarning))
}

func TestRun_VarianceThreshold(t *testing.T) {
	t.Parallel()

	cfg := pipeline.DefaultConfig()
	cfg.Components = 0
	cfg.VarianceThreshold = 0.999999

	result, err := quietRunner().Run(context.Background(), lineTable(14, 100), nil, cfg)
	require.NoError(t, err)

	assert.Equal(t, 4, result.Model.Components())
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()

	training := lineTable(15, 100)

	noComponents := pipeline.DefaultConfig()
	noComponents.Components = 0

	badConfidence := pipeline.DefaultConfig()
	badConfidence.Confidence = 1

	tests := []struct {
		name     string
		training *dataset.Table
		cfg      pipeline.Config
		want     error
	}{
		{"nil training", nil, pipeline.DefaultConfig(), pca.ErrInsufficientData},
		{"components required", training, noComponents, pca.ErrComponentsRequired},
		{"confidence one", training, badConfidence, spc.ErrInvalidConfidence},
		{"single row", lineTable(16, 1), pipeline.DefaultConfig(), pca.ErrInsufficientData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := quietRunner().Run(context.Background(), tt.training, nil, tt.cfg)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestScoreTable_Errors(t *testing.T) {
	t.Parallel()

	runner := quietRunner()

	model, limits, err := runner.Fit(context.Background(), lineTable(17, 100), pipeline.DefaultConfig())
	require.NoError(t, err)

	batch := lineTable(18, 10)
	narrow := dataset.FromMatrix(mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6}), []string{"a", "b", "c"})
	renamed := dataset.FromMatrix(pcatest.FillingLine(19, 5), []string{"fill_volume", "nozzle_pressure", "speed", "temperature"})

	tests := []struct {
		name   string
		model  *pca.Model
		limits *spc.Limits
		table  *dataset.Table
		want   error
	}{
		{"nil model", nil, limits, batch, pca.ErrNoModel},
		{"nil limits", model, nil, batch, spc.ErrMissingLimits},
		{"nil table", model, limits, nil, pca.ErrInsufficientData},
		{"column count", model, limits, narrow, pca.ErrDimensionMismatch},
		{"variable names", model, limits, renamed, pipeline.ErrVariableMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := runner.ScoreTable(context.Background(), tt.model, tt.limits, tt.table)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestScoreTable_Canceled(t *testing.T) {
	t.Parallel()

	runner := &pipeline.Runner{Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), ChunkSize: 10}

	model, limits, err := runner.Fit(context.Background(), lineTable(20, 100), pipeline.DefaultConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = runner.ScoreTable(ctx, model, limits, lineTable(21, 500))
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunner_RecordsMetricsAndSpans(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := observability.NewMonitoringMetrics(mp.Meter("test"))
	require.NoError(t, err)

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	runner := &pipeline.Runner{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Tracer:    tp.Tracer("test"),
		Metrics:   metrics,
		Workers:   2,
		ChunkSize: 25,
	}

	_, err = runner.Run(context.Background(), lineTable(22, 100), nil, pipeline.DefaultConfig())
	require.NoError(t, err)

	names := map[string]int{}
	for _, span := range exporter.GetSpans() {
		names[span.Name]++
	}

	assert.Equal(t, 1, names[pipeline.SpanFit])
	assert.Equal(t, 4, names[observability.SpanScoreChunk])

	var rm metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(context.Background(), &rm))

	var scored int64

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "fillspc.observations.scored.total" {
				continue
			}

			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)

			for _, dp := range sum.DataPoints {
				scored += dp.Value
			}
		}
	}

	assert.Equal(t, int64(100), scored)
}
