package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/Sumatoshi-tech/fillspc/pkg/dataset"
	"github.com/Sumatoshi-tech/fillspc/pkg/observability"
	"github.com/Sumatoshi-tech/fillspc/pkg/pca"
	"github.com/Sumatoshi-tech/fillspc/pkg/spc"
)

const tracerName = "fillspc"

// Span names of the pipeline stages.
const (
	SpanFit     = "fillspc.pipeline.fit"
	SpanMonitor = "fillspc.pipeline.monitor"
)

// Stage labels recorded on run metrics.
const (
	StageTraining = "training"
	StageMonitor  = "monitor"
)

// Runner executes the monitoring pipeline. The zero value is usable: it
// logs to slog.Default, traces with the global tracer and scores with
// GOMAXPROCS workers.
type Runner struct {
	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *observability.MonitoringMetrics
	// Workers bounds concurrent chunk scoring. Zero means GOMAXPROCS.
	Workers int
	// ChunkSize is the number of rows per scoring task. Zero means
	// DefaultChunkSize.
	ChunkSize int
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}

	return slog.Default()
}

func (r *Runner) tracer() trace.Tracer {
	if r.Tracer != nil {
		return r.Tracer
	}

	return otel.Tracer(tracerName)
}

func (r *Runner) workers() int {
	if r.Workers > 0 {
		return r.Workers
	}

	return runtime.GOMAXPROCS(0)
}

func (r *Runner) chunkSize() int {
	if r.ChunkSize > 0 {
		return r.ChunkSize
	}

	return DefaultChunkSize
}

// Run fits a model on training, derives limits from the training
// statistics and scores scoring against them. A nil scoring, or the
// training table itself, reuses the in-sample statistics.
func (r *Runner) Run(ctx context.Context, training, scoring *dataset.Table, cfg Config) (*Result, error) {
	model, limits, trainingScores, err := r.fit(ctx, training, cfg)
	if err != nil {
		return nil, err
	}

	if scoring == nil || scoring == training {
		start := time.Now()

		observations, err := classify(training, trainingScores, limits)
		if err != nil {
			return nil, err
		}

		result := &Result{Model: model, Limits: limits, Schema: training.Schema, Observations: observations}
		r.record(ctx, StageTraining, result, time.Since(start))

		return result, nil
	}

	return r.Monitor(ctx, model, limits, scoring)
}

// Fit fits a model on training and derives its control limits.
func (r *Runner) Fit(ctx context.Context, training *dataset.Table, cfg Config) (*pca.Model, *spc.Limits, error) {
	model, limits, _, err := r.fit(ctx, training, cfg)

	return model, limits, err
}

func (r *Runner) fit(ctx context.Context, training *dataset.Table, cfg Config) (*pca.Model, *spc.Limits, []pca.RowScore, error) {
	if training == nil || training.Matrix == nil {
		return nil, nil, nil, fmt.Errorf("%w: no training table", pca.ErrInsufficientData)
	}

	ctx, span := r.tracer().Start(ctx, SpanFit, trace.WithAttributes(
		attribute.Int("rows", training.Len()),
		attribute.Int("pca.variables", len(training.Schema.Variables)),
	))
	defer span.End()

	model, err := pca.Fit(training.Matrix, cfg.fitOptions(training.Schema.Variables))
	if err != nil {
		observability.RecordSpanError(span, err, observability.ErrTypeInvalidInput)

		return nil, nil, nil, fmt.Errorf("fit model: %w", err)
	}

	scores, err := r.scoreMatrix(ctx, model, training.Matrix)
	if err != nil {
		observability.RecordSpanError(span, err, errorType(err))

		return nil, nil, nil, fmt.Errorf("score training set: %w", err)
	}

	t2, q := statistics(scores)

	limits, err := spc.ComputeLimits(model, t2, q, cfg.Confidence, cfg.Limits)
	if err != nil {
		observability.RecordSpanError(span, err, observability.ErrTypeInvalidInput)

		return nil, nil, nil, fmt.Errorf("compute limits: %w", err)
	}

	span.SetAttributes(
		attribute.Int("pca.components", model.Components()),
		attribute.Float64("spc.t2_limit", limits.T2),
		attribute.Float64("spc.q_limit", limits.Q),
	)

	logger := r.logger()
	logger.InfoContext(ctx, "model fitted",
		"rows", training.Len(),
		"components", model.Components(),
		"explained_variance_ratio", cumulative(model.ExplainedVarianceRatio()),
		"T2_limit", limits.T2,
		"Q_limit", limits.Q)

	for _, w := range limits.Warnings {
		logger.WarnContext(ctx, w.Message(), "warning", string(w))
	}

	return model, limits, scores, nil
}

// Monitor scores a new batch against a saved model and limits.
func (r *Runner) Monitor(ctx context.Context, model *pca.Model, limits *spc.Limits, table *dataset.Table) (*Result, error) {
	start := time.Now()

	observations, err := r.ScoreTable(ctx, model, limits, table)
	if err != nil {
		return nil, err
	}

	result := &Result{Model: model, Limits: limits, Schema: table.Schema, Observations: observations}
	r.record(ctx, StageMonitor, result, time.Since(start))

	return result, nil
}

// ScoreTable scores and classifies every row of table. Rows are scored in
// chunks by a bounded worker pool; the output order and values do not
// depend on the worker count.
func (r *Runner) ScoreTable(
	ctx context.Context, model *pca.Model, limits *spc.Limits, table *dataset.Table,
) ([]ScoredObservation, error) {
	switch {
	case model == nil:
		return nil, pca.ErrNoModel
	case limits == nil:
		return nil, spc.ErrMissingLimits
	case table == nil || table.Matrix == nil:
		return nil, fmt.Errorf("%w: no table to score", pca.ErrInsufficientData)
	}

	ctx, span := r.tracer().Start(ctx, SpanMonitor, trace.WithAttributes(
		attribute.Int("rows", table.Len()),
		attribute.Int("workers", r.workers()),
	))
	defer span.End()

	err := checkVariables(model, table.Schema.Variables)
	if err != nil {
		observability.RecordSpanError(span, err, observability.ErrTypeInvalidInput)

		return nil, err
	}

	scores, err := r.scoreMatrix(ctx, model, table.Matrix)
	if err != nil {
		observability.RecordSpanError(span, err, errorType(err))

		return nil, fmt.Errorf("score batch: %w", err)
	}

	return classify(table, scores, limits)
}

// scoreMatrix fills one slot per row; each chunk writes a disjoint range.
func (r *Runner) scoreMatrix(ctx context.Context, model *pca.Model, x *mat.Dense) ([]pca.RowScore, error) {
	rows, cols := x.Dims()
	if cols != model.Variables() {
		return nil, fmt.Errorf("%w: %d columns, model has %d variables", pca.ErrDimensionMismatch, cols, model.Variables())
	}

	out := make([]pca.RowScore, rows)
	size := r.chunkSize()
	tracer := r.tracer()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers())

	for start := 0; start < rows; start += size {
		if gctx.Err() != nil {
			break
		}

		end := min(start+size, rows)

		g.Go(func() error {
			err := gctx.Err()
			if err != nil {
				return err
			}

			_, span := tracer.Start(gctx, observability.SpanScoreChunk, trace.WithAttributes(
				attribute.Int("chunk.offset", start),
				attribute.Int("chunk.size", end-start),
			))
			defer span.End()

			for i := start; i < end; i++ {
				rs, err := model.ScoreRow(x.RawRowView(i))
				if err != nil {
					return fmt.Errorf("row %d: %w", i, err)
				}

				out[i] = rs
			}

			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		return nil, err
	}

	// A cancellation between chunks leaves slots unscored without a task error.
	err = ctx.Err()
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (r *Runner) record(ctx context.Context, stage string, result *Result, elapsed time.Duration) {
	counts := result.Counts()

	r.Metrics.RecordRun(ctx, observability.RunStats{
		Stage:     stage,
		Scored:    len(result.Observations),
		T2Flags:   counts.T2,
		QFlags:    counts.Q,
		Anomalies: counts.Anomalies,
		Duration:  elapsed,
		T2Limit:   result.Limits.T2,
		QLimit:    result.Limits.Q,
	})

	r.logger().InfoContext(ctx, "batch scored",
		"stage", stage,
		"rows", len(result.Observations),
		"T2_flags", counts.T2,
		"Q_flags", counts.Q,
		"anomalies", counts.Anomalies,
		"duration", elapsed)
}

func classify(table *dataset.Table, scores []pca.RowScore, limits *spc.Limits) ([]ScoredObservation, error) {
	t2, q := statistics(scores)

	flags, err := spc.ClassifyAll(t2, q, limits)
	if err != nil {
		return nil, err
	}

	observations := make([]ScoredObservation, len(scores))

	for i, s := range scores {
		obs := ScoredObservation{
			Row:     i,
			Scores:  s.Scores,
			T2:      s.T2,
			Q:       s.Q,
			T2Flag:  flags[i].T2,
			QFlag:   flags[i].Q,
			Anomaly: flags[i].Anomaly,
		}

		if i < len(table.Rows) {
			meta := table.Rows[i]
			obs.PartID = meta.PartID
			obs.Timestamp = meta.Timestamp
			obs.RejectType = meta.RejectType
		}

		observations[i] = obs
	}

	return observations, nil
}

func checkVariables(model *pca.Model, variables []string) error {
	if len(variables) == 0 || len(variables) != model.Variables() {
		return nil
	}

	if expected := model.VariableNames(); !slices.Equal(expected, variables) {
		return fmt.Errorf("%w: model %v, batch %v", ErrVariableMismatch, expected, variables)
	}

	return nil
}

func statistics(scores []pca.RowScore) (t2, q []float64) {
	t2 = make([]float64, len(scores))
	q = make([]float64, len(scores))

	for i, s := range scores {
		t2[i] = s.T2
		q[i] = s.Q
	}

	return t2, q
}

func cumulative(ratios []float64) float64 {
	var sum float64
	for _, r := range ratios {
		sum += r
	}

	return sum
}

func errorType(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return observability.ErrTypeCanceled
	}

	if errors.Is(err, pca.ErrDimensionMismatch) || errors.Is(err, pca.ErrNonFinite) {
		return observability.ErrTypeInvalidInput
	}

	return observability.ErrTypeInternal
}
