package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricObservationsScored = "fillspc.observations.scored.total"
	metricAnomaliesTotal     = "fillspc.anomalies.total"
	metricRunDuration        = "fillspc.run.duration.seconds"
	metricLimitValue         = "fillspc.control.limit"
	metricCacheLookups       = "fillspc.dataset.cache.lookups.total"

	attrStatistic = "statistic"
	attrStage     = "stage"
	attrResult    = "result"
)

// MonitoringMetrics holds OTel instruments for scoring runs.
type MonitoringMetrics struct {
	observations metric.Int64Counter
	anomalies    metric.Int64Counter
	runDuration  metric.Float64Histogram
	limit        metric.Float64Gauge
	cacheLookups metric.Int64Counter
}

// RunStats summarises one scoring run, decoupled from pipeline types.
type RunStats struct {
	// Stage is "training" for in-sample scoring or "monitor" for new batches.
	Stage     string
	Scored    int
	T2Flags   int
	QFlags    int
	Anomalies int
	Duration  time.Duration
	T2Limit   float64
	QLimit    float64
}

// NewMonitoringMetrics creates monitoring instruments from the given meter.
func NewMonitoringMetrics(mt metric.Meter) (*MonitoringMetrics, error) {
	in := &instruments{meter: mt}

	mm := &MonitoringMetrics{
		observations: in.counter(metricObservationsScored, "Observations scored", "{observation}"),
		anomalies:    in.counter(metricAnomaliesTotal, "Observations flagged, by statistic", "{observation}"),
		runDuration:  in.seconds(metricRunDuration, "Scoring run duration"),
		limit:        in.gauge(metricLimitValue, "Current control limit, by statistic"),
		cacheLookups: in.counter(metricCacheLookups, "Dataset cache lookups, by result", "{lookup}"),
	}

	err := in.err()
	if err != nil {
		return nil, err
	}

	return mm, nil
}

// RecordRun records the outcome of a scoring run.
// Safe to call on a nil receiver (no-op).
func (mm *MonitoringMetrics) RecordRun(ctx context.Context, stats RunStats) {
	if mm == nil {
		return
	}

	stage := attribute.String(attrStage, stats.Stage)

	mm.observations.Add(ctx, int64(stats.Scored), metric.WithAttributes(stage))
	mm.runDuration.Record(ctx, stats.Duration.Seconds(), metric.WithAttributes(stage))

	for statistic, count := range map[string]int{"T2": stats.T2Flags, "Q": stats.QFlags, "any": stats.Anomalies} {
		mm.anomalies.Add(ctx, int64(count), metric.WithAttributes(stage, attribute.String(attrStatistic, statistic)))
	}

	mm.limit.Record(ctx, stats.T2Limit, metric.WithAttributes(attribute.String(attrStatistic, "T2")))
	mm.limit.Record(ctx, stats.QLimit, metric.WithAttributes(attribute.String(attrStatistic, "Q")))
}

// RecordCacheLookup records a dataset cache hit or miss.
// Safe to call on a nil receiver (no-op).
func (mm *MonitoringMetrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if mm == nil {
		return
	}

	result := "miss"
	if hit {
		result = "hit"
	}

	mm.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}
