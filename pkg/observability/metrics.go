package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Request outcome labels.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// durationBuckets spans API lookups (1ms) through full-batch scoring
// runs (5min).
var durationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300}

// REDMetrics records request rate, errors and duration for the HTTP
// server and the MCP tools. A nil *REDMetrics records nothing.
type REDMetrics struct {
	requests metric.Int64Counter
	errors   metric.Int64Counter
	duration metric.Float64Histogram
	inflight metric.Int64UpDownCounter
}

// NewREDMetrics creates the RED instruments on mt.
func NewREDMetrics(mt metric.Meter) (*REDMetrics, error) {
	in := &instruments{meter: mt}

	red := &REDMetrics{
		requests: in.counter("fillspc.requests.total", "Requests handled, by op and status", "{request}"),
		errors:   in.counter("fillspc.errors.total", "Requests that failed, by op", "{error}"),
		duration: in.seconds("fillspc.request.duration.seconds", "Request latency"),
		inflight: in.upDownCounter("fillspc.inflight.requests", "Requests in progress", "{request}"),
	}

	err := in.err()
	if err != nil {
		return nil, err
	}

	return red, nil
}

// RecordRequest records one finished request.
func (red *REDMetrics) RecordRequest(ctx context.Context, op, status string, elapsed time.Duration) {
	if red == nil {
		return
	}

	opAttr := attribute.String("op", op)
	set := metric.WithAttributes(opAttr, attribute.String("status", status))

	red.requests.Add(ctx, 1, set)
	red.duration.Record(ctx, elapsed.Seconds(), set)

	if status == StatusError {
		red.errors.Add(ctx, 1, metric.WithAttributes(opAttr))
	}
}

// TrackInflight counts op as in progress until the returned func runs.
func (red *REDMetrics) TrackInflight(ctx context.Context, op string) func() {
	if red == nil {
		return func() {}
	}

	set := metric.WithAttributes(attribute.String("op", op))
	red.inflight.Add(ctx, 1, set)

	return func() { red.inflight.Add(ctx, -1, set) }
}
