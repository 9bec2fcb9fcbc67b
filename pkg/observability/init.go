package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

const (
	instrumentationName = "fillspc"

	envSampler    = "OTEL_TRACES_SAMPLER"
	envSamplerArg = "OTEL_TRACES_SAMPLER_ARG"
	envHeaders    = "OTEL_EXPORTER_OTLP_HEADERS"
)

// Standard OTEL_TRACES_SAMPLER values. Unknown names fall back to
// parent-based always-on.
var envSamplers = map[string]func(ratio float64) sdktrace.Sampler{
	"always_on":  func(float64) sdktrace.Sampler { return sdktrace.AlwaysSample() },
	"always_off": func(float64) sdktrace.Sampler { return sdktrace.NeverSample() },
	"traceidratio": func(r float64) sdktrace.Sampler {
		return sdktrace.TraceIDRatioBased(r)
	},
	"parentbased_always_on": func(float64) sdktrace.Sampler {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	},
	"parentbased_always_off": func(float64) sdktrace.Sampler {
		return sdktrace.ParentBased(sdktrace.NeverSample())
	},
	"parentbased_traceidratio": func(r float64) sdktrace.Sampler {
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(r))
	},
}

// Providers holds the initialized observability providers.
type Providers struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger *slog.Logger

	// MetricsHandler serves the Prometheus scrape endpoint. Nil unless
	// Config.Prometheus is set.
	MetricsHandler http.Handler

	// Shutdown flushes pending telemetry. Safe to call more than once.
	Shutdown func(ctx context.Context) error
}

type shutdownFunc func(ctx context.Context) error

// collector is the OTLP gRPC destination shared by the trace and metric
// exporters.
type collector struct {
	endpoint string
	headers  map[string]string
	insecure bool
}

func collectorFor(cfg Config) (collector, bool) {
	if cfg.OTLPEndpoint == "" {
		return collector{}, false
	}

	headers := cfg.OTLPHeaders
	if len(headers) == 0 {
		headers = ParseOTLPHeaders(os.Getenv(envHeaders))
	}

	return collector{endpoint: cfg.OTLPEndpoint, headers: headers, insecure: cfg.OTLPInsecure}, true
}

func (c collector) traceExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(c.endpoint)}

	if c.insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	if c.headers != nil {
		opts = append(opts, otlptracegrpc.WithHeaders(c.headers))
	}

	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	return exp, nil
}

func (c collector) metricExporter(ctx context.Context) (sdkmetric.Exporter, error) {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(c.endpoint)}

	if c.insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	if c.headers != nil {
		opts = append(opts, otlpmetricgrpc.WithHeaders(c.headers))
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	return exp, nil
}

// Init installs the global tracer and meter providers and builds the
// logger. Without an OTLP endpoint tracing is a no-op; without OTLP and
// Prometheus metrics are too.
func Init(cfg Config) (Providers, error) {
	ctx := context.Background()

	res, err := buildResource(cfg)
	if err != nil {
		return Providers{}, err
	}

	target, exporting := collectorFor(cfg)

	var tp trace.TracerProvider = nooptrace.NewTracerProvider()

	shutdowns := make([]shutdownFunc, 0, 2)

	if exporting {
		sdkTP, err := newTracerProvider(ctx, cfg, target, res)
		if err != nil {
			return Providers{}, err
		}

		shutdowns = append(shutdowns, sdkTP.Shutdown)
		tp = sdkTP

		if !cfg.TraceVerbose {
			tp = NewFilteringTracerProvider(tp)
		}
	}

	mp, scrape, err := newMeterProvider(ctx, cfg, target, exporting, res)
	if err != nil {
		return Providers{}, errors.Join(fmt.Errorf("build meter provider: %w", err), runShutdowns(ctx, shutdowns))
	}

	if sdkMP, ok := mp.(*sdkmetric.MeterProvider); ok {
		shutdowns = append(shutdowns, sdkMP.Shutdown)
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	timeout := time.Duration(cfg.ShutdownTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = defaultShutdownTimeoutSec * time.Second
	}

	var (
		once   sync.Once
		result error
	)

	return Providers{
		Tracer:         tp.Tracer(instrumentationName),
		Meter:          mp.Meter(instrumentationName),
		Logger:         NewLogger(cfg),
		MetricsHandler: scrape,
		Shutdown: func(ctx context.Context) error {
			once.Do(func() {
				ctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()

				result = runShutdowns(ctx, shutdowns)
			})

			return result
		},
	}, nil
}

func runShutdowns(ctx context.Context, fns []shutdownFunc) error {
	var errs []error

	for _, fn := range fns {
		errs = append(errs, fn(ctx))
	}

	return errors.Join(errs...)
}

func buildResource(cfg Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}

	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}

	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}

	if cfg.Mode != "" {
		attrs = append(attrs, attribute.String("app.mode", string(cfg.Mode)))
	}

	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	return res, nil
}

func newTracerProvider(ctx context.Context, cfg Config, target collector, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exp, err := target.traceExporter(ctx)
	if err != nil {
		return nil, fmt.Errorf("build tracer provider: %w", err)
	}

	var dropped *slog.Logger
	if cfg.DebugTrace {
		dropped = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(NewAttributeFilter(sdktrace.NewBatchSpanProcessor(exp), dropped)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(selectSampler(cfg)),
	), nil
}

// selectSampler resolves, in order: DebugTrace, OTEL_TRACES_SAMPLER,
// Config.SampleRatio, parent-based always-on.
func selectSampler(cfg Config) sdktrace.Sampler {
	if cfg.DebugTrace {
		return sdktrace.AlwaysSample()
	}

	if name := os.Getenv(envSampler); name != "" {
		build, ok := envSamplers[name]
		if !ok {
			return sdktrace.ParentBased(sdktrace.AlwaysSample())
		}

		return build(parseRatio(os.Getenv(envSamplerArg)))
	}

	if cfg.SampleRatio > 0 {
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	}

	return sdktrace.ParentBased(sdktrace.AlwaysSample())
}

func newMeterProvider(
	ctx context.Context, cfg Config, target collector, exporting bool, res *resource.Resource,
) (metric.MeterProvider, http.Handler, error) {
	var (
		readers []sdkmetric.Reader
		scrape  http.Handler
	)

	if cfg.Prometheus {
		reader, handler, err := newPrometheusReader()
		if err != nil {
			return nil, nil, err
		}

		readers = append(readers, reader)
		scrape = handler
	}

	if exporting {
		exp, err := target.metricExporter(ctx)
		if err != nil {
			return nil, nil, err
		}

		readers = append(readers, sdkmetric.NewPeriodicReader(exp))
	}

	if len(readers) == 0 {
		return noopmetric.NewMeterProvider(), nil, nil
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	return sdkmetric.NewMeterProvider(opts...), scrape, nil
}

// ParseOTLPHeaders parses the "k1=v1,k2=v2" form of
// OTEL_EXPORTER_OTLP_HEADERS. Pairs without '=' are skipped; nil when
// nothing parses.
func ParseOTLPHeaders(raw string) map[string]string {
	var headers map[string]string

	for pair := range strings.SplitSeq(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}

		if headers == nil {
			headers = make(map[string]string)
		}

		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	return headers
}

// parseRatio reads OTEL_TRACES_SAMPLER_ARG; missing or malformed means 1.
func parseRatio(s string) float64 {
	ratio, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 1
	}

	return ratio
}
