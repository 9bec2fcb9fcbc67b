package observability

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// recorder remembers the first status written through it.
type recorder struct {
	http.ResponseWriter

	status int
}

func (r *recorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}

	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(buf []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}

	return r.ResponseWriter.Write(buf) //nolint:wrapcheck // passthrough writer.
}

func (r *recorder) code() int {
	if r.status == 0 {
		return http.StatusOK
	}

	return r.status
}

// HTTPMiddleware wraps next with a server span per request and, when red
// is non-nil, RED metrics. The operation name is the matched ServeMux
// pattern ("GET /api/results") so path parameters do not multiply series;
// unrouted handlers fall back to "METHOD /path". Only 5xx responses count
// as errors.
func HTTPMiddleware(tracer trace.Tracer, red *REDMetrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, hr *http.Request) {
		start := time.Now()
		fallback := hr.Method + " " + hr.URL.Path

		ctx := otel.GetTextMapPropagator().Extract(hr.Context(), propagation.HeaderCarrier(hr.Header))
		ctx, span := tracer.Start(ctx, fallback,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(hr.Method),
				attribute.String("http.target", hr.URL.Path),
			),
		)
		defer span.End()

		done := red.TrackInflight(ctx, hr.Method)
		defer done()

		rec := &recorder{ResponseWriter: rw}
		req := hr.WithContext(ctx)
		next.ServeHTTP(rec, req)

		op := fallback
		if req.Pattern != "" {
			op = req.Pattern
			span.SetName(op)
			span.SetAttributes(semconv.HTTPRoute(req.Pattern))
		}

		code := rec.code()
		span.SetAttributes(semconv.HTTPResponseStatusCode(code))

		status := StatusOK
		if code >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(code))

			status = StatusError
		}

		red.RecordRequest(ctx, op, status, time.Since(start))
	})
}
