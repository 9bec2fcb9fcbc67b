// Package server serves an exported monitoring run over HTTP: the scored
// observations, limits and KPIs as JSON, the HTML dashboard, and the
// health, readiness and Prometheus endpoints.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/fillspc/pkg/cache"
	"github.com/Sumatoshi-tech/fillspc/pkg/export"
	"github.com/Sumatoshi-tech/fillspc/pkg/metrics"
	"github.com/Sumatoshi-tech/fillspc/pkg/observability"
	"github.com/Sumatoshi-tech/fillspc/pkg/pipeline"
	"github.com/Sumatoshi-tech/fillspc/pkg/plotpage"
	"github.com/Sumatoshi-tech/fillspc/pkg/report"
)

// Routes.
const (
	RouteDashboard = "/"
	RouteResults   = "/api/results"
	RouteLimits    = "/api/limits"
	RouteKPIs      = "/api/kpis"
	RouteReload    = "/api/reload"
	RouteHealth    = "/healthz"
	RouteReady     = "/readyz"
	RouteMetrics   = "/metrics"
)

// Query parameters besides the filter ones.
const (
	ParamTheme = "theme"
	ParamLimit = "limit"
)

const (
	// dashboardCacheBytes bounds the rendered dashboard cache.
	dashboardCacheBytes = 32 << 20
	shutdownTimeout     = 10 * time.Second
)

// ErrNoResult is returned when the server has no run loaded.
var ErrNoResult = errors.New("no monitoring run loaded")

// Options configures a Server.
type Options struct {
	Logger *slog.Logger
	Tracer trace.Tracer
	RED    *observability.REDMetrics

	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	Version        string
	Theme          plotpage.Theme
	ExplorerRows   int

	// Dir is the run directory reloaded by POST /api/reload.
	Dir string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server holds one scored run shared by every request.
type Server struct {
	opts   Options
	logger *slog.Logger

	mu     sync.RWMutex
	result *pipeline.Result

	// generation counts reloads. Cached dashboards are keyed by it so a page
	// rendered from a replaced run is never served again.
	generation uint64

	dashboards *cache.LRU[string, []byte]
}

// served is the run one request works on.
type served struct {
	result     *pipeline.Result
	generation uint64
}

// New creates a server around result, which may be nil until Reload.
func New(result *pipeline.Result, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("fillspc")
	}

	return &Server{
		opts:   opts,
		logger: logger,
		result: result,
		dashboards: cache.NewLRU[string, []byte](dashboardCacheBytes, func(page []byte) int64 {
			return int64(len(page))
		}),
	}
}

// Load creates a server from an exported run directory.
func Load(dir string, opts Options) (*Server, error) {
	result, err := export.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", dir, err)
	}

	opts.Dir = dir

	return New(result, opts), nil
}

// Result returns the run currently served.
func (s *Server) Result() *pipeline.Result {
	return s.current().result
}

func (s *Server) current() served {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return served{result: s.result, generation: s.generation}
}

// Reload re-reads the run directory and swaps the served result.
func (s *Server) Reload(ctx context.Context) error {
	if s.opts.Dir == "" {
		return fmt.Errorf("%w: no run directory configured", ErrNoResult)
	}

	result, err := export.Load(s.opts.Dir)
	if err != nil {
		return fmt.Errorf("reload %s: %w", s.opts.Dir, err)
	}

	s.mu.Lock()
	s.result = result
	s.generation++
	s.mu.Unlock()

	s.dashboards.Clear()
	s.logger.InfoContext(ctx, "run reloaded", "dir", s.opts.Dir, "rows", len(result.Observations))

	return nil
}

// Handler returns the routed handler wrapped in tracing and RED metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+RouteResults, s.handleResults)
	mux.HandleFunc("GET "+RouteLimits, s.handleLimits)
	mux.HandleFunc("GET "+RouteKPIs, s.handleKPIs)
	mux.HandleFunc("POST "+RouteReload, s.handleReload)
	mux.HandleFunc("GET "+RouteDashboard+"{$}", s.handleDashboard)
	mux.Handle("GET "+RouteHealth, observability.HealthHandler(s.opts.Version))
	mux.Handle("GET "+RouteReady, observability.ReadyHandler(map[string]observability.ReadyCheck{
		"result": func(context.Context) error {
			if s.Result() == nil {
				return ErrNoResult
			}

			return nil
		},
	}))

	if s.opts.MetricsHandler != nil {
		mux.Handle("GET "+RouteMetrics, s.opts.MetricsHandler)
	}

	return observability.HTTPMiddleware(s.opts.Tracer, s.opts.RED, mux)
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig

	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is done.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)

	go func() {
		serveErr <- srv.Serve(listener)
	}()

	s.logger.InfoContext(ctx, "server listening", "addr", "http://"+listener.Addr().String())

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}

	s.logger.InfoContext(ctx, "server stopped")

	return nil
}

func (s *Server) handleResults(rw http.ResponseWriter, hr *http.Request) {
	run, filter, ok := s.prepare(rw, hr)
	if !ok {
		return
	}

	selected := filter.Apply(run.result.Observations)

	limit, err := parseLimit(hr.URL.Query().Get(ParamLimit))
	if err != nil {
		writeError(hr.Context(), rw, http.StatusBadRequest, err)

		return
	}

	total := len(selected)
	if limit > 0 && limit < total {
		selected = selected[:limit]
	}

	writeJSON(hr.Context(), rw, http.StatusOK, resultsBody{
		Total:        total,
		Components:   componentNames(run.result),
		Observations: selected,
	})
}

func (s *Server) handleLimits(rw http.ResponseWriter, hr *http.Request) {
	result := s.Result()
	if result == nil || result.Limits == nil {
		writeError(hr.Context(), rw, http.StatusServiceUnavailable, ErrNoResult)

		return
	}

	writeJSON(hr.Context(), rw, http.StatusOK, result.Limits)
}

func (s *Server) handleKPIs(rw http.ResponseWriter, hr *http.Request) {
	run, filter, ok := s.prepare(rw, hr)
	if !ok {
		return
	}

	summary, err := report.Summarize(run.result, filter)
	if err != nil {
		writeError(hr.Context(), rw, statusFor(err), err)

		return
	}

	writeJSON(hr.Context(), rw, http.StatusOK, kpiBody{
		KPIs:   summary.KPIs,
		Values: summary.KPIs.Values(),
		Filter: summary.Filter,
	})
}

func (s *Server) handleReload(rw http.ResponseWriter, hr *http.Request) {
	err := s.Reload(hr.Context())
	if err != nil {
		writeError(hr.Context(), rw, statusFor(err), err)

		return
	}

	writeJSON(hr.Context(), rw, http.StatusOK, map[string]int{"rows": len(s.Result().Observations)})
}

func (s *Server) handleDashboard(rw http.ResponseWriter, hr *http.Request) {
	run, filter, ok := s.prepare(rw, hr)
	if !ok {
		return
	}

	theme := s.opts.Theme
	if raw := hr.URL.Query().Get(ParamTheme); raw != "" {
		theme = plotpage.ParseTheme(raw)
	}

	key := dashboardKey(run.generation, theme, hr.URL.RawQuery)

	page, hit := s.dashboards.Get(key)
	if !hit {
		var buf bytes.Buffer

		err := report.RenderDashboard(&buf, run.result, filter, report.DashboardOptions{
			Theme:        theme,
			ExplorerRows: s.opts.ExplorerRows,
		})
		if err != nil {
			writeError(hr.Context(), rw, statusFor(err), err)

			return
		}

		page = buf.Bytes()
		s.dashboards.Put(key, page)
	}

	rw.Header().Set("Content-Type", "text/html; charset=utf-8")

	_, err := rw.Write(page)
	if err != nil {
		s.logger.WarnContext(hr.Context(), "write dashboard", "error", err)
	}
}

// prepare resolves the served run and the request filter, answering the
// error itself when either is unavailable.
func (s *Server) prepare(rw http.ResponseWriter, hr *http.Request) (served, report.Filter, bool) {
	run := s.current()
	if run.result == nil {
		writeError(hr.Context(), rw, http.StatusServiceUnavailable, ErrNoResult)

		return served{}, report.Filter{}, false
	}

	filter, err := report.FilterFromQuery(hr.URL.Query())
	if err != nil {
		writeError(hr.Context(), rw, http.StatusBadRequest, err)

		return served{}, report.Filter{}, false
	}

	return run, filter, true
}

func dashboardKey(generation uint64, theme plotpage.Theme, query string) string {
	return strconv.FormatUint(generation, 10) + "/" + string(theme) + "?" + query
}

type resultsBody struct {
	Total        int                          `json:"total"`
	Components   []string                     `json:"components"`
	Observations []pipeline.ScoredObservation `json:"observations"`
}

type kpiBody struct {
	KPIs   report.KPIs     `json:"kpis"`
	Values []metrics.Value `json:"values"`
	Filter report.Filter   `json:"filter"`
}

type errorBody struct {
	Error string `json:"error"`
}

func componentNames(result *pipeline.Result) []string {
	if result.Model != nil {
		return result.Model.ComponentNames()
	}

	names := make([]string, result.Limits.Components)
	for i := range names {
		names[i] = "PC" + strconv.Itoa(i+1)
	}

	return names
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("%w: %s=%q", report.ErrInvalidFilter, ParamLimit, raw)
	}

	return limit, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, report.ErrInvalidFilter):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoResult), errors.Is(err, export.ErrMissingLimits), errors.Is(err, export.ErrMissingResults):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(ctx context.Context, rw http.ResponseWriter, code int, value any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)

	err := json.NewEncoder(rw).Encode(value)
	if err != nil {
		slog.Default().ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}

func writeError(ctx context.Context, rw http.ResponseWriter, code int, err error) {
	writeJSON(ctx, rw, code, errorBody{Error: err.Error()})
}
