// Package mcp serves fillspc monitoring as Model Context Protocol tools,
// over stdio for agents or any other SDK transport.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/fillspc/pkg/dataset"
	"github.com/Sumatoshi-tech/fillspc/pkg/observability"
	"github.com/Sumatoshi-tech/fillspc/pkg/pipeline"
	"github.com/Sumatoshi-tech/fillspc/pkg/version"
)

// ServerDeps are the server's collaborators. Every field is optional.
type ServerDeps struct {
	Logger  *slog.Logger
	Metrics *observability.REDMetrics
	Runner  *pipeline.Runner

	// Tracer opens one span per tool call. Nil disables tool spans.
	Tracer trace.Tracer

	// Loader reads CSV inputs. Nil infers every schema from the header.
	Loader *dataset.Loader

	// Defaults seed each spc_monitor call; the zero value means
	// pipeline.DefaultConfig.
	Defaults pipeline.Config
}

// Server is an MCP server with the fillspc tools registered.
type Server struct {
	inner    *mcpsdk.Server
	tools    []string
	metrics  *observability.REDMetrics
	tracer   trace.Tracer
	runner   *pipeline.Runner
	loader   *dataset.Loader
	defaults pipeline.Config
}

// NewServer builds the server and registers spc_monitor and spc_summary.
func NewServer(deps ServerDeps) *Server {
	s := &Server{
		inner: mcpsdk.NewServer(
			&mcpsdk.Implementation{Name: "fillspc", Version: version.Version},
			&mcpsdk.ServerOptions{Logger: deps.Logger},
		),
		metrics:  deps.Metrics,
		tracer:   deps.Tracer,
		runner:   deps.Runner,
		loader:   deps.Loader,
		defaults: deps.Defaults,
	}

	if s.runner == nil {
		s.runner = &pipeline.Runner{Logger: deps.Logger}
	}

	if s.loader == nil {
		s.loader = &dataset.Loader{}
	}

	if s.defaults.Confidence == 0 {
		s.defaults = pipeline.DefaultConfig()
	}

	addTool(s, ToolNameMonitor, "Fit a PCA model on a training CSV of filling-line measurements, "+
		"derive T² and Q control limits and score a batch against them. "+
		"Returns KPIs, the limits and the out-of-control observations.", s.handleMonitor)
	addTool(s, ToolNameSummary, "Summarize an exported monitoring run (results.csv + limits.json). "+
		"Accepts part id, reject type and timestamp filters and returns KPIs and anomalies.", s.handleSummary)

	return s
}

// ListToolNames returns the registered tool names, sorted.
func (s *Server) ListToolNames() []string {
	return slices.Sorted(slices.Values(s.tools))
}

// Run serves on stdin/stdout until ctx ends or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.RunWithTransport(ctx, &mcpsdk.StdioTransport{})
}

// RunWithTransport serves on transport until ctx ends or the connection
// closes.
func (s *Server) RunWithTransport(ctx context.Context, transport mcpsdk.Transport) error {
	err := s.inner.Run(ctx, transport)
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

// addTool registers handler under name, instrumented with a server span
// and RED metrics labelled "mcp.<name>". A sampled call gets its trace id
// appended to the result content.
func addTool[In any](s *Server, name, description string, handler mcpsdk.ToolHandlerFor[In, ToolOutput]) {
	op := "mcp." + name

	instrumented := func(ctx context.Context, req *mcpsdk.CallToolRequest, in In) (*mcpsdk.CallToolResult, ToolOutput, error) {
		start := time.Now()

		done := s.metrics.TrackInflight(ctx, op)
		defer done()

		var span trace.Span
		if s.tracer != nil {
			ctx, span = s.tracer.Start(ctx, op,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attribute.String("mcp.tool", name)))
			defer span.End()
		}

		result, out, err := handler(ctx, req, in)
		failed := err != nil || (result != nil && result.IsError)

		if span != nil {
			if failed {
				span.SetAttributes(attribute.String("error.type", observability.ErrTypeInvalidInput))
			}

			if sc := span.SpanContext(); sc.IsSampled() && result != nil {
				result.Content = append(result.Content, &mcpsdk.TextContent{Text: "trace_id=" + sc.TraceID().String()})
			}
		}

		status := observability.StatusOK
		if failed {
			status = observability.StatusError
		}

		s.metrics.RecordRequest(ctx, op, status, time.Since(start))

		return result, out, err
	}

	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{Name: name, Description: description}, instrumented)
	s.tools = append(s.tools, name)
}
