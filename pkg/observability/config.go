// Package observability wires OpenTelemetry tracing and metrics, the
// Prometheus scrape endpoint and structured slog logging for every fillspc
// entry point.
package observability

import (
	"io"
	"log/slog"
)

// AppMode is how the binary was launched. It is stamped on the OTel
// resource and on every log record.
type AppMode string

// Launch modes.
const (
	ModeCLI   AppMode = "cli"
	ModeMCP   AppMode = "mcp"
	ModeServe AppMode = "serve"
)

const defaultShutdownTimeoutSec = 5

// Config selects exporters, sampling and log output.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Mode           AppMode

	// OTLPEndpoint is a gRPC collector address such as "localhost:4317".
	// Empty disables trace export and OTLP metrics.
	OTLPEndpoint string

	// OTLPHeaders default to OTEL_EXPORTER_OTLP_HEADERS when empty.
	OTLPHeaders  map[string]string
	OTLPInsecure bool

	// Prometheus adds an in-process reader served by Providers.MetricsHandler.
	Prometheus bool

	// DebugTrace samples every trace and logs attributes dropped by the
	// export policy.
	DebugTrace bool

	// SampleRatio applies when neither DebugTrace nor OTEL_TRACES_SAMPLER
	// is set. Zero samples every root.
	SampleRatio float64

	// TraceVerbose keeps the per-chunk scoring spans.
	TraceVerbose bool

	LogLevel  slog.Level
	LogJSON   bool
	LogOutput io.Writer // nil means stderr

	ShutdownTimeoutSec int
}

// DefaultConfig is a CLI config that exports nothing and logs text at info.
func DefaultConfig() Config {
	return Config{
		ServiceName:        "fillspc",
		Mode:               ModeCLI,
		LogLevel:           slog.LevelInfo,
		ShutdownTimeoutSec: defaultShutdownTimeoutSec,
	}
}
