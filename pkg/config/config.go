// Package config loads and validates fillspc configuration from defaults, an
// optional YAML file and FILLSPC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/fillspc/pkg/dataset"
	"github.com/Sumatoshi-tech/fillspc/pkg/observability"
	"github.com/Sumatoshi-tech/fillspc/pkg/pca"
	"github.com/Sumatoshi-tech/fillspc/pkg/pipeline"
	"github.com/Sumatoshi-tech/fillspc/pkg/spc"
)

// Sentinel validation errors.
var (
	ErrInvalidComponents  = errors.New("components must be non-negative")
	ErrInvalidThreshold   = errors.New("variance threshold must be in [0,1]")
	ErrInvalidScaling     = errors.New("scaling must be center or autoscale")
	ErrInvalidWorkers     = errors.New("workers must be non-negative")
	ErrInvalidChunkSize   = errors.New("chunk size must be positive")
	ErrInvalidCacheSize   = errors.New("invalid cache size")
	ErrInvalidPort        = errors.New("invalid server port")
	ErrInvalidLogLevel    = errors.New("invalid log level")
	ErrInvalidLogFormat   = errors.New("log format must be text or json")
	ErrInvalidSampleRatio = errors.New("sample ratio must be in [0,1]")
	ErrInvalidTheme       = errors.New("theme must be dark or light")
	ErrInvalidMaxRows     = errors.New("max rows must be non-negative")
)

const maxPort = 65535

// Config holds all fillspc configuration.
type Config struct {
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Dataset    DatasetConfig    `mapstructure:"dataset"`
	Output     OutputConfig     `mapstructure:"output"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// MonitoringConfig holds the model and limit settings.
type MonitoringConfig struct {
	Scaling           string  `mapstructure:"scaling"`
	T2Method          string  `mapstructure:"t2_method"`
	QMethod           string  `mapstructure:"q_method"`
	VarianceThreshold float64 `mapstructure:"variance_threshold"`
	Confidence        float64 `mapstructure:"confidence"`
	Components        int     `mapstructure:"components"`
	Workers           int     `mapstructure:"workers"`
	ChunkSize         int     `mapstructure:"chunk_size"`
	Joint             bool    `mapstructure:"joint"`
}

// DatasetConfig declares the input columns. SchemaFile, when set, takes
// precedence over the inline fields.
type DatasetConfig struct {
	SchemaFile      string   `mapstructure:"schema_file"`
	Variables       []string `mapstructure:"variables"`
	PartID          string   `mapstructure:"part_id"`
	Timestamp       string   `mapstructure:"timestamp"`
	RejectType      string   `mapstructure:"reject_type"`
	TimestampLayout string   `mapstructure:"timestamp_layout"`
}

// OutputConfig holds export and presentation settings.
type OutputConfig struct {
	Dir           string `mapstructure:"dir"`
	Format        string `mapstructure:"format"`
	Theme         string `mapstructure:"theme"`
	MaxRows       int    `mapstructure:"max_rows"`
	CompressModel bool   `mapstructure:"compress_model"`
}

// CacheConfig holds dataset cache settings.
type CacheConfig struct {
	MaxSize string `mapstructure:"max_size"`
	Enabled bool   `mapstructure:"enabled"`
}

// ServerConfig holds HTTP dashboard settings.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	Port         int           `mapstructure:"port"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Environment  string            `mapstructure:"environment"`
	OTLPEndpoint string            `mapstructure:"otlp_endpoint"`
	OTLPHeaders  map[string]string `mapstructure:"otlp_headers"`
	SampleRatio  float64           `mapstructure:"sample_ratio"`
	OTLPInsecure bool              `mapstructure:"otlp_insecure"`
	Prometheus   bool              `mapstructure:"prometheus"`
	DebugTrace   bool              `mapstructure:"debug_trace"`
	TraceVerbose bool              `mapstructure:"trace_verbose"`
}

// Validate checks every section.
func (c *Config) Validate() error {
	err := c.validateMonitoring()
	if err != nil {
		return err
	}

	err = c.validateOutput()
	if err != nil {
		return err
	}

	if c.Cache.Enabled {
		_, err = c.Cache.MaxBytes()
		if err != nil {
			return err
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > maxPort {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Server.Port)
	}

	_, err = c.Logging.SlogLevel()
	if err != nil {
		return err
	}

	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Logging.Format)
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: %g", ErrInvalidSampleRatio, c.Telemetry.SampleRatio)
	}

	return nil
}

func (c *Config) validateMonitoring() error {
	m := c.Monitoring

	switch {
	case m.Components < 0:
		return fmt.Errorf("%w: %d", ErrInvalidComponents, m.Components)
	case m.VarianceThreshold < 0 || m.VarianceThreshold > 1:
		return fmt.Errorf("%w: %g", ErrInvalidThreshold, m.VarianceThreshold)
	case m.Components == 0 && m.VarianceThreshold == 0:
		return pca.ErrComponentsRequired
	case m.Workers < 0:
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, m.Workers)
	case m.ChunkSize <= 0:
		return fmt.Errorf("%w: %d", ErrInvalidChunkSize, m.ChunkSize)
	}

	switch pca.Scaling(m.Scaling) {
	case pca.ScalingCenter, pca.ScalingAutoscale:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidScaling, m.Scaling)
	}

	err := spc.ValidateConfidence(m.Confidence)
	if err != nil {
		return err
	}

	_, err = c.LimitOptions()

	return err
}

func (c *Config) validateOutput() error {
	if c.Output.Theme != "dark" && c.Output.Theme != "light" {
		return fmt.Errorf("%w: %q", ErrInvalidTheme, c.Output.Theme)
	}

	if c.Output.MaxRows < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxRows, c.Output.MaxRows)
	}

	return nil
}

// LimitOptions parses the limit method settings.
func (c *Config) LimitOptions() (spc.LimitOptions, error) {
	t2, err := spc.ParseT2Method(c.Monitoring.T2Method)
	if err != nil {
		return spc.LimitOptions{}, err
	}

	q, err := spc.ParseQMethod(c.Monitoring.QMethod)
	if err != nil {
		return spc.LimitOptions{}, err
	}

	return spc.LimitOptions{T2Method: t2, QMethod: q, Joint: c.Monitoring.Joint}, nil
}

// PipelineConfig converts the monitoring section into a pipeline config.
// An explicit component count wins over the variance threshold.
func (c *Config) PipelineConfig() (pipeline.Config, error) {
	limits, err := c.LimitOptions()
	if err != nil {
		return pipeline.Config{}, err
	}

	cfg := pipeline.Config{
		Components: c.Monitoring.Components,
		Scaling:    pca.Scaling(c.Monitoring.Scaling),
		Confidence: c.Monitoring.Confidence,
		Limits:     limits,
	}

	if c.Monitoring.VarianceThreshold > 0 && c.Monitoring.Components == 0 {
		cfg.VarianceThreshold = c.Monitoring.VarianceThreshold
	}

	return cfg, nil
}

// Schema returns the declared dataset schema. With no schema file and no
// declared variables the result has no variables; the loader then infers
// them from the CSV header.
func (c *Config) Schema() (dataset.Schema, error) {
	d := c.Dataset
	if d.SchemaFile != "" {
		schema, err := dataset.LoadSchema(d.SchemaFile)
		if err != nil {
			return dataset.Schema{}, err
		}

		return *schema, nil
	}

	schema := dataset.Schema{
		Variables:       d.Variables,
		PartID:          d.PartID,
		Timestamp:       d.Timestamp,
		RejectType:      d.RejectType,
		TimestampLayout: d.TimestampLayout,
	}

	if len(schema.Variables) == 0 {
		return schema, nil
	}

	return schema, schema.Validate()
}

// MaxBytes parses MaxSize ("64MB", "1 GiB").
func (c CacheConfig) MaxBytes() (int64, error) {
	n, err := humanize.ParseBytes(c.MaxSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidCacheSize, c.MaxSize, err)
	}

	if n == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCacheSize, c.MaxSize)
	}

	return int64(n), nil //nolint:gosec // sizes beyond MaxInt64 are not configurable.
}

// SlogLevel parses Level.
func (c LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level

	err := level.UnmarshalText([]byte(c.Level))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Level)
	}

	return level, nil
}

// Observability builds the observability config for mode.
func (c *Config) Observability(mode observability.AppMode, version string) observability.Config {
	cfg := observability.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.Environment = c.Telemetry.Environment
	cfg.Mode = mode
	cfg.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	cfg.OTLPHeaders = c.Telemetry.OTLPHeaders
	cfg.OTLPInsecure = c.Telemetry.OTLPInsecure
	cfg.Prometheus = c.Telemetry.Prometheus
	cfg.DebugTrace = c.Telemetry.DebugTrace
	cfg.SampleRatio = c.Telemetry.SampleRatio
	cfg.TraceVerbose = c.Telemetry.TraceVerbose
	cfg.LogJSON = c.Logging.Format == "json"

	if level, err := c.Logging.SlogLevel(); err == nil {
		cfg.LogLevel = level
	}

	return cfg
}
