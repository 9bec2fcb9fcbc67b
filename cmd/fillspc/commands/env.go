// Package commands implements the fillspc subcommands.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/fillspc/pkg/config"
	"github.com/Sumatoshi-tech/fillspc/pkg/dataset"
	"github.com/Sumatoshi-tech/fillspc/pkg/observability"
	"github.com/Sumatoshi-tech/fillspc/pkg/pipeline"
	"github.com/Sumatoshi-tech/fillspc/pkg/version"
)

// Persistent flag names shared by every subcommand.
const (
	FlagConfig  = "config"
	FlagVerbose = "verbose"
	FlagQuiet   = "quiet"
)

// AddPersistentFlags registers --config, --verbose and --quiet on root.
func AddPersistentFlags(root *cobra.Command) {
	root.PersistentFlags().String(FlagConfig, "", "config file (default .fillspc.yaml in the working or home directory)")
	root.PersistentFlags().BoolP(FlagVerbose, "v", false, "verbose output")
	root.PersistentFlags().BoolP(FlagQuiet, "q", false, "suppress output")
}

// env is the per-invocation runtime: configuration, telemetry and the
// pipeline collaborators built from them.
type env struct {
	cfg        *config.Config
	providers  observability.Providers
	logger     *slog.Logger
	monitoring *observability.MonitoringMetrics
	quiet      bool
}

// setup loads the configuration and initializes observability for mode.
// Callers must defer close.
func setup(cmd *cobra.Command, mode observability.AppMode) (*env, error) {
	path, _ := cmd.Flags().GetString(FlagConfig)
	verbose, _ := cmd.Flags().GetBool(FlagVerbose)
	quiet, _ := cmd.Flags().GetBool(FlagQuiet)

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	switch {
	case verbose:
		cfg.Logging.Level = "debug"
	case quiet:
		cfg.Logging.Level = "error"
	}

	obsCfg := cfg.Observability(mode, version.Version)
	obsCfg.LogOutput = cmd.ErrOrStderr()

	if mode != observability.ModeServe {
		obsCfg.Prometheus = false
	}

	// stdout carries the MCP transport; logs stay structured on stderr.
	if mode == observability.ModeMCP {
		obsCfg.LogJSON = true
	}

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	monitoring, err := observability.NewMonitoringMetrics(providers.Meter)
	if err != nil {
		shutdownErr := providers.Shutdown(context.Background())
		if shutdownErr != nil {
			providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
		}

		return nil, fmt.Errorf("register monitoring metrics: %w", err)
	}

	return &env{
		cfg:        cfg,
		providers:  providers,
		logger:     providers.Logger,
		monitoring: monitoring,
		quiet:      quiet,
	}, nil
}

func (e *env) close() {
	err := e.providers.Shutdown(context.Background())
	if err != nil {
		e.logger.Warn("observability shutdown failed", "error", err)
	}
}

func (e *env) runner() *pipeline.Runner {
	return &pipeline.Runner{
		Logger:    e.logger,
		Tracer:    e.providers.Tracer,
		Metrics:   e.monitoring,
		Workers:   e.cfg.Monitoring.Workers,
		ChunkSize: e.cfg.Monitoring.ChunkSize,
	}
}

// loader builds the dataset loader from the declared schema and, when
// enabled, a content-hash cache reporting lookups to the run metrics.
func (e *env) loader() (*dataset.Loader, error) {
	schema, err := e.cfg.Schema()
	if err != nil {
		return nil, err
	}

	loader := &dataset.Loader{Schema: schema}

	if !e.cfg.Cache.Enabled {
		return loader, nil
	}

	maxBytes, err := e.cfg.Cache.MaxBytes()
	if err != nil {
		return nil, err
	}

	loader.Cache = dataset.NewCache(maxBytes)
	loader.OnCacheLookup = e.monitoring.RecordCacheLookup

	return loader, nil
}

// stdout returns the command output, discarded under --quiet.
func (e *env) stdout(cmd *cobra.Command) io.Writer {
	if e.quiet {
		return io.Discard
	}

	return cmd.OutOrStdout()
}

// contextOf returns the command context, which is nil outside Execute.
func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}

	return context.Background()
}
