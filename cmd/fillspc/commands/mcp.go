package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/fillspc/pkg/mcp"
	"github.com/Sumatoshi-tech/fillspc/pkg/observability"
)

// NewMCPCommand creates the MCP server command.
func NewMCPCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The server exposes monitoring as tools that AI agents can discover and
invoke:
  - spc_monitor: fit a model on a training CSV, score a batch and
    optionally export the run
  - spc_summary: KPIs, limits and anomalies of an exported run, with
    part id, reject type and time filters`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if debug {
				err := cmd.Flags().Set(FlagVerbose, "true")
				if err != nil {
					return err
				}
			}

			e, err := setup(cmd, observability.ModeMCP)
			if err != nil {
				return err
			}
			defer e.close()

			red, err := observability.NewREDMetrics(e.providers.Meter)
			if err != nil {
				return err
			}

			loader, err := e.loader()
			if err != nil {
				return err
			}

			defaults, err := e.cfg.PipelineConfig()
			if err != nil {
				return err
			}

			srv := mcp.NewServer(mcp.ServerDeps{
				Logger:   e.logger,
				Metrics:  red,
				Tracer:   e.providers.Tracer,
				Runner:   e.runner(),
				Loader:   loader,
				Defaults: defaults,
			})

			return srv.Run(contextOf(cmd))
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging to stderr")

	return cmd
}
