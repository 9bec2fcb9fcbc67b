package commands

import "github.com/spf13/cobra"

// NewRootCommand assembles the fillspc command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "fillspc",
		Short: "PCA statistical process control for a filling line",
		Long: `fillspc fits a PCA model on in-control filling line data, derives
Hotelling T² and Q (SPE) control limits and flags out-of-control parts.

Commands:
  run       Fit, score and export in one step
  fit       Fit a model and its limits on a training set
  score     Score a new batch against a saved model
  report    Summarize an exported run
  render    Render an exported run as an HTML dashboard
  serve     Serve the dashboard and JSON API
  mcp       Start the MCP server on stdio`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	AddPersistentFlags(root)

	root.AddCommand(
		NewRunCommand(),
		NewFitCommand(),
		NewScoreCommand(),
		NewReportCommand(),
		NewRenderCommand(),
		NewServeCommand(),
		NewMCPCommand(),
		NewVersionCommand(),
	)

	return root
}
