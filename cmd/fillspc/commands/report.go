package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/fillspc/pkg/export"
	"github.com/Sumatoshi-tech/fillspc/pkg/observability"
	"github.com/Sumatoshi-tech/fillspc/pkg/plotpage"
	"github.com/Sumatoshi-tech/fillspc/pkg/report"
)

const (
	renderDirPerm   = 0o750
	defaultHTMLName = "dashboard.html"
)

// filterFlags select the observations a report or dashboard covers.
type filterFlags struct {
	partIDs       []string
	rejectTypes   []string
	from          string
	to            string
	anomaliesOnly bool
}

func (ff *filterFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringSliceVar(&ff.partIDs, "part-id", nil, "keep only these part ids")
	flags.StringSliceVar(&ff.rejectTypes, "reject-type", nil, "keep only these reject types")
	flags.StringVar(&ff.from, "from", "", "inclusive lower timestamp bound (RFC 3339 or YYYY-MM-DD)")
	flags.StringVar(&ff.to, "to", "", "inclusive upper timestamp bound (RFC 3339 or YYYY-MM-DD)")
	flags.BoolVar(&ff.anomaliesOnly, "anomalies", false, "keep only out-of-control observations")
}

func (ff *filterFlags) filter() (report.Filter, error) {
	f := report.Filter{
		PartIDs:       ff.partIDs,
		RejectTypes:   ff.rejectTypes,
		AnomaliesOnly: ff.anomaliesOnly,
	}

	var err error

	if ff.from != "" {
		f.From, err = report.ParseTime(ff.from, false)
		if err != nil {
			return report.Filter{}, err
		}
	}

	if ff.to != "" {
		f.To, err = report.ParseTime(ff.to, true)
		if err != nil {
			return report.Filter{}, err
		}
	}

	return f, f.Validate()
}

// NewReportCommand creates the report subcommand.
func NewReportCommand() *cobra.Command {
	var (
		ff      filterFlags
		format  string
		maxRows int
		noColor bool
	)

	cmd := &cobra.Command{
		Use:   "report <run-dir>",
		Short: "Summarize an exported run: KPIs, limits and anomalies",
		Long: `Summarize an exported run directory. The KPIs (total parts, total
anomalies, % out of control, most common reject) and the anomaly table
cover the observations selected by the filters.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, observability.ModeCLI)
			if err != nil {
				return err
			}
			defer e.close()

			if !cmd.Flags().Changed("format") {
				format = e.cfg.Output.Format
			}

			if !cmd.Flags().Changed("max-rows") {
				maxRows = e.cfg.Output.MaxRows
			}

			parsed, err := report.ParseFormat(format)
			if err != nil {
				return err
			}

			f, err := ff.filter()
			if err != nil {
				return err
			}

			result, err := export.Load(args[0])
			if err != nil {
				return err
			}

			summary, err := report.Summarize(result, f)
			if err != nil {
				return err
			}

			return report.WriteSummary(e.stdout(cmd), summary, parsed, report.TextOptions{MaxRows: maxRows, NoColor: noColor})
		},
	}

	ff.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format: text, json or yaml (default from config)")
	cmd.Flags().IntVar(&maxRows, "max-rows", 0, "anomaly rows in the text summary (negative = all)")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")

	return cmd
}

// NewRenderCommand creates the render subcommand: a standalone HTML dashboard.
func NewRenderCommand() *cobra.Command {
	var (
		ff           filterFlags
		output       string
		theme        string
		title        string
		explorerRows int
	)

	cmd := &cobra.Command{
		Use:   "render <run-dir>",
		Short: "Render an exported run as a standalone HTML dashboard",
		Long: `Render the control charts, score plot, explained variance, loadings and
data explorer of an exported run into one HTML file. The file defaults to
<run-dir>/dashboard.html.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, observability.ModeCLI)
			if err != nil {
				return err
			}
			defer e.close()

			if !cmd.Flags().Changed("theme") {
				theme = e.cfg.Output.Theme
			}

			if output == "" {
				output = filepath.Join(args[0], defaultHTMLName)
			}

			f, err := ff.filter()
			if err != nil {
				return err
			}

			result, err := export.Load(args[0])
			if err != nil {
				return err
			}

			err = os.MkdirAll(filepath.Dir(output), renderDirPerm)
			if err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}

			file, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}

			err = report.RenderDashboard(file, result, f, report.DashboardOptions{
				Title:        title,
				Theme:        plotpage.ParseTheme(theme),
				ExplorerRows: explorerRows,
			})

			closeErr := file.Close()
			if err != nil {
				return err
			}

			if closeErr != nil {
				return fmt.Errorf("close %s: %w", output, closeErr)
			}

			e.logger.InfoContext(contextOf(cmd), "dashboard rendered", "file", output)
			fmt.Fprintln(e.stdout(cmd), output)

			return nil
		},
	}

	ff.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "HTML file to write")
	cmd.Flags().StringVar(&theme, "theme", "", "dashboard theme: dark or light (default from config)")
	cmd.Flags().StringVar(&title, "title", "", "dashboard title")
	cmd.Flags().IntVar(&explorerRows, "explorer-rows", 0, "rows in the data explorer (0 = default, negative = all)")

	return cmd
}
