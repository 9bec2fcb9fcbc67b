package commands

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Sumatoshi-tech/fillspc/pkg/config"
	"github.com/Sumatoshi-tech/fillspc/pkg/dataset"
	"github.com/Sumatoshi-tech/fillspc/pkg/export"
	"github.com/Sumatoshi-tech/fillspc/pkg/observability"
	"github.com/Sumatoshi-tech/fillspc/pkg/pipeline"
	"github.com/Sumatoshi-tech/fillspc/pkg/report"
)

// scoredDirName is the default output directory of score, under the run
// directory.
const scoredDirName = "scored"

// ErrSameOutputDir is returned when score would overwrite the run it reads.
var ErrSameOutputDir = errors.New("score output must differ from the run directory")

// monitorFlags are the output overrides shared by run, fit and score. The
// model and limit flags are registered from pipeline.Options. Only flags set
// on the command line override the config.
type monitorFlags struct {
	outputDir string
	format    string
	workers   int
	maxRows   int
	compress  bool
	noColor   bool
}

func (mf *monitorFlags) register(cmd *cobra.Command, model bool) {
	flags := cmd.Flags()

	if model {
		for _, opt := range pipeline.Options() {
			registerOption(flags, opt)
		}

		flags.BoolVar(&mf.compress, "compress", false, "store the model as model.json.lz4")
	}

	flags.StringVarP(&mf.outputDir, "output", "o", "", "output directory (default from config)")
	flags.StringVarP(&mf.format, "format", "f", "", "summary format: text, json or yaml")
	flags.IntVar(&mf.workers, "workers", 0, "scoring workers (0 = GOMAXPROCS)")
	flags.IntVar(&mf.maxRows, "max-rows", 0, "anomaly rows in the text summary (negative = all)")
	flags.BoolVar(&mf.noColor, "no-color", false, "disable colored output")
}

// registerOption adds the typed flag of opt with its default.
func registerOption(flags *pflag.FlagSet, opt pipeline.Option) {
	switch opt.Type {
	case pipeline.BoolOption:
		v, _ := opt.Default.(bool)
		flags.BoolP(opt.Name, opt.Shorthand, v, opt.Description)
	case pipeline.IntOption:
		v, _ := opt.Default.(int)
		flags.IntP(opt.Name, opt.Shorthand, v, opt.Description)
	case pipeline.FloatOption:
		v, _ := opt.Default.(float64)
		flags.Float64P(opt.Name, opt.Shorthand, v, opt.Description)
	case pipeline.StringOption:
		v, _ := opt.Default.(string)
		flags.StringP(opt.Name, opt.Shorthand, v, opt.Description)
	case pipeline.StringsOption:
		v, _ := opt.Default.([]string)
		flags.StringSliceP(opt.Name, opt.Shorthand, v, opt.Description)
	}
}

// apply overrides cfg with the flags set on cmd and revalidates it.
func (mf *monitorFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	err := applyModelFlags(flags, cfg)
	if err != nil {
		return err
	}

	if flags.Changed("compress") {
		cfg.Output.CompressModel = mf.compress
	}

	if flags.Changed("output") {
		cfg.Output.Dir = mf.outputDir
	}

	if flags.Changed("format") {
		cfg.Output.Format = mf.format
	}

	if flags.Changed("workers") {
		cfg.Monitoring.Workers = mf.workers
	}

	if flags.Changed("max-rows") {
		cfg.Output.MaxRows = mf.maxRows
	}

	return cfg.Validate()
}

// applyModelFlags copies the changed pipeline.Options flags into cfg. Flags
// a command does not register are never changed.
func applyModelFlags(flags *pflag.FlagSet, cfg *config.Config) error {
	var errs []error

	if flags.Changed(pipeline.OptionVariables) {
		v, err := flags.GetStringSlice(pipeline.OptionVariables)
		errs = append(errs, err)
		cfg.Dataset.SchemaFile = ""
		cfg.Dataset.Variables = v
	}

	if flags.Changed(pipeline.OptionScaling) {
		v, err := flags.GetString(pipeline.OptionScaling)
		errs = append(errs, err)
		cfg.Monitoring.Scaling = v
	}

	if flags.Changed(pipeline.OptionT2Method) {
		v, err := flags.GetString(pipeline.OptionT2Method)
		errs = append(errs, err)
		cfg.Monitoring.T2Method = v
	}

	if flags.Changed(pipeline.OptionQMethod) {
		v, err := flags.GetString(pipeline.OptionQMethod)
		errs = append(errs, err)
		cfg.Monitoring.QMethod = v
	}

	if flags.Changed(pipeline.OptionComponents) {
		v, err := flags.GetInt(pipeline.OptionComponents)
		errs = append(errs, err)
		cfg.Monitoring.Components = v
	}

	if flags.Changed(pipeline.OptionVarianceThreshold) {
		v, err := flags.GetFloat64(pipeline.OptionVarianceThreshold)
		errs = append(errs, err)
		cfg.Monitoring.VarianceThreshold = v

		if !flags.Changed(pipeline.OptionComponents) {
			cfg.Monitoring.Components = 0
		}
	}

	if flags.Changed(pipeline.OptionConfidence) {
		v, err := flags.GetFloat64(pipeline.OptionConfidence)
		errs = append(errs, err)
		cfg.Monitoring.Confidence = v
	}

	if flags.Changed(pipeline.OptionJoint) {
		v, err := flags.GetBool(pipeline.OptionJoint)
		errs = append(errs, err)
		cfg.Monitoring.Joint = v
	}

	return errors.Join(errs...)
}

func (mf *monitorFlags) textOptions(cfg *config.Config) report.TextOptions {
	return report.TextOptions{MaxRows: cfg.Output.MaxRows, NoColor: mf.noColor}
}

// NewRunCommand creates the run subcommand: fit, score and export.
func NewRunCommand() *cobra.Command {
	var mf monitorFlags

	cmd := &cobra.Command{
		Use:   "run <training.csv> [batch.csv]",
		Short: "Fit a PCA model, score a batch and export the results",
		Long: `Fit a PCA model on the in-control training set, derive the T² and Q
control limits and score a batch against them. Without a batch the
training set is scored in-sample.

The output directory receives results.csv, loadings.csv, limits.json and
the fitted model, and a summary is printed.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			batch := ""
			if len(args) == 2 {
				batch = args[1]
			}

			return runMonitor(cmd, &mf, args[0], batch)
		},
	}

	mf.register(cmd, true)

	return cmd
}

// NewFitCommand creates the fit subcommand: fit and export the baseline.
func NewFitCommand() *cobra.Command {
	var mf monitorFlags

	cmd := &cobra.Command{
		Use:   "fit <training.csv>",
		Short: "Fit a PCA model and control limits on an in-control training set",
		Long: `Fit a PCA model on the in-control training set and export the model,
its limits and the in-sample scores. Later batches are scored against the
export with "fillspc score".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, observability.ModeCLI)
			if err != nil {
				return err
			}
			defer e.close()

			err = mf.apply(cmd, e.cfg)
			if err != nil {
				return err
			}

			result, err := fitAndExport(cmd, e, args[0], "")
			if err != nil {
				return err
			}

			return writeModelSummary(e.stdout(cmd), result, e.cfg.Output.Dir, mf.noColor)
		},
	}

	mf.register(cmd, true)

	return cmd
}

// NewScoreCommand creates the score subcommand: out-of-sample scoring
// against an exported model.
func NewScoreCommand() *cobra.Command {
	var mf monitorFlags

	cmd := &cobra.Command{
		Use:   "score <run-dir> <batch.csv>",
		Short: "Score a new batch against a saved model and its limits",
		Long: `Score a new batch against the model and limits exported by "fillspc fit"
or "fillspc run". The batch must carry the model's variables. Results are
exported to --output, by default <run-dir>/scored.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(cmd, &mf, args[0], args[1])
		},
	}

	mf.register(cmd, false)

	return cmd
}

func runMonitor(cmd *cobra.Command, mf *monitorFlags, training, batch string) error {
	e, err := setup(cmd, observability.ModeCLI)
	if err != nil {
		return err
	}
	defer e.close()

	err = mf.apply(cmd, e.cfg)
	if err != nil {
		return err
	}

	result, err := fitAndExport(cmd, e, training, batch)
	if err != nil {
		return err
	}

	return printSummary(e.stdout(cmd), result, mf.textOptions(e.cfg), e.cfg.Output.Format)
}

func fitAndExport(cmd *cobra.Command, e *env, training, batch string) (*pipeline.Result, error) {
	ctx := contextOf(cmd)

	pcfg, err := e.cfg.PipelineConfig()
	if err != nil {
		return nil, err
	}

	loader, err := e.loader()
	if err != nil {
		return nil, err
	}

	trainingTable, err := loader.Load(ctx, training)
	if err != nil {
		return nil, err
	}

	var batchTable *dataset.Table

	if batch != "" {
		batchTable, err = loader.Load(ctx, batch)
		if err != nil {
			return nil, err
		}
	}

	result, err := e.runner().Run(ctx, trainingTable, batchTable, pcfg)
	if err != nil {
		return nil, err
	}

	err = export.Write(e.cfg.Output.Dir, result, export.Options{CompressModel: e.cfg.Output.CompressModel})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "results exported", "dir", e.cfg.Output.Dir)

	return result, nil
}

func runScore(cmd *cobra.Command, mf *monitorFlags, runDir, batch string) error {
	e, err := setup(cmd, observability.ModeCLI)
	if err != nil {
		return err
	}
	defer e.close()

	err = mf.apply(cmd, e.cfg)
	if err != nil {
		return err
	}

	outDir := filepath.Join(runDir, scoredDirName)
	if cmd.Flags().Changed("output") {
		outDir = e.cfg.Output.Dir
	}

	if filepath.Clean(outDir) == filepath.Clean(runDir) {
		return ErrSameOutputDir
	}

	model, err := export.LoadModel(runDir)
	if err != nil {
		return err
	}

	sidecar, err := export.LoadSidecar(runDir)
	if err != nil {
		return err
	}

	// The batch is read with the schema the model was fitted on.
	loader, err := e.loader()
	if err != nil {
		return err
	}

	loader.Schema = sidecar.Schema

	table, err := loader.Load(contextOf(cmd), batch)
	if err != nil {
		return err
	}

	limits := sidecar.Limits

	result, err := e.runner().Monitor(contextOf(cmd), model, &limits, table)
	if err != nil {
		return err
	}

	err = export.Write(outDir, result, export.Options{CompressModel: e.cfg.Output.CompressModel})
	if err != nil {
		return err
	}

	e.logger.InfoContext(contextOf(cmd), "results exported", "dir", outDir)

	return printSummary(e.stdout(cmd), result, mf.textOptions(e.cfg), e.cfg.Output.Format)
}

func printSummary(w io.Writer, result *pipeline.Result, opts report.TextOptions, rawFormat string) error {
	format, err := report.ParseFormat(rawFormat)
	if err != nil {
		return err
	}

	summary, err := report.Summarize(result, report.Filter{})
	if err != nil {
		return err
	}

	return report.WriteSummary(w, summary, format, opts)
}

// writeModelSummary prints the fitted model: retained components with their
// explained variance, and the control limits.
func writeModelSummary(w io.Writer, result *pipeline.Result, dir string, noColor bool) error {
	bold := color.New(color.Bold)
	warn := color.New(color.FgYellow)

	if noColor {
		bold.DisableColor()
		warn.DisableColor()
	}

	_, err := bold.Fprintf(w, "Model fitted on %s rows, %d components\n",
		humanize.Comma(int64(len(result.Observations))), result.Model.Components())
	if err != nil {
		return fmt.Errorf("write model summary: %w", err)
	}

	var cumulative float64

	names := result.Model.ComponentNames()

	for i, ratio := range result.Model.ExplainedVarianceRatio() {
		cumulative += ratio

		fmt.Fprintf(w, "  %s  %s%%  (cumulative %s%%)\n", names[i],
			humanize.FtoaWithDigits(ratio*100, 2), humanize.FtoaWithDigits(cumulative*100, 2))
	}

	fmt.Fprintf(w, "T² limit %s, Q limit %s at %s%% confidence\n",
		humanize.FtoaWithDigits(result.Limits.T2, 4), humanize.FtoaWithDigits(result.Limits.Q, 4),
		humanize.FtoaWithDigits(result.Limits.Confidence*100, 2))

	for _, warning := range result.Limits.Warnings {
		warn.Fprintf(w, "warning: %s\n", warning.Message())
	}

	fmt.Fprintf(w, "Exported to %s\n", dir)

	return nil
}
