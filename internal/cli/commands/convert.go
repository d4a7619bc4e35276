package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/leapstack-labs/dbt2sqlx/internal/cli/output"
	"github.com/leapstack-labs/dbt2sqlx/internal/engine"
	"github.com/leapstack-labs/dbt2sqlx/internal/report"
	"github.com/leapstack-labs/dbt2sqlx/internal/state"
	"github.com/leapstack-labs/dbt2sqlx/internal/writer"
	"github.com/leapstack-labs/dbt2sqlx/pkg/core"
	"github.com/spf13/cobra"
)

// ErrFatalDiagnostics is returned by check when any file has a fatal diagnostic.
var ErrFatalDiagnostics = errors.New("conversion produced fatal diagnostics")

// convertOptions are the per-invocation switches that are not configuration.
type convertOptions struct {
	watch  bool
	dryRun bool
	// check converts without writing outputs, reports or history.
	check bool
}

// NewConvertCommand creates the convert command.
func NewConvertCommand() *cobra.Command {
	opts := &convertOptions{}

	cmd := &cobra.Command{
		Use:   "convert <dbt-project>",
		Short: "Convert a dbt project into a Dataform project",
		Long: `Convert every model of a dbt project into Dataform SQLX.

The symbol table (models, sources and vars) is built first; duplicate
declarations abort the run. Models on a reference cycle are skipped. All other
files are translated in parallel and written under <out-dir>/definitions with
source declarations, dataform.json and a conversion report.

Every directive that could not be rewritten is kept verbatim and reported.`,
		Example: `  # Convert into ./dataform
  dbt2sqlx convert ./jaffle_shop

  # Convert into a specific directory
  dbt2sqlx convert ./jaffle_shop --out-dir ../jaffle_dataform

  # Show what would be written without touching the file system
  dbt2sqlx convert ./jaffle_shop --dry-run

  # Re-convert whenever a model or YAML file changes
  dbt2sqlx convert ./jaffle_shop --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringP("out-dir", "d", "", "Output directory for the Dataform project (default: ./dataform)")
	cmd.Flags().String("report-dir", "", "Directory for conversion_report.{md,json} (default: output directory)")
	addEngineFlags(cmd)
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Re-convert when project files change")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Convert and report without writing files")
	cmd.Flags().Bool("no-state", false, "Do not record the run in the history database")

	return cmd
}

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <dbt-project>",
		Short: "Report conversion problems without writing anything",
		Long: `Convert a dbt project in memory and report its diagnostics.

Exits with a non-zero status when any file has a fatal diagnostic, which makes
it usable as a CI gate before a migration.`,
		Example: `  # Check a project
  dbt2sqlx check ./jaffle_shop

  # Machine-readable diagnostics
  dbt2sqlx check ./jaffle_shop --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, args[0], &convertOptions{check: true})
		},
	}
	addEngineFlags(cmd)
	return cmd
}

func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().Int("concurrency", 0, "Files translated in parallel (default: number of CPUs)")
	cmd.Flags().Bool("record-rules", false, "Emit an info diagnostic for every rewrite rule that fired")
}

func runConvert(cmd *cobra.Command, dir string, opts *convertOptions) error {
	cc := NewCommandContext(cmd)

	rep, err := convertOnce(cmd.Context(), cc, dir, opts)
	if err != nil {
		return err
	}
	if opts.check && rep.Stats.Fatals > 0 {
		return ErrFatalDiagnostics
	}
	if !opts.watch {
		return nil
	}

	cc.Renderer.Muted(fmt.Sprintf("Watching %s for changes (Ctrl+C to stop)", dir))
	return watchProject(cmd.Context(), dir, cc.Logger, defaultDebounce, func() error {
		_, err := convertOnce(cmd.Context(), cc, dir, opts)
		return err
	})
}

// convertOnce runs one full conversion: scan, translate, write, report, record.
func convertOnce(ctx context.Context, cc *CommandContext, dir string, opts *convertOptions) (*report.Report, error) {
	cfg := cc.Cfg
	proj, err := cc.Scan(dir)
	if err != nil {
		return nil, err
	}

	var (
		store *state.Store
		run   *state.Run
	)
	if !opts.check && !opts.dryRun && !cfg.NoState {
		store, err = cc.OpenStore()
		if err != nil {
			return nil, fmt.Errorf("failed to open state: %w", err)
		}
		defer func() { _ = store.Close() }()

		absIn, _ := filepath.Abs(dir)
		absOut, _ := filepath.Abs(cfg.OutputDir)
		if run, err = store.CreateRun(proj.Name, absIn, absOut); err != nil {
			return nil, err
		}
	}

	res, err := cc.Engine().Run(ctx, proj)
	if err != nil {
		if run != nil {
			_ = store.CompleteRun(run.ID, state.RunStatusFailed, nil, err.Error())
		}
		return nil, err
	}

	var extra []string
	writeDiags := writeOutputs(cc, res, opts, &extra)

	runID := ""
	if run != nil {
		runID = run.ID
	}
	rep := report.New(res, runID, writeDiags...)

	if !opts.check && !opts.dryRun {
		reportDir := cfg.ReportDir
		if reportDir == "" {
			reportDir = cfg.OutputDir
		}
		files, err := rep.WriteFiles(reportDir)
		if err != nil {
			return nil, fmt.Errorf("failed to write report: %w", err)
		}
		extra = append(extra, files...)
	}

	if run != nil {
		if err := recordRun(store, run.ID, rep); err != nil {
			return nil, err
		}
	}

	if err := renderReport(cc.Renderer, rep, opts, extra); err != nil {
		return nil, err
	}
	return rep, nil
}

// writeOutputs writes models, source declarations and dataform.json. Model
// write failures come back as diagnostics; written paths are appended to extra.
func writeOutputs(cc *CommandContext, res *engine.Result, opts *convertOptions, extra *[]string) []core.Diagnostic {
	if opts.check {
		return nil
	}
	cfg := cc.Cfg
	w := writer.New(cfg.OutputDir, writer.Options{Logger: cc.Logger, DryRun: opts.dryRun})

	sum := w.WriteModels(res.Files)
	diags := sum.Diagnostics
	*extra = append(*extra, sum.Written...)

	if sources, err := w.WriteSources(res.Table.Sources()); err != nil {
		diags = append(diags, outputDiagnostic(writer.SourcesDir, err))
	} else {
		*extra = append(*extra, sources...)
	}

	df := writer.NewDataformConfig(writer.Settings{
		DefaultDatabase: cfg.Dataform.DefaultDatabase,
		DefaultSchema:   cfg.Dataform.DefaultSchema,
		AssertionSchema: cfg.Dataform.AssertionSchema,
		DefaultLocation: cfg.Dataform.DefaultLocation,
	}, res.Table.Variables())
	if err := w.WriteProjectConfig(df); err != nil {
		diags = append(diags, outputDiagnostic(writer.ProjectConfig, err))
	} else {
		*extra = append(*extra, writer.ProjectConfig)
	}
	return diags
}

func outputDiagnostic(file string, err error) core.Diagnostic {
	return core.Diagnostic{
		FilePath: file,
		Kind:     core.KindOutput,
		Severity: core.SeverityError,
		Message:  err.Error(),
	}
}

func recordRun(store *state.Store, runID string, rep *report.Report) error {
	if err := store.SaveFileResults(runID, rep.Files); err != nil {
		return err
	}
	if err := store.SaveDiagnostics(runID, rep.Diagnostics); err != nil {
		return err
	}
	return store.CompleteRun(runID, state.RunStatusCompleted, rep.Stats, "")
}

func renderReport(r *output.Renderer, rep *report.Report, opts *convertOptions, written []string) error {
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(rep)
	case output.ModeMarkdown:
		return rep.Markdown(r.Writer())
	}

	title := "Conversion of " + rep.Project
	if opts.check {
		title = "Check of " + rep.Project
	}
	r.Header(1, title)
	rep.Text(r.Writer())

	s := rep.Stats
	switch {
	case s.Fatals > 0:
		r.Warning(fmt.Sprintf("%d fatal diagnostics need manual follow-up", s.Fatals))
	case s.Warnings > 0:
		r.Warning(fmt.Sprintf("%d directives were kept as passthrough", s.Warnings))
	default:
		r.Success("All directives converted")
	}
	if opts.dryRun {
		r.Muted(fmt.Sprintf("Dry run: %d files would be written", len(written)))
	} else if !opts.check {
		r.Muted(fmt.Sprintf("Wrote %d files in %s", len(written), s.Duration.Round(time.Millisecond)))
	}
	if rep.RunID != "" {
		r.Muted("Run " + rep.RunID)
	}
	return nil
}
