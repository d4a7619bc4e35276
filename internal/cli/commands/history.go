package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/dbt2sqlx/internal/cli/output"
	"github.com/leapstack-labs/dbt2sqlx/internal/engine"
	"github.com/leapstack-labs/dbt2sqlx/internal/state"
	"github.com/leapstack-labs/dbt2sqlx/pkg/core"
	"github.com/spf13/cobra"
)

// RunDetail is the JSON document printed by history show.
type RunDetail struct {
	*state.Run
	Files       []core.FileResult `json:"files"`
	Diagnostics []core.Diagnostic `json:"diagnostics"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded conversion runs",
		Long: `List conversion runs recorded in the state database, newest first.

Use 'history show <run-id>' for the files and diagnostics of one run.`,
		Example: `  # Last 10 runs
  dbt2sqlx history

  # All runs as JSON
  dbt2sqlx history --limit 0 --output json

  # One run in detail
  dbt2sqlx history show 3f2c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to show (0 for all)")
	cmd.AddCommand(newHistoryShowCommand())

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the files and diagnostics of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryShow(cmd, args[0])
		},
	}
}

func runHistory(cmd *cobra.Command, limit int) error {
	cc := NewCommandContext(cmd)
	r := cc.Renderer

	store, err := cc.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runs, err := store.ListRuns(limit)
	if err != nil {
		return err
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		if runs == nil {
			runs = []*state.Run{}
		}
		return r.JSON(runs)
	case output.ModeMarkdown:
		r.Println(output.FormatHeader(1, fmt.Sprintf("Conversion Runs (%d)", len(runs))))
		r.Println("")
		if len(runs) == 0 {
			r.Println("No runs recorded.")
			return nil
		}
		r.Println(runsTable(runs).RenderMarkdown())
		return nil
	}

	r.Header(1, fmt.Sprintf("Conversion Runs (%d)", len(runs)))
	if len(runs) == 0 {
		r.Muted("No runs recorded in " + cc.Cfg.StatePath)
		return nil
	}
	t := runsTable(runs)
	t.SetStyle(table.StyleLight)
	r.Println(t.Render())
	return nil
}

func runsTable(runs []*state.Run) table.Writer {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Run", "Project", "Status", "Started", "Files", "Fatals"})
	for _, run := range runs {
		stats := decodeStats(run)
		files, fatals := "-", "-"
		if stats != nil {
			files, fatals = strconv.Itoa(stats.Files), strconv.Itoa(stats.Fatals)
		}
		t.AppendRow(table.Row{run.ID, run.Project, string(run.Status), run.StartedAt.Local().Format(time.DateTime), files, fatals})
	}
	return t
}

func decodeStats(run *state.Run) *engine.Stats {
	if len(run.Stats) == 0 {
		return nil
	}
	var s engine.Stats
	if err := json.Unmarshal(run.Stats, &s); err != nil {
		return nil
	}
	return &s
}

func runHistoryShow(cmd *cobra.Command, id string) error {
	cc := NewCommandContext(cmd)
	r := cc.Renderer

	store, err := cc.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	run, err := store.GetRun(id)
	if err != nil {
		return err
	}
	files, err := store.GetFileResults(id)
	if err != nil {
		return err
	}
	diags, err := store.GetDiagnostics(id)
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		if files == nil {
			files = []core.FileResult{}
		}
		if diags == nil {
			diags = []core.Diagnostic{}
		}
		return r.JSON(RunDetail{Run: run, Files: files, Diagnostics: diags})
	}

	r.Header(1, "Run "+run.ID)
	r.KeyValue("Project", run.Project)
	r.KeyValue("Status", string(run.Status))
	r.KeyValue("Input", run.InputDir)
	r.KeyValue("Output", run.OutputDir)
	r.KeyValue("Started", run.StartedAt.Local().Format(time.DateTime))
	if run.Error != "" {
		r.KeyValue("Error", run.Error)
	}
	if stats := decodeStats(run); stats != nil {
		r.KeyValue("Files", fmt.Sprintf("%d (%d success, %d partial, %d fatal, %d skipped)",
			stats.Files, stats.Success, stats.Partial, stats.Fatal, stats.Skipped))
	}
	r.Println("")

	if len(files) > 0 {
		r.Header(2, "Files")
		for _, f := range files {
			r.StatusLine(string(f.Status), f.FilePath)
		}
		r.Println("")
	}
	if len(diags) > 0 {
		r.Header(2, "Diagnostics")
		for _, d := range diags {
			r.StatusLine(d.Severity.String(), fmt.Sprintf("%s:%d:%d [%s] %s", d.FilePath, d.Line, d.Column, d.Kind, d.Message))
		}
	}
	return nil
}
