// Package report renders conversion results as Markdown, JSON and terminal tables.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/dbt2sqlx/internal/diagnostics"
	"github.com/leapstack-labs/dbt2sqlx/internal/engine"
	"github.com/leapstack-labs/dbt2sqlx/pkg/core"
)

// File names written by WriteFiles.
const (
	MarkdownFile = "conversion_report.md"
	JSONFile     = "conversion_report.json"
)

// Report is a rendered view of one run.
type Report struct {
	Project     string            `json:"project"`
	RunID       string            `json:"run_id,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
	Stats       engine.Stats      `json:"stats"`
	Files       []core.FileResult `json:"files"`
	Diagnostics []core.Diagnostic `json:"diagnostics"`
	Cycles      [][]string        `json:"cycles,omitempty"`
}

// New builds a report from an engine result. Extra diagnostics (for example
// from the writer) are merged in and the report is re-sorted.
func New(res *engine.Result, runID string, extra ...core.Diagnostic) *Report {
	diags := res.Diagnostics
	stats := res.Stats
	if len(extra) > 0 {
		agg := diagnostics.New()
		agg.Add(res.Diagnostics...)
		agg.Add(extra...)
		diags = agg.Snapshot()
		counts := diagnostics.Counts(extra)
		stats.Info += counts[core.SeverityInfo]
		stats.Warnings += counts[core.SeverityWarning]
		stats.Errors += counts[core.SeverityError]
		stats.Fatals += counts[core.SeverityFatal]
	}
	return &Report{
		Project:     res.Project,
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		Stats:       stats,
		Files:       res.Files,
		Diagnostics: diags,
		Cycles:      res.Cycles,
	}
}

var titleCaser = cases.Title(language.English)

// JSON writes the report as indented JSON.
func (r *Report) JSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Markdown writes the report as a Markdown document.
func (r *Report) Markdown(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Conversion Report: %s\n\n", r.Project)
	if r.RunID != "" {
		fmt.Fprintf(&b, "Run `%s`, ", r.RunID)
	}
	fmt.Fprintf(&b, "generated %s.\n\n", r.GeneratedAt.Format(time.RFC3339))

	b.WriteString("## Summary\n\n")
	b.WriteString(r.summaryTable().RenderMarkdown())
	b.WriteString("\n\n")

	b.WriteString("## Files\n\n")
	b.WriteString(r.filesTable(true).RenderMarkdown())
	b.WriteString("\n\n")

	if len(r.Diagnostics) > 0 {
		b.WriteString("## Diagnostics\n\n")
		b.WriteString(diagnosticsTable(r.Diagnostics).RenderMarkdown())
		b.WriteString("\n\n")
	}

	if len(r.Cycles) > 0 {
		b.WriteString("## Reference Cycles\n\n")
		for _, c := range r.Cycles {
			fmt.Fprintf(&b, "- %s\n", strings.Join(c, " -> "))
		}
		b.WriteString("\n")
	}

	if manual := diagnostics.AtLeast(r.Diagnostics, core.SeverityFatal); len(manual) > 0 {
		b.WriteString("## Manual Follow-up\n\n")
		for _, d := range manual {
			fmt.Fprintf(&b, "- [ ] `%s:%d` %s\n", d.FilePath, d.Line, d.Message)
		}
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Text writes terminal tables: a summary and the files that need attention.
func (r *Report) Text(w io.Writer) {
	t := r.summaryTable()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Render()

	ft := r.filesTable(false)
	if ft.Length() == 0 {
		return
	}
	ft.SetOutputMirror(w)
	ft.SetStyle(table.StyleLight)
	ft.Render()
}

// WriteFiles writes the Markdown and JSON reports into dir.
func (r *Report) WriteFiles(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, err
	}
	var written []string
	for _, out := range []struct {
		name   string
		render func(io.Writer) error
	}{
		{MarkdownFile, r.Markdown},
		{JSONFile, r.JSON},
	} {
		file := filepath.Join(dir, out.name)
		f, err := os.Create(file) //nolint:gosec // path built from the output directory
		if err != nil {
			return written, err
		}
		if err := out.render(f); err != nil {
			_ = f.Close()
			return written, fmt.Errorf("failed to render %s: %w", out.name, err)
		}
		if err := f.Close(); err != nil {
			return written, err
		}
		written = append(written, file)
	}
	return written, nil
}

func (r *Report) summaryTable() table.Writer {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Status", "Files"})
	for _, row := range []struct {
		status core.FileStatus
		n      int
	}{
		{core.StatusSuccess, r.Stats.Success},
		{core.StatusPartial, r.Stats.Partial},
		{core.StatusFatal, r.Stats.Fatal},
		{core.StatusSkipped, r.Stats.Skipped},
	} {
		t.AppendRow(table.Row{titleCaser.String(string(row.status)), row.n})
	}
	t.AppendFooter(table.Row{"Total", r.Stats.Files})
	return t
}

// filesTable lists files with their diagnostic counts. Without all, files
// that converted cleanly are left out.
func (r *Report) filesTable(all bool) table.Writer {
	counts := make(map[string]int)
	for _, d := range r.Diagnostics {
		if d.Severity > core.SeverityInfo {
			counts[d.FilePath]++
		}
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"File", "Output", "Status", "Issues"})
	for _, f := range r.Files {
		if !all && f.Status == core.StatusSuccess {
			continue
		}
		out := f.OutputPath
		if !f.Status.Emitted() {
			out = "-"
		}
		t.AppendRow(table.Row{f.FilePath, out, titleCaser.String(string(f.Status)), counts[f.FilePath]})
	}
	return t
}

func diagnosticsTable(diags []core.Diagnostic) table.Writer {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"File", "Line", "Severity", "Kind", "Message"})
	for _, d := range diags {
		t.AppendRow(table.Row{d.FilePath, d.Line, titleCaser.String(d.Severity.String()), d.Kind, d.Message})
	}
	return t
}
