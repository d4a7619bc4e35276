package engine

// run.go - two-phase conversion: symbol table barrier, then parallel translation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/dbt2sqlx/internal/diagnostics"
	"github.com/leapstack-labs/dbt2sqlx/internal/loader"
	"github.com/leapstack-labs/dbt2sqlx/internal/registry"
	"github.com/leapstack-labs/dbt2sqlx/internal/translate"
	"github.com/leapstack-labs/dbt2sqlx/pkg/core"
)

// Run converts every model file of a project.
// Phase 1 builds the symbol table; a duplicate declaration aborts the run.
// Phase 2 translates each file independently. Per-file problems never fail the
// run; they end up as diagnostics and file statuses.
func (e *Engine) Run(ctx context.Context, p *loader.Project) (*Result, error) {
	start := time.Now()
	e.logger.Info("starting conversion", "project", p.Name, "files", len(p.Files))

	table, err := registry.Build(p.Declarations())
	if err != nil {
		return nil, fmt.Errorf("failed to build symbol table: %w", err)
	}
	if cycles := table.Cycles(); len(cycles) > 0 {
		e.logger.Warn("reference cycles detected", "cycles", len(cycles), "affected", len(table.AffectedModels()))
	}

	agg := diagnostics.New()
	tr := translate.New(table, e.rules, e.opts)
	results := make([]core.FileResult, len(p.Files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i, f := range p.Files {
		model, _ := table.Model(f.Model)
		results[i] = core.FileResult{Model: f.Model, FilePath: f.Path, OutputPath: outputPath(model, f)}

		if table.CycleAffected(f.Model) {
			agg.Add(cycleDiagnostic(f, table.CycleFor(f.Model)))
			results[i].Status = core.StatusSkipped
			e.logger.Debug("skipping cycle-affected model", "model", f.Model)
			continue
		}

		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out := tr.TranslateSource(model, f.Path, f.Text)
			results[i].Text = out.Text
			results[i].Status = out.Status
			agg.Add(out.Diagnostics...)
			e.logger.Debug("translated model", "model", f.Model, "status", out.Status, "diagnostics", len(out.Diagnostics))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("conversion cancelled: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("conversion cancelled: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].FilePath < results[j].FilePath })
	res := &Result{
		Project:     p.Name,
		Files:       results,
		Diagnostics: agg.Snapshot(),
		Cycles:      table.Cycles(),
		Table:       table,
	}
	res.tally()
	res.Stats.Duration = time.Since(start)

	e.logger.Info("conversion complete",
		"files", res.Stats.Files,
		"success", res.Stats.Success,
		"partial", res.Stats.Partial,
		"fatal", res.Stats.Fatal,
		"skipped", res.Stats.Skipped,
		"duration", res.Stats.Duration)
	return res, nil
}

func outputPath(m *core.Model, f loader.SourceFile) string {
	if m != nil && m.RelativeOutputPath != "" {
		return m.RelativeOutputPath
	}
	return core.OutputPathFor(f.RelPath)
}

func cycleDiagnostic(f loader.SourceFile, cycle []string) core.Diagnostic {
	return core.Diagnostic{
		FilePath: f.Path,
		Line:     1,
		Column:   1,
		Kind:     core.KindCycle,
		Severity: core.SeverityFatal,
		Message: fmt.Sprintf("model %q depends on the reference cycle %s; file skipped",
			f.Model, strings.Join(cycle, " -> ")),
	}
}
