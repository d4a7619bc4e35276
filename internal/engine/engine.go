// Package engine orchestrates a conversion run.
// It builds the symbol table as a barrier, isolates cycle-affected models, then
// translates the remaining files in parallel.
package engine

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/leapstack-labs/dbt2sqlx/internal/functions"
	"github.com/leapstack-labs/dbt2sqlx/internal/registry"
	"github.com/leapstack-labs/dbt2sqlx/internal/translate"
	"github.com/leapstack-labs/dbt2sqlx/pkg/core"
)

// Engine converts scanned projects.
type Engine struct {
	// Structured logger
	logger *slog.Logger

	concurrency int
	rules       translate.Rules
	opts        translate.Options
}

// Config holds engine configuration.
type Config struct {
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
	// Concurrency bounds the number of files translated at once (default: NumCPU)
	Concurrency int
	// Rules is the helper rewrite table (default: functions.Default())
	Rules translate.Rules
	// Options are passed to every translation
	Options translate.Options
}

// New creates an engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	n := cfg.Concurrency
	if n <= 0 {
		n = runtime.NumCPU()
	}
	rules := cfg.Rules
	if rules == nil {
		rules = functions.Default()
	}
	logger.Debug("initializing engine", "concurrency", n, "record_rules", cfg.Options.RecordRules)

	return &Engine{logger: logger, concurrency: n, rules: rules, opts: cfg.Options}
}

// Stats summarises a run.
type Stats struct {
	Files    int           `json:"files"`
	Success  int           `json:"success"`
	Partial  int           `json:"partial"`
	Fatal    int           `json:"fatal"`
	Skipped  int           `json:"skipped"`
	Info     int           `json:"info"`
	Warnings int           `json:"warnings"`
	Errors   int           `json:"errors"`
	Fatals   int           `json:"fatals"`
	Duration time.Duration `json:"duration"`
}

// Result is the outcome of a run.
type Result struct {
	Project     string            `json:"project"`
	Files       []core.FileResult `json:"files"`
	Diagnostics []core.Diagnostic `json:"diagnostics"`
	Cycles      [][]string        `json:"cycles"`
	Stats       Stats             `json:"stats"`

	// Table is the symbol table the run resolved against.
	Table *registry.Table `json:"-"`
}

// Emitted returns the files that get an output file.
func (r *Result) Emitted() []core.FileResult {
	var out []core.FileResult
	for _, f := range r.Files {
		if f.Status.Emitted() {
			out = append(out, f)
		}
	}
	return out
}

func (r *Result) tally() {
	s := &r.Stats
	s.Files = len(r.Files)
	for _, f := range r.Files {
		switch f.Status {
		case core.StatusSuccess:
			s.Success++
		case core.StatusPartial:
			s.Partial++
		case core.StatusFatal:
			s.Fatal++
		case core.StatusSkipped:
			s.Skipped++
		}
	}
	for _, d := range r.Diagnostics {
		switch d.Severity {
		case core.SeverityInfo:
			s.Info++
		case core.SeverityWarning:
			s.Warnings++
		case core.SeverityError:
			s.Errors++
		case core.SeverityFatal:
			s.Fatals++
		}
	}
}
