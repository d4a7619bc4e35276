// Package diagnostics collects conversion diagnostics from concurrent workers.
package diagnostics

import (
	"sort"
	"sync"

	"github.com/leapstack-labs/dbt2sqlx/pkg/core"
)

type entry struct {
	diag core.Diagnostic
	seq  int
}

// Aggregator is a thread-safe, append-only diagnostics sink.
// Snapshots taken while workers are still appending may be incomplete.
type Aggregator struct {
	mu      sync.Mutex
	entries []entry
}

// New creates an empty aggregator.
func New() *Aggregator {
	return &Aggregator{}
}

// Add appends diagnostics.
func (a *Aggregator) Add(diags ...core.Diagnostic) {
	if len(diags) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, d := range diags {
		a.entries = append(a.entries, entry{diag: d, seq: len(a.entries)})
	}
}

// Len returns the number of collected diagnostics.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Snapshot returns a copy of all diagnostics ordered by file path, line and column.
// Ties keep insertion order.
func (a *Aggregator) Snapshot() []core.Diagnostic {
	a.mu.Lock()
	entries := make([]entry, len(a.entries))
	copy(entries, a.entries)
	a.mu.Unlock()

	sortEntries(entries)
	out := make([]core.Diagnostic, len(entries))
	for i, e := range entries {
		out[i] = e.diag
	}
	return out
}

// sortEntries orders entries by path, line, column, then insertion sequence.
func sortEntries(entries []entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.diag.FilePath != b.diag.FilePath {
			return a.diag.FilePath < b.diag.FilePath
		}
		if a.diag.Line != b.diag.Line {
			return a.diag.Line < b.diag.Line
		}
		if a.diag.Column != b.diag.Column {
			return a.diag.Column < b.diag.Column
		}
		return a.seq < b.seq
	})
}

// Counts tallies diagnostics by severity.
func Counts(diags []core.Diagnostic) map[core.Severity]int {
	counts := make(map[core.Severity]int, 4)
	for _, d := range diags {
		counts[d.Severity]++
	}
	return counts
}

// HasFatal reports whether any diagnostic is fatal.
func HasFatal(diags []core.Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == core.SeverityFatal {
			return true
		}
	}
	return false
}

// ForFile returns the diagnostics of one file, preserving order.
func ForFile(diags []core.Diagnostic, path string) []core.Diagnostic {
	var out []core.Diagnostic
	for _, d := range diags {
		if d.FilePath == path {
			out = append(out, d)
		}
	}
	return out
}

// AtLeast filters diagnostics to a minimum severity.
func AtLeast(diags []core.Diagnostic, min core.Severity) []core.Diagnostic {
	var out []core.Diagnostic
	for _, d := range diags {
		if d.Severity >= min {
			out = append(out, d)
		}
	}
	return out
}
