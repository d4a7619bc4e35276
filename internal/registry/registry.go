// Package registry builds the project symbol table.
// It indexes every model, source table and project variable before any file is
// rewritten, rejects ambiguous declarations, and computes which models sit on or
// downstream of a reference cycle.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/dbt2sqlx/internal/dag"
	"github.com/leapstack-labs/dbt2sqlx/pkg/core"
)

// Declarations is the scanner output the table is built from.
type Declarations struct {
	Models    []*core.Model
	Sources   []*core.Source
	Variables []*core.Variable
}

// DuplicateError reports two declarations with the same key. It aborts the run.
type DuplicateError struct {
	Kind  string // "model" or "source"
	Key   string
	Paths []string
}

func (e *DuplicateError) Error() string {
	if len(e.Paths) > 0 {
		return fmt.Sprintf("duplicate %s %q declared in %s", e.Kind, e.Key, strings.Join(e.Paths, " and "))
	}
	return fmt.Sprintf("duplicate %s %q", e.Kind, e.Key)
}

// Table is the read-only symbol table shared by all translations of a run.
// Nothing mutates it after Build returns, so it needs no locking.
type Table struct {
	models   map[string]*core.Model
	sources  map[core.SourceKey]*core.Source
	vars     map[string]*core.Variable
	graph    *dag.Graph
	cycles   [][]string
	affected map[string][]string // model -> cycle that makes it unbuildable
}

// Build indexes the declarations. Duplicate model names or source keys return
// a *DuplicateError. Reference cycles are not errors: they are recorded and
// exposed through Cycles and CycleAffected.
func Build(decl Declarations) (*Table, error) {
	t := &Table{
		models:   make(map[string]*core.Model, len(decl.Models)),
		sources:  make(map[core.SourceKey]*core.Source, len(decl.Sources)),
		vars:     make(map[string]*core.Variable, len(decl.Variables)),
		graph:    dag.NewGraph(),
		affected: make(map[string][]string),
	}

	for _, m := range decl.Models {
		if prev, ok := t.models[m.Name]; ok {
			return nil, &DuplicateError{Kind: "model", Key: m.Name, Paths: []string{prev.FilePath, m.FilePath}}
		}
		t.models[m.Name] = m
	}

	for _, s := range decl.Sources {
		if _, ok := t.sources[s.Key()]; ok {
			return nil, &DuplicateError{Kind: "source", Key: s.Key().String()}
		}
		t.sources[s.Key()] = s
	}

	// Later declarations override earlier ones, the way dbt merges vars.
	for _, v := range decl.Variables {
		t.vars[v.Name] = v
	}

	t.buildGraph()
	return t, nil
}

// buildGraph adds one edge per model reference; references to unknown models are
// left for the translator to report.
func (t *Table) buildGraph() {
	for _, m := range t.Models() {
		t.graph.AddNode(m.Name, m)
	}
	for _, m := range t.Models() {
		for _, dep := range m.ModelDependencies() {
			if _, ok := t.models[dep]; !ok {
				continue
			}
			// Both nodes exist, so AddEdge cannot fail.
			_ = t.graph.AddEdge(dep, m.Name)
		}
	}

	t.cycles = t.graph.Cycles()
	for _, cycle := range t.cycles {
		for _, name := range t.graph.GetAffectedNodes(cycle) {
			if _, seen := t.affected[name]; !seen {
				t.affected[name] = cycle
			}
		}
	}
}

// Model looks up a model by name.
func (t *Table) Model(name string) (*core.Model, bool) {
	m, ok := t.models[name]
	return m, ok
}

// Source looks up a source table.
func (t *Table) Source(sourceName, tableName string) (*core.Source, bool) {
	s, ok := t.sources[core.SourceKey{SourceName: sourceName, TableName: tableName}]
	return s, ok
}

// Variable looks up a project variable.
func (t *Table) Variable(name string) (*core.Variable, bool) {
	v, ok := t.vars[name]
	return v, ok
}

// Models returns all models sorted by name.
func (t *Table) Models() []*core.Model {
	out := make([]*core.Model, 0, len(t.models))
	for _, m := range t.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Sources returns all sources sorted by source then table name.
func (t *Table) Sources() []*core.Source {
	out := make([]*core.Source, 0, len(t.sources))
	for _, s := range t.sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceName != out[j].SourceName {
			return out[i].SourceName < out[j].SourceName
		}
		return out[i].TableName < out[j].TableName
	})
	return out
}

// Variables returns all variables sorted by name.
func (t *Table) Variables() []*core.Variable {
	out := make([]*core.Variable, 0, len(t.vars))
	for _, v := range t.vars {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Graph returns the model dependency graph.
func (t *Table) Graph() *dag.Graph {
	return t.graph
}

// Cycles returns the detected reference cycles.
func (t *Table) Cycles() [][]string {
	return t.cycles
}

// CycleAffected reports whether a model is on a cycle or depends on one.
func (t *Table) CycleAffected(name string) bool {
	_, ok := t.affected[name]
	return ok
}

// CycleFor returns the cycle that makes a model unbuildable, or nil.
func (t *Table) CycleFor(name string) []string {
	return t.affected[name]
}

// AffectedModels returns the names of all cycle-affected models, sorted.
func (t *Table) AffectedModels() []string {
	out := make([]string, 0, len(t.affected))
	for name := range t.affected {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
