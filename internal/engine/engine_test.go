package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/dbt2sqlx/internal/diagnostics"
	"github.com/leapstack-labs/dbt2sqlx/internal/loader"
	"github.com/leapstack-labs/dbt2sqlx/internal/registry"
	"github.com/leapstack-labs/dbt2sqlx/internal/testutil"
	"github.com/leapstack-labs/dbt2sqlx/internal/translate"
	"github.com/leapstack-labs/dbt2sqlx/pkg/core"
)

// project builds an in-memory project from model paths relative to models/.
func project(files map[string]string) *loader.Project {
	p := &loader.Project{Name: "shop"}
	rels := make([]string, 0, len(files))
	for rel := range files {
		rels = append(rels, rel)
	}
	sort.Strings(rels)
	for _, rel := range rels {
		text := files[rel]
		name := strings.TrimSuffix(path.Base(rel), ".sql")
		file := "models/" + rel
		p.Models = append(p.Models, &core.Model{
			Name:                 name,
			FilePath:             file,
			RelativeOutputPath:   core.OutputPathFor(rel),
			Materialization:      core.MaterializedView,
			DeclaredDependencies: loader.ExtractDependencies(text, file),
		})
		p.Files = append(p.Files, loader.SourceFile{Path: file, RelPath: rel, Model: name, Text: text})
	}
	return p
}

func newEngine(t *testing.T, concurrency int) *Engine {
	t.Helper()
	return New(Config{Logger: testutil.NewTestLogger(t), Concurrency: concurrency})
}

func fileByModel(t *testing.T, res *Result, model string) core.FileResult {
	t.Helper()
	for _, f := range res.Files {
		if f.Model == model {
			return f
		}
	}
	t.Fatalf("no result for model %s", model)
	return core.FileResult{}
}

func TestRun_Resolved(t *testing.T) {
	p := project(map[string]string{
		"staging/stg_orders.sql": "select * from raw",
		"orders.sql":             "select * from {{ ref('stg_orders') }}",
	})
	res, err := newEngine(t, 2).Run(context.Background(), p)
	require.NoError(t, err)

	require.Len(t, res.Files, 2)
	assert.Equal(t, "models/orders.sql", res.Files[0].FilePath)
	assert.Equal(t, "orders.sqlx", res.Files[0].OutputPath)
	assert.Equal(t, "staging/stg_orders.sqlx", res.Files[1].OutputPath)

	orders := fileByModel(t, res, "orders")
	assert.Equal(t, core.StatusSuccess, orders.Status)
	assert.Contains(t, orders.Text, `${ref("stg_orders")}`)
	assert.NotContains(t, orders.Text, "{{")

	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, 2, res.Stats.Success)
	assert.Len(t, res.Emitted(), 2)
	assert.NotNil(t, res.Table)
}

func TestRun_CycleIsolation(t *testing.T) {
	p := project(map[string]string{
		"a.sql": "select * from {{ ref('b') }}",
		"b.sql": "select * from {{ ref('a') }}",
		"c.sql": "select 1",
		"d.sql": "select * from {{ ref('a') }}",
	})
	res, err := newEngine(t, 4).Run(context.Background(), p)
	require.NoError(t, err)

	for _, model := range []string{"a", "b", "d"} {
		f := fileByModel(t, res, model)
		assert.Equal(t, core.StatusSkipped, f.Status, model)
		assert.Empty(t, f.Text, model)

		diags := diagnostics.ForFile(res.Diagnostics, f.FilePath)
		require.Len(t, diags, 1, model)
		assert.Equal(t, core.KindCycle, diags[0].Kind)
		assert.Equal(t, core.SeverityFatal, diags[0].Severity)
		assert.Contains(t, diags[0].Message, "a -> b -> a")
	}

	c := fileByModel(t, res, "c")
	assert.Equal(t, core.StatusSuccess, c.Status)
	assert.Empty(t, diagnostics.ForFile(res.Diagnostics, c.FilePath))

	assert.Equal(t, [][]string{{"a", "b", "a"}}, res.Cycles)
	assert.Equal(t, 3, res.Stats.Skipped)
	assert.Equal(t, 1, res.Stats.Success)
}

func TestRun_ParseBalance(t *testing.T) {
	p := project(map[string]string{
		"bad.sql":  "select 1\n{% if var('x', true) %}\nselect 2",
		"good.sql": "select * from {{ ref('bad') }}",
	})
	res, err := newEngine(t, 2).Run(context.Background(), p)
	require.NoError(t, err)

	bad := fileByModel(t, res, "bad")
	assert.Equal(t, core.StatusSkipped, bad.Status)
	diags := diagnostics.ForFile(res.Diagnostics, bad.FilePath)
	require.Len(t, diags, 1)
	assert.Equal(t, core.KindParse, diags[0].Kind)
	assert.Equal(t, core.SeverityFatal, diags[0].Severity)

	// The model is still registered, so references to it resolve.
	good := fileByModel(t, res, "good")
	assert.Equal(t, core.StatusSuccess, good.Status)
	assert.Empty(t, diagnostics.ForFile(res.Diagnostics, good.FilePath))
	assert.Len(t, res.Emitted(), 1)
}

func TestRun_DuplicateModelAborts(t *testing.T) {
	p := project(map[string]string{
		"staging/orders.sql": "select 1",
		"marts/orders.sql":   "select 2",
	})
	res, err := newEngine(t, 1).Run(context.Background(), p)
	require.Error(t, err)
	assert.Nil(t, res)

	var dup *registry.DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "orders", dup.Key)
}

func TestRun_ManyFilesOrdered(t *testing.T) {
	files := make(map[string]string)
	for i := range 40 {
		files[fmt.Sprintf("m%02d.sql", i)] = fmt.Sprintf("select {{ ref('missing_%d') }}\nfrom {{ ref('also_missing') }}", i)
	}
	res, err := New(Config{Concurrency: 8}).Run(context.Background(), project(files))
	require.NoError(t, err)

	require.Len(t, res.Files, 40)
	require.Len(t, res.Diagnostics, 80)
	for i, d := range res.Diagnostics {
		assert.Equal(t, fmt.Sprintf("models/m%02d.sql", i/2), d.FilePath)
		assert.Equal(t, i%2+1, d.Line)
	}
	assert.Equal(t, 40, res.Stats.Partial)
	assert.Equal(t, 80, res.Stats.Warnings)
}

func TestRun_RecordRules(t *testing.T) {
	p := project(map[string]string{"a.sql": "select {{ dbt.type_string() }}"})
	res, err := New(Config{Options: translate.Options{RecordRules: true}}).Run(context.Background(), p)
	require.NoError(t, err)

	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, core.KindRule, res.Diagnostics[0].Kind)
	assert.Equal(t, 1, res.Stats.Info)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newEngine(t, 1).Run(ctx, project(map[string]string{"a.sql": "select 1"}))
	require.ErrorIs(t, err, context.Canceled)
}

func TestRun_LogsCyclesAndSummary(t *testing.T) {
	p := project(map[string]string{
		"a.sql":     "select * from {{ ref('b') }}",
		"b.sql":     "select * from {{ ref('a') }}",
		"clean.sql": "select 1",
	})
	logger, rec := testutil.NewRecorder()
	res, err := New(Config{Logger: logger, Concurrency: 2}).Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stats.Skipped)

	assert.Equal(t, []string{"reference cycles detected"}, rec.Messages(slog.LevelWarn))
	assert.Contains(t, rec.Messages(slog.LevelDebug), "skipping cycle-affected model")

	files, ok := rec.Attr("conversion complete", "files")
	require.True(t, ok)
	assert.Equal(t, int64(3), files.Int64())
	skipped, ok := rec.Attr("conversion complete", "skipped")
	require.True(t, ok)
	assert.Equal(t, int64(2), skipped.Int64())
}
