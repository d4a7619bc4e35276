package writer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/dbt2sqlx/internal/testutil"
	"github.com/leapstack-labs/dbt2sqlx/pkg/core"
)

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func TestWriteModels(t *testing.T) {
	root := t.TempDir()
	w := New(root, Options{Logger: testutil.NewTestLogger(t)})

	sum := w.WriteModels([]core.FileResult{
		{Model: "orders", FilePath: "models/marts/orders.sql", OutputPath: "marts/orders.sqlx", Text: "config {}\n\nselect 1", Status: core.StatusSuccess},
		{Model: "stg", FilePath: "models/stg.sql", OutputPath: "stg.sqlx", Text: "select {{ x }}\n", Status: core.StatusPartial},
		{Model: "macro", FilePath: "models/macro.sql", OutputPath: "macro.sqlx", Text: "{% macro m() %}{% endmacro %}", Status: core.StatusFatal},
		{Model: "bad", FilePath: "models/bad.sql", OutputPath: "bad.sqlx", Status: core.StatusSkipped},
		{Model: "evil", FilePath: "models/evil.sql", OutputPath: "../evil.sqlx", Text: "select 1", Status: core.StatusSuccess},
	})

	assert.Equal(t, []string{"definitions/macro.sqlx", "definitions/marts/orders.sqlx", "definitions/stg.sqlx"}, sum.Written)
	assert.Equal(t, "config {}\n\nselect 1\n", readFile(t, root, "definitions/marts/orders.sqlx"))
	assert.Equal(t, "select {{ x }}\n", readFile(t, root, "definitions/stg.sqlx"))
	assert.NoFileExists(t, filepath.Join(root, "definitions", "bad.sqlx"))
	assert.NoFileExists(t, filepath.Join(root, "evil.sqlx"))

	require.Len(t, sum.Diagnostics, 1)
	assert.Equal(t, "models/evil.sql", sum.Diagnostics[0].FilePath)
	assert.Equal(t, core.SeverityError, sum.Diagnostics[0].Severity)
	assert.Equal(t, core.KindOutput, sum.Diagnostics[0].Kind)
}

func TestWriteModels_DryRun(t *testing.T) {
	root := t.TempDir()
	sum := New(root, Options{DryRun: true}).WriteModels([]core.FileResult{
		{OutputPath: "a.sqlx", Text: "select 1", Status: core.StatusSuccess},
	})
	assert.Equal(t, []string{"definitions/a.sqlx"}, sum.Written)
	assert.NoDirExists(t, filepath.Join(root, "definitions"))
}

func TestWriteSources(t *testing.T) {
	root := t.TempDir()
	written, err := New(root, Options{}).WriteSources([]*core.Source{
		{SourceName: "raw", TableName: "orders", DeclaredIdentifier: "orders_v2", Schema: "raw_data", Database: "my-project"},
		{SourceName: "raw", TableName: "customers", Description: "Customer master"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"definitions/sources/raw/customers.sqlx",
		"definitions/sources/raw/orders_v2.sqlx",
	}, written)
	assert.Equal(t, `config {
  type: "declaration",
  database: "my-project",
  schema: "raw_data",
  name: "orders_v2"
}
`, readFile(t, root, "definitions/sources/raw/orders_v2.sqlx"))
	assert.Equal(t, `config {
  type: "declaration",
  schema: "raw",
  name: "customers",
  description: "Customer master"
}
`, readFile(t, root, "definitions/sources/raw/customers.sqlx"))
}

func TestWriteProjectConfig(t *testing.T) {
	root := t.TempDir()
	cfg := NewDataformConfig(Settings{DefaultDatabase: "my-project"}, []*core.Variable{
		{Name: "start_date", DefaultValue: "2020-01-01"},
		{Name: "row_limit", DefaultValue: 100},
		{Name: "full_refresh", DefaultValue: false},
		{Name: "regions", DefaultValue: []any{"eu", "us"}},
	})
	require.NoError(t, New(root, Options{}).WriteProjectConfig(cfg))

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(readFile(t, root, "dataform.json")), &got))
	assert.Equal(t, "bigquery", got["warehouse"])
	assert.Equal(t, "my-project", got["defaultDatabase"])
	assert.Equal(t, "dataform", got["defaultSchema"])
	assert.Equal(t, "dataform_assertions", got["assertionSchema"])
	assert.NotContains(t, got, "defaultLocation")
	assert.Equal(t, map[string]any{
		"start_date":   "2020-01-01",
		"row_limit":    "100",
		"full_refresh": "false",
		"regions":      `["eu", "us"]`,
	}, got["vars"])
}
