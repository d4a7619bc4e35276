package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/dbt2sqlx/internal/testutil"
	"github.com/leapstack-labs/dbt2sqlx/pkg/core"
)

const projectYAML = `
name: shop
version: "1.0.0"
profile: shop_bq
model-paths: ["models"]
vars:
  start_date: "2020-01-01"
  row_limit: 100
  shop:
    row_limit: 500
  other_pkg:
    ignored: true
models:
  shop:
    +materialized: view
    staging:
      +schema: staging
      +tags: ["staging"]
    marts:
      +materialized: table
      finance:
        +tags: finance
`

const sourcesYAML = `
version: 2
sources:
  - name: raw
    schema: raw_data
    database: my-project
    tables:
      - name: orders
        identifier: orders_v2
      - name: customers
        description: Customer master
models:
  - name: orders
    description: One row per order
    config:
      materialized: incremental
    columns:
      - name: id
        description: Order id
      - name: amount
      - name: status
        description: Current status
`

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	file := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(file), 0o750))
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))
}

func fixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "dbt_project.yml", projectYAML)
	writeFile(t, root, "models/staging/sources.yml", sourcesYAML)
	writeFile(t, root, "models/staging/stg_orders.sql", "select * from {{ source('raw', 'orders') }}")
	writeFile(t, root, "models/marts/finance/orders.sql",
		"{{ config(materialized='incremental') }}\nselect * from {{ ref('stg_orders') }}\n"+
			"{% if is_incremental() %}where ts > (select max(ts) from {{ this }}){% endif %}")
	writeFile(t, root, "models/marts/customers.sql",
		"select * from {{ source('raw', 'customers') }} join {{ ref('stg_orders') }} using (id)\n"+
			"-- {{ ref('stg_orders') }}")
	writeFile(t, root, "macros/cents.sql", "{% macro cents(x) %}{{ x }} * 100{% endmacro %}")
	writeFile(t, root, "models/tests/ignored.sql", "select 1")
	return root
}

func TestScan(t *testing.T) {
	root := fixture(t)
	p, err := NewScanner(root, testutil.NewTestLogger(t)).Scan()
	require.NoError(t, err)

	assert.Equal(t, "shop", p.Name)
	assert.Equal(t, "shop_bq", p.Profile)

	require.Len(t, p.Files, 3)
	assert.Equal(t, "models/marts/customers.sql", p.Files[0].Path)
	assert.Equal(t, "marts/customers.sql", p.Files[0].RelPath)
	assert.Equal(t, "customers", p.Files[0].Model)
	assert.Equal(t, "models/marts/finance/orders.sql", p.Files[1].Path)
	assert.Equal(t, "models/staging/stg_orders.sql", p.Files[2].Path)

	models := make(map[string]*core.Model)
	for _, m := range p.Models {
		models[m.Name] = m
	}
	require.Len(t, models, 3)

	stg := models["stg_orders"]
	assert.Equal(t, "view", stg.Materialization)
	assert.Equal(t, "staging", stg.Schema)
	assert.Equal(t, []string{"staging"}, stg.Tags)
	assert.Equal(t, "staging/stg_orders.sqlx", stg.RelativeOutputPath)
	assert.Equal(t, []core.Ref{{Kind: core.RefSource, SourceName: "raw", Name: "orders"}}, stg.DeclaredDependencies)

	orders := models["orders"]
	assert.Equal(t, "incremental", orders.Materialization, "properties config overrides the directory config")
	assert.Equal(t, "One row per order", orders.Description)
	assert.Equal(t, []core.Column{
		{Name: "id", Description: "Order id"},
		{Name: "status", Description: "Current status"},
	}, orders.Columns, "undocumented columns are skipped")
	assert.Equal(t, []string{"finance"}, orders.Tags)
	assert.Equal(t, []string{"stg_orders"}, orders.ModelDependencies())

	customers := models["customers"]
	assert.Equal(t, "table", customers.Materialization)
	assert.Len(t, customers.DeclaredDependencies, 2, "duplicate refs are collapsed")

	require.Len(t, p.Sources, 2)
	assert.Equal(t, "orders_v2", p.Sources[0].Identifier())
	assert.Equal(t, "raw_data", p.Sources[0].Schema)
	assert.Equal(t, "my-project", p.Sources[0].Database)
	assert.Equal(t, "Customer master", p.Sources[1].Description)

	vars := make(map[string]any)
	for _, v := range p.Variables {
		vars[v.Name] = v.DefaultValue
	}
	assert.Equal(t, map[string]any{
		"start_date": "2020-01-01",
		"row_limit":  500,
		"other_pkg":  map[string]any{"ignored": true},
	}, vars)

	decl := p.Declarations()
	assert.Len(t, decl.Models, 3)
	assert.Len(t, decl.Sources, 2)
}

func TestScan_MissingProject(t *testing.T) {
	_, err := Scan(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read dbt project")
}

func TestScan_BadSchemaYAML(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "dbt_project.yml", "name: p\n")
	writeFile(t, root, "models/schema.yml", "sources: [unclosed")

	_, err := Scan(root)
	var yerr *YAMLError
	require.ErrorAs(t, err, &yerr)
	assert.Contains(t, yerr.File, "schema.yml")
}

func TestDirectoryConfig(t *testing.T) {
	p := &DbtProject{Name: "shop"}
	assert.Equal(t, DirConfig{}, p.DirectoryConfig("staging"))

	p.Models = map[string]any{
		"+tags": "all",
		"shop": map[string]any{
			"materialized": "view",
			"marts": map[string]any{
				"+materialized": "table",
				"+schema":       "marts",
			},
		},
	}
	tests := []struct {
		dir  string
		want DirConfig
	}{
		{".", DirConfig{Materialized: "view", Tags: []string{"all"}}},
		{"staging", DirConfig{Materialized: "view", Tags: []string{"all"}}},
		{"marts", DirConfig{Materialized: "table", Schema: "marts", Tags: []string{"all"}}},
		{"marts/core", DirConfig{Materialized: "table", Schema: "marts", Tags: []string{"all"}}},
	}
	for _, tt := range tests {
		t.Run(tt.dir, func(t *testing.T) {
			assert.Equal(t, tt.want, p.DirectoryConfig(tt.dir))
		})
	}
}

func TestExtractDependencies(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []core.Ref
	}{
		{"none", "select 1", nil},
		{"ref", "select * from {{ ref('a') }}", []core.Ref{{Kind: core.RefModel, Name: "a"}}},
		{"package ref", "{{ ref('pkg', 'a') }}", []core.Ref{{Kind: core.RefModel, Name: "a"}}},
		{"source", "{{ source('s', 't') }}", []core.Ref{{Kind: core.RefSource, SourceName: "s", Name: "t"}}},
		{"inside if", "{% if true %}{{ ref('a') }}{% endif %}", []core.Ref{{Kind: core.RefModel, Name: "a"}}},
		{"in loop iterable", "{% for r in [ref('a')] %}{{ r }}{% endfor %}", []core.Ref{{Kind: core.RefModel, Name: "a"}}},
		{"dynamic", "{{ ref(name) }}", nil},
		{"parse error", "{% if x %}{{ ref('a') }}", nil},
		{"quoted", "select '{{ ref(\"a\") }}'", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractDependencies(tt.text, "m.sql"))
		})
	}
}
