package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/dbt2sqlx/internal/functions"
	"github.com/leapstack-labs/dbt2sqlx/internal/registry"
	"github.com/leapstack-labs/dbt2sqlx/pkg/core"
)

const viewHeader = "config {\n  type: \"view\"\n}\n\n"

func newTranslator(t *testing.T, opts Options) *Translator {
	t.Helper()
	cyclic := func(name, dep string) *core.Model {
		return &core.Model{
			Name:                 name,
			FilePath:             "models/" + name + ".sql",
			DeclaredDependencies: []core.Ref{{Kind: core.RefModel, Name: dep}},
		}
	}
	table, err := registry.Build(registry.Declarations{
		Models: []*core.Model{
			{Name: "stg_orders", FilePath: "models/staging/stg_orders.sql"},
			{Name: "events", FilePath: "models/events.sql"},
			cyclic("loop_a", "loop_b"),
			cyclic("loop_b", "loop_a"),
		},
		Sources: []*core.Source{
			{SourceName: "raw", TableName: "orders", DeclaredIdentifier: "raw_orders"},
			{SourceName: "stripe", TableName: "customers", Schema: "stripe"},
			{SourceName: "shopify", TableName: "customers", Schema: "shop_raw"},
		},
		Variables: []*core.Variable{
			{Name: "row_limit", DefaultValue: 100},
			{Name: "start_date", DefaultValue: "2020-01-01"},
			{Name: "extra_cols", DefaultValue: []any{}},
			{Name: "mapping", DefaultValue: map[string]any{"a": 1}},
		},
	})
	require.NoError(t, err)
	return New(table, functions.Default(), opts)
}

func TestTranslate_Resolved(t *testing.T) {
	tests := []struct {
		name  string
		input string
		body  string
	}{
		{
			name:  "ref",
			input: "select * from {{ ref('stg_orders') }}",
			body:  `select * from ${ref("stg_orders")}`,
		},
		{
			name:  "ref with package",
			input: "select * from {{ ref('shop', 'stg_orders') }}",
			body:  `select * from ${ref("stg_orders")}`,
		},
		{
			name:  "source",
			input: "select * from {{ source('raw', 'orders') }}",
			body:  `select * from ${ref("raw", "raw_orders")}`,
		},
		{
			name:  "sources sharing a table name",
			input: "select * from {{ source('stripe', 'customers') }} join {{ source('shopify', 'customers') }} using (id)",
			body:  `select * from ${ref("stripe", "customers")} join ${ref("shop_raw", "customers")} using (id)`,
		},
		{
			name:  "dollar brace in SQL text",
			input: "select '${1}' as s",
			body:  `select '\${1}' as s`,
		},
		{
			name:  "var",
			input: "select * from t limit {{ var('row_limit') }}",
			body:  "select * from t limit 100",
		},
		{
			name:  "this",
			input: "select max(ts) from {{ this }}",
			body:  "select max(ts) from ${self()}",
		},
		{
			name:  "surrogate key",
			input: "select {{ dbt_utils.generate_surrogate_key(['id', 'email']) }} as sk",
			body:  "select TO_HEX(MD5(CONCAT(CAST(id AS STRING), CAST(email AS STRING)))) as sk",
		},
		{
			name:  "type helper",
			input: "cast(x as {{ dbt.type_string() }})",
			body:  "cast(x as STRING)",
		},
		{
			name:  "literal",
			input: "select {{ 42 }}",
			body:  "select 42",
		},
		{
			name:  "raw block",
			input: "select {% raw %}{{ x }}{% endraw %}",
			body:  "select {{ x }}",
		},
	}

	tr := newTranslator(t, Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tr.TranslateSource(&core.Model{Name: "orders"}, "models/orders.sql", tt.input)
			assert.Empty(t, out.Diagnostics)
			assert.Equal(t, core.StatusSuccess, out.Status)
			assert.Equal(t, tt.body, out.Body)
			assert.Equal(t, viewHeader+tt.body, out.Text)
		})
	}
}

func TestTranslate_Passthrough(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		kind     string
		severity core.Severity
		status   core.FileStatus
	}{
		{"unknown model", "select * from {{ ref('missing') }}", core.KindUnresolvedRef, core.SeverityWarning, core.StatusPartial},
		{"dynamic ref", "select * from {{ ref(name) }}", core.KindUnresolvedRef, core.SeverityWarning, core.StatusPartial},
		{"unknown source", "select * from {{ source('raw', 'payments') }}", core.KindUnresolvedSource, core.SeverityWarning, core.StatusPartial},
		{"undeclared var", "select {{ var('nope') }}", core.KindUnresolvedVar, core.SeverityWarning, core.StatusPartial},
		{"unknown macro", "select {{ dbt_utils.star(ref('events')) }}", core.KindUnresolvedFunction, core.SeverityWarning, core.StatusPartial},
		{"helper bad args", "select {{ dbt_utils.generate_surrogate_key('id') }}", core.KindUnresolvedFunction, core.SeverityWarning, core.StatusPartial},
		{"filter syntax", "select {{ name | upper }}", core.KindUnsupported, core.SeverityWarning, core.StatusPartial},
		{"cycle", "select * from {{ ref('loop_a') }}", core.KindCycle, core.SeverityFatal, core.StatusFatal},
		{"macro block", "{% macro cents(x) %}{{ x }} * 100{% endmacro %}", core.KindUnsupported, core.SeverityFatal, core.StatusFatal},
		{"do statement", "{% do log('hi') %}", core.KindUnsupported, core.SeverityFatal, core.StatusFatal},
		{"for else", "{% for x in [1] %}{{ x }}{% else %}none{% endfor %}", core.KindUnsupported, core.SeverityFatal, core.StatusFatal},
		{"dynamic condition", "{% if target.name == 'prod' %}x{% endif %}", core.KindUnsupported, core.SeverityFatal, core.StatusFatal},
		{"loop over a number", "{% for x in var('row_limit') %}{{ x }}{% endfor %}", core.KindUnsupported, core.SeverityFatal, core.StatusFatal},
		{"membership in a number", "{% if 'a' in var('row_limit') %}x{% endif %}", core.KindUnsupported, core.SeverityFatal, core.StatusFatal},
	}

	tr := newTranslator(t, Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := "select 1\n" + tt.input + "\nselect 2"
			out := tr.TranslateSource(&core.Model{Name: "orders"}, "models/orders.sql", input)

			require.Len(t, out.Diagnostics, 1)
			d := out.Diagnostics[0]
			assert.Equal(t, tt.kind, d.Kind)
			assert.Equal(t, tt.severity, d.Severity)
			assert.Equal(t, 2, d.Line)
			assert.Equal(t, "models/orders.sql", d.FilePath)
			assert.Equal(t, tt.status, out.Status)
			// The directive survives unchanged.
			assert.Equal(t, input, out.Body)
		})
	}
}

func TestTranslate_VarDefault(t *testing.T) {
	tr := newTranslator(t, Options{})
	out := tr.TranslateSource(nil, "m.sql", "select {{ var('missing', 10) }}")

	assert.Equal(t, "select 10", out.Body)
	require.Len(t, out.Diagnostics, 1)
	assert.Equal(t, core.SeverityInfo, out.Diagnostics[0].Severity)
	assert.Equal(t, core.StatusSuccess, out.Status)
}

func TestTranslate_If(t *testing.T) {
	tr := newTranslator(t, Options{})
	input := "select * from {{ ref('events') }}\n" +
		"{% if is_incremental() %}\nwhere ts > (select max(ts) from {{ this }})\n{% endif %}\n"
	out := tr.TranslateSource(nil, "m.sql", input)

	assert.Empty(t, out.Diagnostics)
	assert.Equal(t,
		"select * from ${ref(\"events\")}\n"+
			"${incremental() ? `\nwhere ts > (select max(ts) from ${self()})\n` : ``}\n",
		out.Body)
}

func TestTranslate_IfElifElse(t *testing.T) {
	tr := newTranslator(t, Options{})
	input := "{% if var('row_limit') > 50 %}big{% elif var('row_limit') > 10 %}mid{% else %}small{% endif %}"
	out := tr.TranslateSource(nil, "m.sql", input)

	assert.Empty(t, out.Diagnostics)
	assert.Equal(t, "${(100 > 50) ? `big` : (100 > 10) ? `mid` : `small`}", out.Body)
}

func TestTranslate_For(t *testing.T) {
	tr := newTranslator(t, Options{})
	input := "select {% for m in ['card', 'cash'] %}{{ m }}_amount{% if not loop.last %}, {% endif %}{% endfor %}"
	out := tr.TranslateSource(nil, "m.sql", input)

	assert.Empty(t, out.Diagnostics)
	assert.Equal(t,
		"select ${[\"card\", \"cash\"].map((m, i, arr) => `${m}_amount${!((i === arr.length - 1)) ? `, ` : ``}`).join(\"\")}",
		out.Body)
}

func TestTranslate_NestedForAndEscaping(t *testing.T) {
	tr := newTranslator(t, Options{})
	input := "{% for a in [1] %}{% for b in [2] %}\\{{ a }}-{{ b }}{% endfor %}{% endfor %}"
	out := tr.TranslateSource(nil, "m.sql", input)

	assert.Empty(t, out.Diagnostics)
	assert.Equal(t,
		"${[1].map((a, i, arr) => `${[2].map((b, i1, arr1) => `\\\\${a}-${b}`).join(\"\")}`).join(\"\")}",
		out.Body)
}

func TestTranslate_JinjaTruthiness(t *testing.T) {
	tests := []struct {
		name  string
		input string
		body  string
	}{
		{
			name:  "empty list is false",
			input: "select a{% if var('extra_cols') %}, b{% endif %} from t",
			body:  "select a${false ? `, b` : ``} from t",
		},
		{
			name:  "negated empty list",
			input: "{% if not var('extra_cols') %}x{% endif %}",
			body:  "${true ? `x` : ``}",
		},
		{
			name:  "dict key membership",
			input: "{% if 'a' in var('mapping') %}x{% endif %}{% if 'b' in var('mapping') %}y{% endif %}",
			body:  "${true ? `x` : ``}${false ? `y` : ``}",
		},
		{
			name:  "loop over dict yields keys",
			input: "{% for k in var('mapping') %}{{ k }}{% endfor %}",
			body:  "${Object.keys({\"a\": 1}).map((k, i, arr) => `${k}`).join(\"\")}",
		},
		{
			name:  "loop over dict items",
			input: "{% for k, v in var('mapping').items() %}{{ k }}={{ v }}{% endfor %}",
			body:  "${Object.entries({\"a\": 1}).map(([k, v], i, arr) => `${k}=${v}`).join(\"\")}",
		},
		{
			name:  "dynamic membership in dict",
			input: "{% for x in ['a', 'b'] %}{% if x in var('mapping') %}{{ x }}{% endif %}{% endfor %}",
			body:  "${[\"a\", \"b\"].map((x, i, arr) => `${Object.keys({\"a\": 1}).includes(x) ? `${x}` : ``}`).join(\"\")}",
		},
		{
			name:  "loop over lists tests length",
			input: "{% for r in [[1], []] %}{% if r %}x{% endif %}{% endfor %}",
			body:  "${[[1], []].map((r, i, arr) => `${(r.length > 0) ? `x` : ``}`).join(\"\")}",
		},
		{
			name:  "hoisted list tests length",
			input: "{% set cols = [] %}{% if cols %}x{% endif %}",
			body:  "${(cols.length > 0) ? `x` : ``}",
		},
	}

	tr := newTranslator(t, Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tr.TranslateSource(nil, "m.sql", tt.input)
			assert.Empty(t, out.Diagnostics)
			assert.Equal(t, core.StatusSuccess, out.Status)
			assert.Equal(t, tt.body, out.Body)
		})
	}
}

func TestTranslate_Set(t *testing.T) {
	tr := newTranslator(t, Options{})
	input := "{% set methods = ['a', 'b'] %}\nselect {% for x in methods %}{{ x }}{% endfor %}"
	out := tr.TranslateSource(nil, "m.sql", input)

	assert.Empty(t, out.Diagnostics)
	assert.Equal(t,
		viewHeader+
			"js {\n  const methods = [\"a\", \"b\"];\n}\n\n"+
			"select ${methods.map((x, i, arr) => `${x}`).join(\"\")}",
		out.Text)
}

func TestTranslate_SetInsideBlock(t *testing.T) {
	tr := newTranslator(t, Options{})
	out := tr.TranslateSource(nil, "m.sql", "{% for x in [1] %}{% set y = x %}{{ x }}{% endfor %}")

	require.Len(t, out.Diagnostics, 1)
	assert.Equal(t, core.SeverityFatal, out.Diagnostics[0].Severity)
	assert.Equal(t, core.StatusFatal, out.Status)
	assert.Contains(t, out.Body, "{% set y = x %}")
}

func TestTranslate_Config(t *testing.T) {
	tr := newTranslator(t, Options{})
	input := "{{ config(materialized='incremental', unique_key='id', " +
		"partition_by={'field': 'created_at', 'data_type': 'timestamp'}, " +
		"cluster_by=['customer_id'], tags=['daily'], persist_docs={'relation': True}) }}\nselect 1"
	model := &core.Model{Name: "orders", Description: "One row per order", Tags: []string{"finance"}}
	out := tr.TranslateSource(model, "models/orders.sql", input)

	assert.Equal(t, `config {
  type: "incremental",
  description: "One row per order",
  tags: ["finance", "daily"],
  uniqueKey: ["id"],
  bigquery: {
    partitionBy: "DATE(created_at)",
    clusterBy: ["customer_id"]
  }
}

select 1`, out.Text)

	require.Len(t, out.Diagnostics, 1)
	assert.Equal(t, core.KindConfig, out.Diagnostics[0].Kind)
	assert.Contains(t, out.Diagnostics[0].Message, "persist_docs")
	assert.Equal(t, core.StatusPartial, out.Status)
	assert.Equal(t, "incremental", out.Config.Materialized)
}

func TestTranslate_ColumnDocs(t *testing.T) {
	tr := newTranslator(t, Options{})
	model := &core.Model{
		Name:        "orders",
		Description: "Orders",
		Columns: []core.Column{
			{Name: "id", Description: "Order id"},
			{Name: "status", Description: "Current status"},
		},
	}
	out := tr.TranslateSource(model, "models/orders.sql", "select 1")

	assert.Equal(t, `config {
  type: "view",
  description: "Orders",
  columns: {"id": "Order id", "status": "Current status"}
}

select 1`, out.Text)
	assert.Empty(t, out.Diagnostics)
}

func TestTranslate_HeaderDiagnosticPosition(t *testing.T) {
	tr := newTranslator(t, Options{})

	t.Run("at the config call", func(t *testing.T) {
		out := tr.TranslateSource(nil, "m.sql", "select 1\n{{ config(materialized='ephemeral') }}")
		require.Len(t, out.Diagnostics, 1)
		assert.Equal(t, core.KindConfig, out.Diagnostics[0].Kind)
		assert.Equal(t, 2, out.Diagnostics[0].Line)
		assert.Equal(t, 1, out.Diagnostics[0].Column)
	})

	t.Run("file level without a config call", func(t *testing.T) {
		model := &core.Model{Name: "orders", Materialization: core.MaterializedEphemeral}
		out := tr.TranslateSource(model, "models/orders.sql", "select * from {{ ref('missing') }}")
		require.Len(t, out.Diagnostics, 2)

		assert.Equal(t, core.KindUnresolvedRef, out.Diagnostics[0].Kind)
		assert.Equal(t, 1, out.Diagnostics[0].Line)
		assert.Equal(t, core.KindConfig, out.Diagnostics[1].Kind)
		assert.Equal(t, 0, out.Diagnostics[1].Line)
		assert.Equal(t, 0, out.Diagnostics[1].Column)
	})
}

func TestTranslate_ModelDefaults(t *testing.T) {
	tr := newTranslator(t, Options{})
	model := &core.Model{Name: "orders", Materialization: core.MaterializedTable, Schema: "marts"}
	out := tr.TranslateSource(model, "models/orders.sql", "select 1")

	assert.Equal(t, "config {\n  type: \"table\",\n  schema: \"marts\"\n}\n\nselect 1", out.Text)
	assert.Equal(t, core.StatusSuccess, out.Status)
}

func TestTranslate_Ephemeral(t *testing.T) {
	tr := newTranslator(t, Options{})
	out := tr.TranslateSource(nil, "m.sql", "{{ config(materialized='ephemeral') }}select 1")

	assert.Contains(t, out.Text, `type: "view"`)
	require.Len(t, out.Diagnostics, 1)
	assert.Equal(t, core.KindConfig, out.Diagnostics[0].Kind)
}

func TestTranslate_ParseError(t *testing.T) {
	tr := newTranslator(t, Options{})
	out := tr.TranslateSource(nil, "models/bad.sql", "select 1\n{% if x %}\nselect 2")

	assert.Equal(t, core.StatusSkipped, out.Status)
	assert.Empty(t, out.Text)
	require.Len(t, out.Diagnostics, 1)
	assert.Equal(t, core.KindParse, out.Diagnostics[0].Kind)
	assert.Equal(t, core.SeverityFatal, out.Diagnostics[0].Severity)
	assert.Equal(t, "models/bad.sql", out.Diagnostics[0].FilePath)
}

func TestTranslate_QuotedDirective(t *testing.T) {
	tr := newTranslator(t, Options{})
	out := tr.TranslateSource(nil, "m.sql", "select '{{ ref(\"x\") }}' as s")

	assert.Equal(t, "select '{{ ref(\"x\") }}' as s", out.Body)
	require.Len(t, out.Diagnostics, 1)
	assert.Equal(t, core.KindQuotedDirective, out.Diagnostics[0].Kind)
	assert.Equal(t, core.StatusPartial, out.Status)
}

func TestTranslate_Idempotent(t *testing.T) {
	tr := newTranslator(t, Options{})
	inputs := []string{
		"select * from {{ ref('stg_orders') }}",
		"{% set xs = [1, 2] %}select {% for x in xs %}{{ x }}{% if not loop.last %},{% endif %}{% endfor %}",
		"{{ config(materialized='table') }}select * from {{ source('raw', 'orders') }} {% if is_incremental() %}where 1=1{% endif %}",
	}
	for _, input := range inputs {
		first := tr.TranslateSource(nil, "m.sql", input)
		require.Empty(t, first.Diagnostics, input)

		second := tr.TranslateSource(nil, "m.sqlx", first.Text)
		assert.Empty(t, second.Diagnostics, input)
		assert.Equal(t, first.Text, second.Text, input)
	}
}

func TestTranslate_WhitespaceControl(t *testing.T) {
	tr := newTranslator(t, Options{})
	out := tr.TranslateSource(nil, "m.sql", "select\n  {%- if true -%}\n  1\n  {%- endif %}")

	assert.Equal(t, "select${true ? `1` : ``}", out.Body)
}

func TestTranslate_RecordRules(t *testing.T) {
	tr := newTranslator(t, Options{RecordRules: true})
	out := tr.TranslateSource(nil, "m.sql", "select {{ dbt.type_int() }} from {{ ref('events') }}")

	require.Len(t, out.Diagnostics, 2)
	assert.Equal(t, "function:dbt.type_int", out.Diagnostics[0].Rule)
	assert.Equal(t, "ref", out.Diagnostics[1].Rule)
	for _, d := range out.Diagnostics {
		assert.Equal(t, core.SeverityInfo, d.Severity)
	}
	assert.Equal(t, core.StatusSuccess, out.Status)
}

func TestEscapeTemplate(t *testing.T) {
	assert.Equal(t, "a\\`b\\\\c\\${d}", escapeTemplate("a`b\\c${d}"))
}

func TestJSIdent(t *testing.T) {
	assert.Equal(t, "col", jsIdent("col"))
	assert.Equal(t, "class_", jsIdent("class"))
	assert.Equal(t, "i_", jsIdent("i"))
	assert.Equal(t, "arr2_", jsIdent("arr2"))
	assert.Equal(t, "ref_", jsIdent("ref"))
}
