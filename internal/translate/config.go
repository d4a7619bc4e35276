package translate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/leapstack-labs/dbt2sqlx/internal/jinja"
	"github.com/leapstack-labs/dbt2sqlx/internal/template"
	"github.com/leapstack-labs/dbt2sqlx/pkg/core"
)

// ModelConfig holds the config() arguments that map onto the SQLX config block.
type ModelConfig struct {
	Materialized        string            `mapstructure:"materialized"`
	Schema              string            `mapstructure:"schema"`
	Database            string            `mapstructure:"database"`
	Tags                []string          `mapstructure:"tags"`
	UniqueKey           []string          `mapstructure:"unique_key"`
	PartitionBy         *PartitionBy      `mapstructure:"partition_by"`
	ClusterBy           []string          `mapstructure:"cluster_by"`
	Labels              map[string]string `mapstructure:"labels"`
	Enabled             *bool             `mapstructure:"enabled"`
	IncrementalStrategy string            `mapstructure:"incremental_strategy"`
	OnSchemaChange      string            `mapstructure:"on_schema_change"`
}

// PartitionBy is dbt-bigquery's partition_by dict.
type PartitionBy struct {
	Field       string `mapstructure:"field"`
	DataType    string `mapstructure:"data_type"`
	Granularity string `mapstructure:"granularity"`
	Range       *struct {
		Start    int `mapstructure:"start"`
		End      int `mapstructure:"end"`
		Interval int `mapstructure:"interval"`
	} `mapstructure:"range"`
}

// merge decodes config() keyword arguments over the current config.
// It returns the keys that have no SQLX counterpart.
func (c *ModelConfig) merge(kwargs map[string]any) ([]string, error) {
	// Single strings are accepted where dbt takes a list.
	for _, key := range []string{"tags", "unique_key", "cluster_by"} {
		if s, ok := kwargs[key].(string); ok {
			kwargs[key] = []string{s}
		}
	}

	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           c,
		Metadata:         &md,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(kwargs); err != nil {
		return nil, err
	}

	unused := append([]string(nil), md.Unused...)
	sort.Strings(unused)
	return unused, nil
}

// expr renders the BigQuery partition expression.
func (p *PartitionBy) expr() (string, error) {
	if p.Field == "" {
		return "", fmt.Errorf("partition_by has no field")
	}
	gran := strings.ToUpper(p.Granularity)
	if gran == "" {
		gran = "DAY"
	}
	switch gran {
	case "HOUR", "DAY", "MONTH", "YEAR":
	default:
		return "", fmt.Errorf("unknown partition granularity %q", p.Granularity)
	}

	switch strings.ToLower(p.DataType) {
	case "", "date":
		if gran == "DAY" {
			return p.Field, nil
		}
		return fmt.Sprintf("DATE_TRUNC(%s, %s)", p.Field, gran), nil
	case "timestamp":
		if gran == "DAY" {
			return fmt.Sprintf("DATE(%s)", p.Field), nil
		}
		return fmt.Sprintf("TIMESTAMP_TRUNC(%s, %s)", p.Field, gran), nil
	case "datetime":
		if gran == "DAY" {
			return fmt.Sprintf("DATE(%s)", p.Field), nil
		}
		return fmt.Sprintf("DATETIME_TRUNC(%s, %s)", p.Field, gran), nil
	case "int64":
		if p.Range == nil {
			return "", fmt.Errorf("int64 partitioning needs a range")
		}
		return fmt.Sprintf("RANGE_BUCKET(%s, GENERATE_ARRAY(%d, %d, %d))",
			p.Field, p.Range.Start, p.Range.End, p.Range.Interval), nil
	}
	return "", fmt.Errorf("unknown partition data_type %q", p.DataType)
}

// actionType maps a dbt materialization to a Dataform action type.
func actionType(materialized string) (typ string, materializedView bool, ok bool) {
	switch materialized {
	case "", core.MaterializedView:
		return "view", false, true
	case core.MaterializedTable:
		return "table", false, true
	case core.MaterializedIncremental:
		return "incremental", false, true
	case "materialized_view":
		return "view", true, true
	}
	return "view", false, false
}

// header builds the config { } block from the model and its config() calls.
func (f *fileState) header() string {
	cfg := f.config
	var props []string
	add := func(key string, v jinja.Value) {
		props = append(props, key+": "+v.JS())
	}

	materialized := cfg.Materialized
	if materialized == "" && f.model != nil {
		materialized = f.model.Materialization
	}
	typ, mv, ok := actionType(materialized)
	if !ok {
		msg := fmt.Sprintf("materialization %q has no Dataform equivalent; emitted as a view", materialized)
		f.diag(headerPos(f), core.SeverityWarning, core.KindConfig, msg)
	}
	add("type", jinja.String(typ))
	if mv {
		add("materialized", jinja.Value{Kind: jinja.KindBool, Bool: true})
	}

	schema := cfg.Schema
	if schema == "" && f.model != nil {
		schema = f.model.Schema
	}
	if schema != "" {
		add("schema", jinja.String(schema))
	}
	if cfg.Database != "" {
		add("database", jinja.String(cfg.Database))
	}
	if f.model != nil && f.model.Description != "" {
		add("description", jinja.String(f.model.Description))
	}
	if f.model != nil && len(f.model.Columns) > 0 {
		cols := jinja.Value{Kind: jinja.KindDict}
		for _, c := range f.model.Columns {
			cols.Items = append(cols.Items, jinja.Item{Key: c.Name, Value: jinja.String(c.Description)})
		}
		add("columns", cols)
	}

	var tags []string
	if f.model != nil {
		tags = append(tags, f.model.Tags...)
	}
	tags = dedupe(append(tags, cfg.Tags...))
	if len(tags) > 0 {
		add("tags", stringList(tags))
	}
	if len(cfg.UniqueKey) > 0 {
		if typ != "incremental" {
			f.diag(headerPos(f), core.SeverityWarning, core.KindConfig, "unique_key is only meaningful for incremental models")
		}
		add("uniqueKey", stringList(cfg.UniqueKey))
	}
	if cfg.Enabled != nil && !*cfg.Enabled {
		add("disabled", jinja.Value{Kind: jinja.KindBool, Bool: true})
	}
	if cfg.OnSchemaChange != "" || (cfg.IncrementalStrategy != "" && cfg.IncrementalStrategy != "merge") {
		f.diag(headerPos(f), core.SeverityWarning, core.KindConfig,
			"incremental_strategy and on_schema_change have no Dataform equivalent and were dropped")
	}

	var bq []string
	if cfg.PartitionBy != nil {
		expr, err := cfg.PartitionBy.expr()
		if err != nil {
			f.diag(headerPos(f), core.SeverityWarning, core.KindConfig, "partition_by dropped: "+err.Error())
		} else {
			bq = append(bq, "partitionBy: "+jinja.String(expr).JS())
		}
	}
	if len(cfg.ClusterBy) > 0 {
		bq = append(bq, "clusterBy: "+stringList(cfg.ClusterBy).JS())
	}
	if len(cfg.Labels) > 0 {
		labels := make(map[string]any, len(cfg.Labels))
		for k, v := range cfg.Labels {
			labels[k] = v
		}
		if v, ok := jinja.FromGo(labels); ok {
			bq = append(bq, "labels: "+v.JS())
		}
	}
	if len(bq) > 0 {
		props = append(props, "bigquery: {\n    "+strings.Join(bq, ",\n    ")+"\n  }")
	}

	return "config {\n  " + strings.Join(props, ",\n  ") + "\n}"
}

// headerPos anchors header diagnostics at the first config() call. Settings
// that only come from project files are reported at line 0.
func headerPos(f *fileState) template.Position {
	if f.configAt != nil {
		return *f.configAt
	}
	return template.Position{File: f.path}
}

func stringList(items []string) jinja.Value {
	v := jinja.Value{Kind: jinja.KindList}
	for _, s := range items {
		v.List = append(v.List, jinja.String(s))
	}
	return v
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, s := range items {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
