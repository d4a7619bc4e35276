package core

import (
	"path"
	"strings"
)

// Materialization values understood by the converter.
const (
	MaterializedView        = "view"
	MaterializedTable       = "table"
	MaterializedIncremental = "incremental"
	MaterializedEphemeral   = "ephemeral"
)

// RefKind distinguishes model references from source references.
type RefKind string

// Reference kinds.
const (
	RefModel  RefKind = "model"
	RefSource RefKind = "source"
)

// Ref is a declared dependency of a model on another model or a source table.
type Ref struct {
	Kind RefKind
	// Name is the model name, or the table name for sources.
	Name string
	// SourceName is set for source references only.
	SourceName string
}

// Key returns a stable identity for the reference.
func (r Ref) Key() string {
	if r.Kind == RefSource {
		return string(r.Kind) + ":" + r.SourceName + "." + r.Name
	}
	return string(r.Kind) + ":" + r.Name
}

func (r Ref) String() string {
	if r.Kind == RefSource {
		return "source(" + r.SourceName + ", " + r.Name + ")"
	}
	return "ref(" + r.Name + ")"
}

// Model represents a dbt model: one templated SQL file that becomes one SQLX file.
// Models are created while scanning and never modified after the symbol table is built.
type Model struct {
	// Name is the model name (filename without extension)
	Name string
	// FilePath is the path of the SQL file as scanned
	FilePath string
	// RelativeOutputPath is the SQLX path relative to the definitions directory
	RelativeOutputPath string
	// Materialization is view, table, incremental or ephemeral
	Materialization string
	// DeclaredDependencies are the ref/source calls found in the file
	DeclaredDependencies []Ref
	// Description comes from schema.yml
	Description string
	// Schema is the target dataset override, if any
	Schema string
	// Tags are copied into the generated config block
	Tags []string
	// Columns are the documented columns from schema.yml, in file order
	Columns []Column
}

// Column is a documented model column.
type Column struct {
	Name        string
	Description string
}

// ModelDependencies returns the names of the models this model references, in declaration order.
func (m *Model) ModelDependencies() []string {
	var names []string
	seen := make(map[string]bool)
	for _, ref := range m.DeclaredDependencies {
		if ref.Kind != RefModel || seen[ref.Name] {
			continue
		}
		seen[ref.Name] = true
		names = append(names, ref.Name)
	}
	return names
}

// OutputPathFor maps a model path relative to its model directory to a SQLX path.
func OutputPathFor(relPath string) string {
	rel := path.Clean(strings.ReplaceAll(relPath, "\\", "/"))
	return strings.TrimSuffix(rel, path.Ext(rel)) + ".sqlx"
}

// SourceKey identifies a source table.
type SourceKey struct {
	SourceName string
	TableName  string
}

func (k SourceKey) String() string {
	return k.SourceName + "." + k.TableName
}

// Source is a table declared in a dbt sources block.
type Source struct {
	SourceName string
	TableName  string
	// DeclaredIdentifier is the identifier the generated declaration exposes.
	// It is the table's identifier override, or the table name.
	DeclaredIdentifier string
	Schema             string
	Database           string
	Description        string
}

// Key returns the unique key of the source.
func (s *Source) Key() SourceKey {
	return SourceKey{SourceName: s.SourceName, TableName: s.TableName}
}

// Identifier returns the name the target project should reference.
func (s *Source) Identifier() string {
	if s.DeclaredIdentifier != "" {
		return s.DeclaredIdentifier
	}
	return s.TableName
}

// DeclaredSchema returns the schema of the generated declaration. Sources
// without a schema override live in a schema named after the source.
func (s *Source) DeclaredSchema() string {
	if s.Schema != "" {
		return s.Schema
	}
	return s.SourceName
}

// Variable is a project-scoped variable declared in dbt_project.yml.
type Variable struct {
	Name string
	// DefaultValue keeps the YAML type: string, bool, int, float64 or []any.
	DefaultValue any
}
