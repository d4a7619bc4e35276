// Package config provides configuration management for the dbt2sqlx CLI.
//
// Values are layered from built-in defaults, an optional dbt2sqlx.yaml,
// DBT2SQLX_* environment variables (a local .env file is read first) and
// finally command-line flags.
package config

// Config holds all CLI configuration options.
type Config struct {
	OutputDir    string          `koanf:"output_dir"`
	ReportDir    string          `koanf:"report_dir"`
	StatePath    string          `koanf:"state_path"`
	NoState      bool            `koanf:"no_state"`
	Concurrency  int             `koanf:"concurrency"`
	RecordRules  bool            `koanf:"record_rules"`
	Verbose      bool            `koanf:"verbose"`
	OutputFormat string          `koanf:"output"`
	Dataform     *DataformConfig `koanf:"dataform"`
}

// DataformConfig holds the settings written to dataform.json.
type DataformConfig struct {
	DefaultDatabase string `koanf:"default_database"`
	DefaultSchema   string `koanf:"default_schema"`
	AssertionSchema string `koanf:"assertion_schema"`
	DefaultLocation string `koanf:"default_location"`
}

// Default configuration values.
const (
	DefaultStateFile = ".dbt2sqlx/state.db"
	DefaultOutput    = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultOutputDir = "dataform"
	EnvPrefix        = "DBT2SQLX_"
)

// ConfigFileNames are searched, in order, when no --config is given.
var ConfigFileNames = []string{"dbt2sqlx.yaml", "dbt2sqlx.yml"}
