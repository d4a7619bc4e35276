package commands

import (
	"log/slog"
	"os"

	"github.com/leapstack-labs/dbt2sqlx/internal/cli/config"
	"github.com/leapstack-labs/dbt2sqlx/internal/cli/output"
	"github.com/leapstack-labs/dbt2sqlx/internal/engine"
	"github.com/leapstack-labs/dbt2sqlx/internal/loader"
	"github.com/leapstack-labs/dbt2sqlx/internal/state"
	"github.com/leapstack-labs/dbt2sqlx/internal/translate"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext from the loaded configuration.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := getConfig(cmd)
	logger := config.GetLogger(cmd.Context())
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// Scan reads the dbt project at dir.
func (c *CommandContext) Scan(dir string) (*loader.Project, error) {
	if err := config.ValidateProjectDir(dir); err != nil {
		return nil, err
	}
	return loader.NewScanner(dir, c.Logger).Scan()
}

// Engine creates a conversion engine from the configuration.
func (c *CommandContext) Engine() *engine.Engine {
	return engine.New(engine.Config{
		Logger:      c.Logger,
		Concurrency: c.Cfg.Concurrency,
		Options:     translate.Options{RecordRules: c.Cfg.RecordRules},
	})
}

// OpenStore opens and migrates the run-history database.
// The caller must close the returned store.
func (c *CommandContext) OpenStore() (*state.Store, error) {
	store := state.New(c.Logger)
	if err := store.Open(c.Cfg.StatePath); err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// getConfig returns the current configuration.
// Commands run without the root command load it from their own flags; if that
// fails it falls back to environment variables.
func getConfig(cmd *cobra.Command) *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	if cfg, err := config.LoadConfig("", cmd.Flags()); err == nil {
		return cfg
	}

	return &config.Config{
		OutputDir:    getEnvOrDefault(config.EnvPrefix+"OUTPUT_DIR", config.DefaultOutputDir),
		StatePath:    getEnvOrDefault(config.EnvPrefix+"STATE_PATH", config.DefaultStateFile),
		OutputFormat: getEnvOrDefault(config.EnvPrefix+"OUTPUT", config.DefaultOutput),
		Verbose:      os.Getenv(config.EnvPrefix+"VERBOSE") == "true",
		Dataform:     &config.DataformConfig{DefaultSchema: "dataform"},
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
