package commands

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/dbt2sqlx/internal/cli/config"
	"github.com/leapstack-labs/dbt2sqlx/internal/cli/output"
	"github.com/spf13/cobra"
)

//go:embed templates/dbt2sqlx.yaml
var configTemplate []byte

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Create a dbt2sqlx.yaml configuration file",
		Long: `Create a commented dbt2sqlx.yaml with the default settings.

The file is picked up automatically when dbt2sqlx runs from that directory.`,
		Example: `  # Initialize in current directory
  dbt2sqlx init

  # Initialize in another directory
  dbt2sqlx init ../migration

  # Force overwrite existing config
  dbt2sqlx init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(NewCommandContext(cmd).Renderer, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")

	return cmd
}

func runInit(r *output.Renderer, dir string, force bool) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	configPath := filepath.Join(dir, config.ConfigFileNames[0])
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", configPath)
	}

	if err := os.WriteFile(configPath, configTemplate, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", configPath, err)
	}

	r.StatusLine("created", configPath)
	r.Println("")
	r.Success("dbt2sqlx configured!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  dbt2sqlx check <dbt-project>     Report what cannot be converted")
	r.Println("  dbt2sqlx convert <dbt-project>   Write the Dataform project")
	r.Println("  dbt2sqlx history                 List previous conversions")

	return nil
}
