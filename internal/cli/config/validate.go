package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
)

var validOutputs = []string{"auto", "text", "markdown", "json"}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency)
	}
	if c.OutputFormat != "" {
		if !slices.Contains(validOutputs, c.OutputFormat) {
			return fmt.Errorf("invalid output format %q (expected %s)", c.OutputFormat, strings.Join(validOutputs, "|"))
		}
	}
	return nil
}

// ValidateProjectDir checks that dir holds a dbt project.
func ValidateProjectDir(dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return fmt.Errorf("project directory does not exist: %s", dir)
	}
	if err != nil {
		return fmt.Errorf("failed to stat project directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("project path is not a directory: %s", dir)
	}
	return nil
}
