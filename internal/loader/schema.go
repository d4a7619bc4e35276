package loader

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// schemaFile is a dbt properties file (schema.yml, sources.yml, ...).
type schemaFile struct {
	Version int          `yaml:"version"`
	Sources []sourceYAML `yaml:"sources"`
	Models  []modelYAML  `yaml:"models"`
}

type sourceYAML struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Database    string      `yaml:"database"`
	Schema      string      `yaml:"schema"`
	Tables      []tableYAML `yaml:"tables"`
}

type tableYAML struct {
	Name        string `yaml:"name"`
	Identifier  string `yaml:"identifier"`
	Description string `yaml:"description"`
}

type modelYAML struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Tags        []string       `yaml:"tags"`
	Config      map[string]any `yaml:"config"`
	Columns     []columnYAML   `yaml:"columns"`
}

type columnYAML struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

func readSchemaFile(file string) (*schemaFile, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var sf schemaFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, &YAMLError{File: file, Message: fmt.Sprintf("invalid YAML: %v", err)}
	}
	return &sf, nil
}
