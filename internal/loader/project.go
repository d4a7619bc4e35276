// Package loader scans a dbt project into the declarations the converter needs.
package loader

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/dbt2sqlx/pkg/core"
)

// ProjectFile is the name of the dbt project configuration file.
const ProjectFile = "dbt_project.yml"

// DbtProject is the subset of dbt_project.yml the converter reads.
type DbtProject struct {
	Name          string         `yaml:"name"`
	Version       string         `yaml:"version"`
	Profile       string         `yaml:"profile"`
	ConfigVersion int            `yaml:"config-version"`
	ModelPaths    []string       `yaml:"model-paths"`
	SourcePaths   []string       `yaml:"source-paths"` // dbt < 1.0
	MacroPaths    []string       `yaml:"macro-paths"`
	Vars          map[string]any `yaml:"vars"`
	Models        map[string]any `yaml:"models"`
}

// YAMLError reports a dbt YAML file that could not be decoded.
type YAMLError struct {
	File    string
	Message string
}

func (e *YAMLError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// ReadProject reads and decodes dbt_project.yml.
func ReadProject(file string) (*DbtProject, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var p DbtProject
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, &YAMLError{File: file, Message: fmt.Sprintf("invalid YAML: %v", err)}
	}
	if p.Name == "" {
		return nil, &YAMLError{File: file, Message: "project has no name"}
	}
	return &p, nil
}

// ModelDirs returns the configured model directories.
func (p *DbtProject) ModelDirs() []string {
	switch {
	case len(p.ModelPaths) > 0:
		return p.ModelPaths
	case len(p.SourcePaths) > 0:
		return p.SourcePaths
	default:
		return []string{"models"}
	}
}

// Variables flattens the vars block. Vars scoped under the project name are
// merged over the global ones.
func (p *DbtProject) Variables() []*core.Variable {
	merged := make(map[string]any, len(p.Vars))
	for k, v := range p.Vars {
		if _, scoped := v.(map[string]any); scoped && k == p.Name {
			continue
		}
		merged[k] = v
	}
	if scoped, ok := p.Vars[p.Name].(map[string]any); ok {
		for k, v := range scoped {
			merged[k] = v
		}
	}

	names := make([]string, 0, len(merged))
	for k := range merged {
		names = append(names, k)
	}
	sort.Strings(names)

	vars := make([]*core.Variable, 0, len(names))
	for _, name := range names {
		vars = append(vars, &core.Variable{Name: name, DefaultValue: merged[name]})
	}
	return vars
}

// DirConfig is the model configuration dbt_project.yml assigns to a directory.
type DirConfig struct {
	Materialized string
	Schema       string
	Tags         []string
}

// DirectoryConfig resolves the models: block for a model directory relative to
// its model path, e.g. "staging/stripe". Deeper entries win; tags accumulate.
func (p *DbtProject) DirectoryConfig(relDir string) DirConfig {
	var cfg DirConfig
	node := p.Models
	if node == nil {
		return cfg
	}
	cfg.apply(node)

	node, ok := node[p.Name].(map[string]any)
	if !ok {
		return cfg
	}
	cfg.apply(node)

	relDir = path.Clean(relDir)
	if relDir == "." || relDir == "" {
		return cfg
	}
	for _, seg := range strings.Split(relDir, "/") {
		node, ok = node[seg].(map[string]any)
		if !ok {
			break
		}
		cfg.apply(node)
	}
	return cfg
}

func (c *DirConfig) apply(node map[string]any) {
	for key, v := range node {
		switch strings.TrimPrefix(key, "+") {
		case "materialized":
			if s, ok := v.(string); ok {
				c.Materialized = s
			}
		case "schema":
			if s, ok := v.(string); ok {
				c.Schema = s
			}
		case "tags":
			c.Tags = appendTags(c.Tags, v)
		}
	}
}

func appendTags(tags []string, v any) []string {
	switch t := v.(type) {
	case string:
		return append(tags, t)
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				tags = append(tags, s)
			}
		}
	}
	return tags
}
