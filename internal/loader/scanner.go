package loader

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/dbt2sqlx/internal/registry"
	"github.com/leapstack-labs/dbt2sqlx/pkg/core"
)

// SourceFile is one model file read from disk.
type SourceFile struct {
	// Path is the file path relative to the project root, slash separated.
	Path string
	// RelPath is the path relative to its model directory.
	RelPath string
	// Model is the model name the file declares.
	Model string
	Text  string
}

// Project is the scanned dbt project.
type Project struct {
	Root      string
	Name      string
	Profile   string
	Config    *DbtProject
	Models    []*core.Model
	Sources   []*core.Source
	Variables []*core.Variable
	Files     []SourceFile
}

// Declarations returns the inputs of the symbol table.
func (p *Project) Declarations() registry.Declarations {
	return registry.Declarations{Models: p.Models, Sources: p.Sources, Variables: p.Variables}
}

// skipDirs are never scanned for models.
var skipDirs = map[string]bool{
	"macros":       true,
	"tests":        true,
	"seeds":        true,
	"snapshots":    true,
	"analyses":     true,
	"target":       true,
	"dbt_packages": true,
	"dbt_modules":  true,
	"logs":         true,
}

// Scanner reads a dbt project from disk.
type Scanner struct {
	root   string
	logger *slog.Logger
}

// NewScanner creates a scanner rooted at a dbt project directory.
func NewScanner(root string, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scanner{root: root, logger: logger}
}

// Scan reads the project at root with a discarding logger.
func Scan(root string) (*Project, error) {
	return NewScanner(root, nil).Scan()
}

// Scan reads dbt_project.yml, every model file and every properties file.
func (s *Scanner) Scan() (*Project, error) {
	cfg, err := ReadProject(filepath.Join(s.root, ProjectFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read dbt project: %w", err)
	}
	s.logger.Debug("scanning dbt project", "name", cfg.Name, "root", s.root, "model_paths", cfg.ModelDirs())

	p := &Project{
		Root:      s.root,
		Name:      cfg.Name,
		Profile:   cfg.Profile,
		Config:    cfg,
		Variables: cfg.Variables(),
	}

	var schemas []string
	for _, dir := range cfg.ModelDirs() {
		base := filepath.Join(s.root, filepath.FromSlash(dir))
		if _, err := os.Stat(base); os.IsNotExist(err) {
			s.logger.Warn("model path does not exist", "path", dir)
			continue
		}
		found, err := s.walk(p, base)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, found...)
	}

	props := make(map[string]modelYAML)
	for _, file := range schemas {
		sf, err := readSchemaFile(file)
		if err != nil {
			return nil, err
		}
		for _, src := range sf.Sources {
			p.Sources = append(p.Sources, convertSource(src)...)
		}
		for _, m := range sf.Models {
			props[m.Name] = m
		}
	}

	for _, m := range p.Models {
		if mp, ok := props[m.Name]; ok {
			applyProperties(m, mp)
		}
	}

	sort.Slice(p.Files, func(i, j int) bool { return p.Files[i].Path < p.Files[j].Path })
	s.logger.Debug("scan complete", "models", len(p.Models), "sources", len(p.Sources), "vars", len(p.Variables))
	return p, nil
}

// walk collects the models under one model directory and returns the
// properties files it saw.
func (s *Scanner) walk(p *Project, base string) ([]string, error) {
	var schemas []string
	err := filepath.WalkDir(base, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if file != base && (skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}

		switch strings.ToLower(filepath.Ext(file)) {
		case ".yml", ".yaml":
			schemas = append(schemas, file)
		case ".sql":
			return s.addModel(p, base, file)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", base, err)
	}
	return schemas, nil
}

func (s *Scanner) addModel(p *Project, base, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(base, file)
	if err != nil {
		return err
	}
	rel = filepath.ToSlash(rel)
	projectRel, err := filepath.Rel(s.root, file)
	if err != nil {
		return err
	}
	projectRel = filepath.ToSlash(projectRel)

	name := strings.TrimSuffix(path.Base(rel), path.Ext(rel))
	text := string(data)
	dir := p.Config.DirectoryConfig(path.Dir(rel))

	m := &core.Model{
		Name:                 name,
		FilePath:             projectRel,
		RelativeOutputPath:   core.OutputPathFor(rel),
		Materialization:      dir.Materialized,
		Schema:               dir.Schema,
		Tags:                 dir.Tags,
		DeclaredDependencies: ExtractDependencies(text, projectRel),
	}
	if m.Materialization == "" {
		m.Materialization = core.MaterializedView
	}
	s.logger.Debug("found model", "model", name, "path", projectRel, "deps", len(m.DeclaredDependencies))

	p.Models = append(p.Models, m)
	p.Files = append(p.Files, SourceFile{Path: projectRel, RelPath: rel, Model: name, Text: text})
	return nil
}

func convertSource(src sourceYAML) []*core.Source {
	schema := src.Schema
	if schema == "" {
		schema = src.Name
	}
	out := make([]*core.Source, 0, len(src.Tables))
	for _, t := range src.Tables {
		desc := t.Description
		if desc == "" {
			desc = src.Description
		}
		out = append(out, &core.Source{
			SourceName:         src.Name,
			TableName:          t.Name,
			DeclaredIdentifier: t.Identifier,
			Schema:             schema,
			Database:           src.Database,
			Description:        desc,
		})
	}
	return out
}

// applyProperties merges a properties-file entry into a model. Its config
// overrides the directory config from dbt_project.yml.
func applyProperties(m *core.Model, mp modelYAML) {
	if mp.Description != "" {
		m.Description = mp.Description
	}
	m.Tags = append(m.Tags, mp.Tags...)
	for _, c := range mp.Columns {
		if c.Name == "" || c.Description == "" {
			continue
		}
		m.Columns = append(m.Columns, core.Column{Name: c.Name, Description: c.Description})
	}
	if v, ok := mp.Config["materialized"].(string); ok && v != "" {
		m.Materialization = v
	}
	if v, ok := mp.Config["schema"].(string); ok && v != "" {
		m.Schema = v
	}
	m.Tags = appendTags(m.Tags, mp.Config["tags"])
}
