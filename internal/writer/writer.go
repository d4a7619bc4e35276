// Package writer lays out a converted Dataform project on disk.
package writer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/leapstack-labs/dbt2sqlx/internal/jinja"
	"github.com/leapstack-labs/dbt2sqlx/pkg/core"
)

// Output layout.
const (
	DefinitionsDir = "definitions"
	SourcesDir     = "sources"
	ProjectConfig  = "dataform.json"
)

// Settings are the dataform.json values not derivable from the dbt project.
type Settings struct {
	DefaultDatabase string
	DefaultSchema   string
	AssertionSchema string
	DefaultLocation string
}

// DataformConfig is the dataform.json document.
type DataformConfig struct {
	Warehouse       string            `json:"warehouse"`
	DefaultDatabase string            `json:"defaultDatabase,omitempty"`
	DefaultSchema   string            `json:"defaultSchema"`
	AssertionSchema string            `json:"assertionSchema"`
	DefaultLocation string            `json:"defaultLocation,omitempty"`
	Vars            map[string]string `json:"vars,omitempty"`
}

// NewDataformConfig builds dataform.json from settings and dbt project vars.
// Dataform vars are strings, so every value is stringified.
func NewDataformConfig(s Settings, vars []*core.Variable) DataformConfig {
	cfg := DataformConfig{
		Warehouse:       "bigquery",
		DefaultDatabase: s.DefaultDatabase,
		DefaultSchema:   s.DefaultSchema,
		AssertionSchema: s.AssertionSchema,
		DefaultLocation: s.DefaultLocation,
	}
	if cfg.DefaultSchema == "" {
		cfg.DefaultSchema = "dataform"
	}
	if cfg.AssertionSchema == "" {
		cfg.AssertionSchema = cfg.DefaultSchema + "_assertions"
	}
	if len(vars) > 0 {
		cfg.Vars = make(map[string]string, len(vars))
		for _, v := range vars {
			cfg.Vars[v.Name] = varString(v.DefaultValue)
		}
	}
	return cfg
}

func varString(x any) string {
	v, _ := jinja.FromGo(x)
	switch v.Kind {
	case jinja.KindBool:
		return strconv.FormatBool(v.Bool)
	case jinja.KindNone:
		return ""
	case jinja.KindList, jinja.KindDict:
		return v.JS()
	default:
		s, _ := v.Scalar()
		return s
	}
}

// Options configure a Writer.
type Options struct {
	Logger *slog.Logger
	// DryRun computes paths without touching the file system.
	DryRun bool
}

// Writer writes output files under a root directory.
type Writer struct {
	root   string
	logger *slog.Logger
	dryRun bool
}

// New creates a writer rooted at the output directory.
func New(root string, opts Options) *Writer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Writer{root: root, logger: logger, dryRun: opts.DryRun}
}

// Summary lists what a write produced.
type Summary struct {
	// Written holds output paths relative to the root, sorted.
	Written []string
	// Diagnostics reports model files that could not be written.
	Diagnostics []core.Diagnostic
}

// WriteModels writes every emitted file result to definitions/. A failed write
// becomes an error diagnostic for that file; the other files are still written.
func (w *Writer) WriteModels(results []core.FileResult) *Summary {
	sum := &Summary{}
	for _, r := range results {
		if !r.Status.Emitted() {
			continue
		}
		rel, err := definitionPath(r.OutputPath)
		if err == nil {
			err = w.write(rel, []byte(ensureNewline(r.Text)))
		}
		if err != nil {
			w.logger.Warn("failed to write model", "model", r.Model, "error", err)
			sum.Diagnostics = append(sum.Diagnostics, core.Diagnostic{
				FilePath: r.FilePath,
				Kind:     core.KindOutput,
				Severity: core.SeverityError,
				Message:  fmt.Sprintf("failed to write output: %v", err),
			})
			continue
		}
		sum.Written = append(sum.Written, rel)
	}
	sort.Strings(sum.Written)
	return sum
}

// WriteSources writes one declaration per source table.
func (w *Writer) WriteSources(sources []*core.Source) ([]string, error) {
	var written []string
	for _, s := range sources {
		rel := path.Join(DefinitionsDir, SourcesDir, fileName(s.SourceName), fileName(s.Identifier())+".sqlx")
		if err := w.write(rel, []byte(Declaration(s))); err != nil {
			return written, fmt.Errorf("failed to write declaration for %s: %w", s.Key(), err)
		}
		written = append(written, rel)
	}
	sort.Strings(written)
	return written, nil
}

// WriteProjectConfig writes dataform.json.
func (w *Writer) WriteProjectConfig(cfg DataformConfig) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	if err := w.write(ProjectConfig, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write %s: %w", ProjectConfig, err)
	}
	return nil
}

// Declaration renders the SQLX declaration for a source table.
func Declaration(s *core.Source) string {
	props := []string{`type: "declaration"`}
	if s.Database != "" {
		props = append(props, "database: "+jinja.String(s.Database).JS())
	}
	props = append(props, "schema: "+jinja.String(s.DeclaredSchema()).JS())
	props = append(props, "name: "+jinja.String(s.Identifier()).JS())
	if s.Description != "" {
		props = append(props, "description: "+jinja.String(s.Description).JS())
	}
	return "config {\n  " + strings.Join(props, ",\n  ") + "\n}\n"
}

func (w *Writer) write(rel string, data []byte) error {
	if w.dryRun {
		w.logger.Debug("dry run: skipping write", "path", rel)
		return nil
	}
	file := filepath.Join(w.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(file), 0750); err != nil {
		return err
	}
	w.logger.Debug("writing file", "path", rel, "bytes", len(data))
	return os.WriteFile(file, data, 0600)
}

// definitionPath places a model output under definitions/, rejecting paths
// that would escape it.
func definitionPath(out string) (string, error) {
	out = path.Clean(filepath.ToSlash(out))
	if out == "." || !filepath.IsLocal(filepath.FromSlash(out)) {
		return "", fmt.Errorf("output path %q is outside the definitions directory", out)
	}
	return path.Join(DefinitionsDir, out), nil
}

// fileName keeps a name usable as a single path element.
func fileName(name string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(name)
}

func ensureNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
