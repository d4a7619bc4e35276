// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/leapstack-labs/dbt2sqlx/internal/cli/output"
)

// ProjectFiles is the dbt project written by SetupTestProject.
// stg_orders and orders convert cleanly, legacy uses an unknown macro and
// loop_a/loop_b reference each other.
var ProjectFiles = map[string]string{
	"dbt_project.yml": `name: shop
version: "1.0.0"
profile: shop
vars:
  min_amount: 10
models:
  shop:
    marts:
      +materialized: table
`,
	"models/staging/sources.yml": `version: 2
sources:
  - name: raw
    schema: raw_data
    tables:
      - name: orders
`,
	"models/staging/stg_orders.sql": "select * from {{ source('raw', 'orders') }}\n",
	"models/marts/orders.sql":       "select * from {{ ref('stg_orders') }}\nwhere amount > {{ var('min_amount') }}\n",
	"models/marts/legacy.sql":       "select {{ cents_to_dollars('amount') }} from {{ ref('orders') }}\n",
	"models/loops/loop_a.sql":       "select * from {{ ref('loop_b') }}\n",
	"models/loops/loop_b.sql":       "select * from {{ ref('loop_a') }}\n",
}

// SetupTestProject creates a temporary dbt project from ProjectFiles.
func SetupTestProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range ProjectFiles {
		WriteFile(t, dir, rel, content)
	}
	return dir
}

// WriteFile writes content to dir/rel, creating parent directories.
func WriteFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		t.Fatalf("failed to create directory for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", rel, err)
	}
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.Mode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}
