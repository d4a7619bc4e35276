package core

import "fmt"

// Diagnostic kinds.
const (
	KindUnresolvedRef      = "unresolved-ref"
	KindUnresolvedSource   = "unresolved-source"
	KindUnresolvedVar      = "unresolved-var"
	KindUnresolvedFunction = "unresolved-function"
	KindUnsupported        = "unsupported-construct"
	KindParse              = "parse"
	KindCycle              = "cycle"
	KindRule               = "rule"
	KindQuotedDirective    = "quoted-directive"
	KindConfig             = "config"
	KindLeftover           = "leftover"
	KindOutput             = "output"
)

// Diagnostic describes one issue found while converting a file.
// Diagnostics are never mutated after creation.
type Diagnostic struct {
	FilePath string   `json:"file"`
	Line     int      `json:"line"`
	Column   int      `json:"column"`
	Kind     string   `json:"kind"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	// Rule names the rewrite rule that fired, for info diagnostics.
	Rule string `json:"rule,omitempty"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d:%d: %s: %s", d.FilePath, d.Line, d.Column, d.Severity, d.Message)
}

// FileStatus is the outcome of converting one file.
type FileStatus string

// File statuses.
const (
	// StatusSuccess means every directive was rewritten.
	StatusSuccess FileStatus = "success"
	// StatusPartial means the file was emitted with at least one passthrough.
	StatusPartial FileStatus = "partial"
	// StatusSkipped means the file was not emitted: it failed to parse or sits on a cycle.
	StatusSkipped FileStatus = "skipped"
	// StatusFatal means the file was emitted but keeps a construct that needs manual conversion.
	StatusFatal FileStatus = "fatal"
)

// Emitted reports whether a file with this status gets an output file.
func (s FileStatus) Emitted() bool {
	return s == StatusSuccess || s == StatusPartial || s == StatusFatal
}

// FileResult is the conversion output for one model file.
type FileResult struct {
	Model      string     `json:"model"`
	FilePath   string     `json:"file"`
	OutputPath string     `json:"output"`
	Text       string     `json:"-"`
	Status     FileStatus `json:"status"`
}
