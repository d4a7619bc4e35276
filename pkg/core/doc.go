// Package core defines the shared language of the dbt2sqlx converter.
//
// This package contains:
//   - Domain entities (Model, Source, Variable)
//   - Conversion results (Diagnostic, FileResult, FileStatus)
//   - Severity levels shared by the engine, the report and the CLI
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
