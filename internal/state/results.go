package state

import (
	"database/sql"
	"fmt"

	"github.com/leapstack-labs/dbt2sqlx/pkg/core"
)

// --- File result operations ---

// SaveFileResults stores the per-file outcomes of a run in one transaction.
func (s *Store) SaveFileResults(runID string, results []core.FileResult) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	return s.inTx(func(tx *sql.Tx) error {
		for _, r := range results {
			_, err := tx.Exec(
				`INSERT OR REPLACE INTO file_results (run_id, file_path, model, output_path, status) VALUES (?, ?, ?, ?, ?)`,
				runID, r.FilePath, r.Model, r.OutputPath, string(r.Status),
			)
			if err != nil {
				return fmt.Errorf("failed to save file result %s: %w", r.FilePath, err)
			}
		}
		return nil
	})
}

// GetFileResults returns the recorded file outcomes of a run ordered by path.
func (s *Store) GetFileResults(runID string) ([]core.FileResult, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT file_path, model, output_path, status FROM file_results WHERE run_id = ? ORDER BY file_path`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get file results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []core.FileResult
	for rows.Next() {
		var (
			r      core.FileResult
			output sql.NullString
			status string
		)
		if err := rows.Scan(&r.FilePath, &r.Model, &output, &status); err != nil {
			return nil, fmt.Errorf("failed to scan file result: %w", err)
		}
		r.OutputPath = output.String
		r.Status = core.FileStatus(status)
		results = append(results, r)
	}
	return results, rows.Err()
}

// --- Diagnostic operations ---

// SaveDiagnostics stores diagnostics in the order given.
func (s *Store) SaveDiagnostics(runID string, diags []core.Diagnostic) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	return s.inTx(func(tx *sql.Tx) error {
		for i, d := range diags {
			var rule *string
			if d.Rule != "" {
				rule = &d.Rule
			}
			_, err := tx.Exec(
				`INSERT INTO diagnostics (run_id, seq, file_path, line, col, kind, severity, message, rule)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				runID, i, d.FilePath, d.Line, d.Column, d.Kind, d.Severity.String(), d.Message, rule,
			)
			if err != nil {
				return fmt.Errorf("failed to save diagnostic: %w", err)
			}
		}
		return nil
	})
}

// GetDiagnostics returns the diagnostics of a run in their recorded order.
func (s *Store) GetDiagnostics(runID string) ([]core.Diagnostic, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT file_path, line, col, kind, severity, message, rule FROM diagnostics WHERE run_id = ? ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get diagnostics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var diags []core.Diagnostic
	for rows.Next() {
		var (
			d        core.Diagnostic
			severity string
			rule     sql.NullString
		)
		if err := rows.Scan(&d.FilePath, &d.Line, &d.Column, &d.Kind, &severity, &d.Message, &rule); err != nil {
			return nil, fmt.Errorf("failed to scan diagnostic: %w", err)
		}
		d.Severity, _ = core.ParseSeverity(severity)
		d.Rule = rule.String
		diags = append(diags, d)
	}
	return diags, rows.Err()
}

func (s *Store) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
