package history

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/perthro/internal/apperr"
	"github.com/starford/perthro/internal/report"
)

// Run is one recorded conformance pass.
type Run struct {
	ID           int64              `json:"id"`
	Root         string             `json:"root"`
	PreviousRoot string             `json:"previous_root,omitempty"`
	Pass         bool               `json:"pass"`
	RequiredBump string             `json:"required_bump"`
	DeclaredBump string             `json:"declared_bump"`
	Blocking     int                `json:"blocking"`
	Advisory     int                `json:"advisory"`
	CreatedAt    time.Time          `json:"created_at"`
	Violations   []report.Violation `json:"violations,omitempty"`
}

// FromReport builds a Run row from a finished report.
func FromReport(rep *report.Report, previousRoot string) Run {
	return Run{
		Root:         rep.Root,
		PreviousRoot: previousRoot,
		Pass:         rep.Pass,
		RequiredBump: rep.RequiredBump,
		DeclaredBump: rep.DeclaredBump,
		Blocking:     len(rep.Blocking()),
		Advisory:     len(rep.Advisories()),
		Violations:   rep.Violations,
	}
}

// Record inserts a run and its violations within one transaction and
// returns the new run id.
func (db *DB) Record(run Run) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("history: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	res, err := tx.Exec(`
		INSERT INTO runs (root, previous_root, pass, required_bump, declared_bump, blocking, advisory)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.Root, run.PreviousRoot, boolInt(run.Pass), run.RequiredBump, run.DeclaredBump, run.Blocking, run.Advisory)
	if err != nil {
		return 0, fmt.Errorf("history: insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("history: run id: %w", err)
	}

	if len(run.Violations) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO run_violations (run_id, code, path, ordinal, message, eased)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return 0, fmt.Errorf("history: prepare violation insert: %w", err)
		}
		defer stmt.Close()
		for _, v := range run.Violations {
			if _, err := stmt.Exec(id, string(v.Code), v.Path, v.Ordinal, v.Message, boolInt(v.Eased)); err != nil {
				return 0, fmt.Errorf("history: insert violation: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("history: commit: %w", err)
	}
	return id, nil
}

// GetRun loads one run with its violations.
func (db *DB) GetRun(id int64) (*Run, error) {
	row := db.conn.QueryRow(`
		SELECT id, root, previous_root, pass, required_bump, declared_bump, blocking, advisory, created_at
		FROM runs WHERE id = ?
	`, id)

	var run Run
	var pass int
	err := row.Scan(&run.ID, &run.Root, &run.PreviousRoot, &pass,
		&run.RequiredBump, &run.DeclaredBump, &run.Blocking, &run.Advisory, &run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("history: get run: %w", err)
	}
	run.Pass = pass != 0

	rows, err := db.conn.Query(`
		SELECT code, path, ordinal, message, eased
		FROM run_violations WHERE run_id = ? ORDER BY path, ordinal, code, message
	`, id)
	if err != nil {
		return nil, fmt.Errorf("history: get violations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v report.Violation
		var code string
		var eased int
		if err := rows.Scan(&code, &v.Path, &v.Ordinal, &v.Message, &eased); err != nil {
			return nil, fmt.Errorf("history: scan violation: %w", err)
		}
		v.Code = report.Code(code)
		v.Eased = eased != 0
		run.Violations = append(run.Violations, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate violations: %w", err)
	}
	return &run, nil
}

// ListRuns returns paginated runs, newest first, plus the total count.
func (db *DB) ListRuns(limit, offset int) ([]Run, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("history: count runs: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT id, root, previous_root, pass, required_bump, declared_bump, blocking, advisory, created_at
		FROM runs ORDER BY id DESC LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("history: list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var pass int
		if err := rows.Scan(&run.ID, &run.Root, &run.PreviousRoot, &pass,
			&run.RequiredBump, &run.DeclaredBump, &run.Blocking, &run.Advisory, &run.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("history: scan run: %w", err)
		}
		run.Pass = pass != 0
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("history: iterate runs: %w", err)
	}
	return runs, total, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
