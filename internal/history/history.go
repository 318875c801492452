// Package history provides a SQLite-backed ledger of past conformance
// runs. The engine itself persists nothing; the ledger belongs to the
// surrounding tool so repeated runs over a deck can be compared.
package history

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	root          TEXT NOT NULL,
	previous_root TEXT NOT NULL DEFAULT '',
	pass          INTEGER NOT NULL,
	required_bump TEXT NOT NULL DEFAULT 'none',
	declared_bump TEXT NOT NULL DEFAULT 'none',
	blocking      INTEGER NOT NULL DEFAULT 0,
	advisory      INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS run_violations (
	run_id  INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	code    TEXT NOT NULL,
	path    TEXT NOT NULL DEFAULT '',
	ordinal INTEGER NOT NULL DEFAULT -1,
	message TEXT NOT NULL,
	eased   INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_run_violations_run ON run_violations(run_id);
`

// RunStore defines the ledger operations. Consumers should depend on this
// interface rather than the concrete *DB type to facilitate testing.
type RunStore interface {
	Record(run Run) (int64, error)
	GetRun(id int64) (*Run, error)
	ListRuns(limit, offset int) ([]Run, int, error)
	Close() error
}

// Verify *DB satisfies RunStore at compile time.
var _ RunStore = (*DB)(nil)

// DB wraps a sql.DB with ledger-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
