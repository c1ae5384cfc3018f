// Package runlog provides a SQLite-backed history of pipeline runs, kept
// beside the ledger for operational status queries.
package runlog

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at    DATETIME NOT NULL,
	finished_at   DATETIME NOT NULL,
	processed     INTEGER NOT NULL DEFAULT 0,
	skipped       INTEGER NOT NULL DEFAULT 0,
	cache_hits    INTEGER NOT NULL DEFAULT 0,
	errored       INTEGER NOT NULL DEFAULT 0,
	moved         INTEGER NOT NULL DEFAULT 0,
	history_added INTEGER NOT NULL DEFAULT 0,
	health        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// Run is one recorded pipeline invocation.
type Run struct {
	ID           int64     `json:"id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Processed    int       `json:"processed"`
	Skipped      int       `json:"skipped"`
	CacheHits    int       `json:"cache_hits"`
	Errored      int       `json:"errored"`
	Moved        int       `json:"moved"`
	HistoryAdded int       `json:"history_added"`
	Health       string    `json:"health"`
}

// DB wraps a sql.DB with run-log operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the run-log database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("runlog: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("runlog: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("runlog: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Record appends one run to the log.
func (db *DB) Record(r Run) error {
	_, err := db.conn.Exec(`
		INSERT INTO runs (started_at, finished_at, processed, skipped, cache_hits, errored, moved, history_added, health)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.StartedAt, r.FinishedAt, r.Processed, r.Skipped, r.CacheHits, r.Errored, r.Moved, r.HistoryAdded, r.Health)
	if err != nil {
		return fmt.Errorf("runlog: insert run: %w", err)
	}
	return nil
}

// Recent returns the most recent runs, newest first.
func (db *DB) Recent(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.conn.Query(`
		SELECT id, started_at, finished_at, processed, skipped, cache_hits, errored, moved, history_added, health
		FROM runs ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("runlog: query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Processed, &r.Skipped,
			&r.CacheHits, &r.Errored, &r.Moved, &r.HistoryAdded, &r.Health); err != nil {
			return nil, fmt.Errorf("runlog: scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
