// Package store provides SQLite-backed persistence for the triad kernel.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// schemaV1 defines the initial database schema.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS kernel_events (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	seq_no       INTEGER NOT NULL UNIQUE,
	event_type   TEXT NOT NULL,
	step         INTEGER NOT NULL DEFAULT 0,
	cycle        INTEGER NOT NULL DEFAULT 0,
	process_id   TEXT NOT NULL DEFAULT '',
	payload_json TEXT NOT NULL DEFAULT '{}',
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_process ON kernel_events(process_id);

CREATE TABLE IF NOT EXISTS processes (
	process_id        TEXT PRIMARY KEY,
	origin_id         TEXT NOT NULL,
	parent_id         TEXT NOT NULL DEFAULT '',
	sender            TEXT NOT NULL,
	destinations_json TEXT NOT NULL DEFAULT '[]',
	subject           TEXT NOT NULL DEFAULT '',
	content           TEXT NOT NULL DEFAULT '',
	state             TEXT NOT NULL,
	priority          INTEGER NOT NULL DEFAULT 0,
	current_step      INTEGER NOT NULL DEFAULT 0,
	current_stream    TEXT NOT NULL DEFAULT 'primary',
	context_json      TEXT NOT NULL DEFAULT '{}',
	generation        INTEGER NOT NULL DEFAULT 0,
	created_at        INTEGER NOT NULL,
	finished_at       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_processes_origin ON processes(origin_id);

CREATE TABLE IF NOT EXISTS execution_records (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	process_id  TEXT NOT NULL REFERENCES processes(process_id) ON DELETE CASCADE,
	ordinal     INTEGER NOT NULL,
	step        INTEGER NOT NULL,
	stream      TEXT NOT NULL,
	term        TEXT NOT NULL,
	mode        TEXT NOT NULL,
	duration_ns INTEGER NOT NULL DEFAULT 0,
	outcome     TEXT NOT NULL,
	output      TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL,
	UNIQUE(process_id, ordinal)
);

CREATE TABLE IF NOT EXISTS kernel_snapshots (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle      INTEGER NOT NULL,
	step       INTEGER NOT NULL,
	data       BLOB NOT NULL,
	checksum   TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_cycle ON kernel_snapshots(cycle);

CREATE TABLE IF NOT EXISTS responses (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	process_id   TEXT NOT NULL,
	origin_id    TEXT NOT NULL,
	message_json TEXT NOT NULL,
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_responses_origin ON responses(origin_id);

CREATE TABLE IF NOT EXISTS audit_records (
	id          TEXT PRIMARY KEY,
	process_id  TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL,
	actor       TEXT NOT NULL DEFAULT '',
	action      TEXT NOT NULL,
	detail_json TEXT NOT NULL DEFAULT '{}',
	severity    TEXT NOT NULL DEFAULT 'info',
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_process ON audit_records(process_id);
`

// NewDB opens a SQLite database at the given path with recommended pragmas
// and runs the V1 schema migration.
func NewDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Limit connections to 1 for SQLite (WAL allows concurrent reads but single writer).
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return db, nil
}

func migrate(db *sql.DB) error {
	_, err := db.ExecContext(context.Background(), schemaV1)
	return err
}
