package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for all trace tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id          TEXT PRIMARY KEY,
		scenario    TEXT NOT NULL,
		state       TEXT NOT NULL DEFAULT 'RUNNING',
		ticks       INTEGER NOT NULL DEFAULT 0,
		error       TEXT NOT NULL DEFAULT '',
		stats       TEXT NOT NULL DEFAULT '{}',
		failures    TEXT NOT NULL DEFAULT '[]',
		started_at  TEXT NOT NULL,
		finished_at TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS events (
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		seq        INTEGER NOT NULL,
		tick       INTEGER NOT NULL,
		kind       TEXT NOT NULL,
		thread_id  INTEGER NOT NULL,
		thread     TEXT NOT NULL,
		priority   INTEGER NOT NULL,
		detail     TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (session_id, seq)
	)`,

	`CREATE TABLE IF NOT EXISTS threads (
		session_id         TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		tid                INTEGER NOT NULL,
		name               TEXT NOT NULL,
		status             TEXT NOT NULL,
		base_priority      INTEGER NOT NULL,
		effective_priority INTEGER NOT NULL,
		wake_tick          INTEGER NOT NULL DEFAULT 0,
		run_ticks          INTEGER NOT NULL DEFAULT 0,
		idle               INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (session_id, tid)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state)`,
	`CREATE INDEX IF NOT EXISTS idx_events_kind ON events(session_id, kind)`,
	`CREATE INDEX IF NOT EXISTS idx_events_thread ON events(session_id, thread_id)`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
