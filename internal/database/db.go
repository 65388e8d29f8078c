// internal/database/db.go
package database

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// Database wraps the SQLite database connection
type Database struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path.
// WAL mode keeps resume-detection reads from blocking behind an
// in-progress checkpoint write.
func Open(path string) (*Database, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}

	d := &Database{db: db}
	if err := d.init(); err != nil {
		db.Close()
		return nil, err
	}

	return d, nil
}

// init creates the database schema
func (d *Database) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS signal_snapshots (
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		timestamp INTEGER NOT NULL,
		tool_call_count INTEGER NOT NULL,
		error_rate REAL NOT NULL,
		duration_ms INTEGER NOT NULL,
		message_count INTEGER NOT NULL,
		avg_latency_ms REAL NOT NULL,
		risk_level TEXT NOT NULL,
		PRIMARY KEY (session_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_signal_snapshots_timestamp ON signal_snapshots(timestamp);

	CREATE TABLE IF NOT EXISTS checkpoints (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		checkpoint_number INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		trigger_type TEXT NOT NULL,
		risk_level TEXT NOT NULL,
		conversation_blob BLOB,
		task_blob BLOB,
		file_blob BLOB,
		tool_blob BLOB,
		signals_blob BLOB,
		preferences_blob BLOB,
		restored INTEGER NOT NULL DEFAULT 0,
		restored_at INTEGER,
		UNIQUE (session_id, checkpoint_number)
	);

	CREATE INDEX IF NOT EXISTS idx_checkpoints_session ON checkpoints(session_id, checkpoint_number);

	CREATE TABLE IF NOT EXISTS resume_events (
		id TEXT PRIMARY KEY,
		checkpoint_id TEXT NOT NULL,
		detected_at INTEGER NOT NULL,
		interruption_reason TEXT NOT NULL,
		confidence REAL NOT NULL,
		fidelity REAL NOT NULL,
		FOREIGN KEY (checkpoint_id) REFERENCES checkpoints(id)
	);

	CREATE INDEX IF NOT EXISTS idx_resume_events_checkpoint ON resume_events(checkpoint_id);

	CREATE TABLE IF NOT EXISTS session_markers (
		session_id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		end_reason TEXT
	);
	`

	_, err := d.db.Exec(schema)
	return err
}

// DB exposes the underlying connection for the repositories
func (d *Database) DB() *sql.DB {
	return d.db
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// NullableTime converts an optional time to a nullable unix value
func NullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}

// TimeFromNull converts a nullable unix value back to an optional time
func TimeFromNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}
