// internal/database/db_test.go
package database

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDatabase_Open(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestDatabase_Schema(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"signal_snapshots", "checkpoints", "resume_events", "session_markers"} {
		var name string
		err := db.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("Expected table %s to exist: %v", table, err)
		}
	}
}

func TestDatabase_UniqueCheckpointNumber(t *testing.T) {
	tmpDir := t.TempDir()
	db, err := Open(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	insert := `INSERT INTO checkpoints (id, session_id, checkpoint_number, created_at, trigger_type, risk_level)
		VALUES (?, ?, ?, ?, ?, ?)`

	if _, err := db.DB().Exec(insert, "cp-1", "s-1", 1, 0, "time_interval", "safe"); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if _, err := db.DB().Exec(insert, "cp-2", "s-1", 1, 0, "time_interval", "safe"); err == nil {
		t.Error("Expected unique constraint violation for duplicate checkpoint number")
	}
}
