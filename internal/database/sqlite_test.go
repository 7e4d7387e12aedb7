package database

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestOpenSQLiteRequiresPath(t *testing.T) {
	if _, err := OpenSQLite("  "); err == nil {
		t.Fatal("Expected an error for an empty path")
	}
}

func TestRunSQLiteMigrations(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "invite.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer db.Close()

	if err := RunSQLiteMigrations(db, zap.NewNop()); err != nil {
		t.Fatalf("RunSQLiteMigrations failed: %v", err)
	}
	// A second run has nothing to apply.
	if err := RunSQLiteMigrations(db, zap.NewNop()); err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	for _, table := range []string{"invites", "generation_logs"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s missing: %v", table, err)
		}
	}
}
