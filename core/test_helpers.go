package core

import (
	"os"
	"testing"
)

// setupTempDB opens a DB in a fresh temp directory and registers cleanup.
func setupTempDB(tb testing.TB, opts ...Option) (*DB, string) {
	tb.Helper()

	dir, err := os.MkdirTemp("", "caskdb_test_*")
	if err != nil {
		tb.Fatalf("MkdirTemp: %v", err)
	}

	db, err := Open(dir, opts...)
	if err != nil {
		_ = os.RemoveAll(dir)
		tb.Fatalf("Open(%q): %v", dir, err)
	}

	tb.Cleanup(func() {
		_ = db.Close()
		_ = os.RemoveAll(dir)
	})

	return db, dir
}
