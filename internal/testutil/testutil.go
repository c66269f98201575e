package testutil

import (
	"testing"

	"github.com/l1f3-sh/AI-Chat/internal/store"
)

// OpenInMemoryStore opens an in-memory SQLite store with the schema applied.
// Each test passes a distinct name so tests do not share state. The store is
// closed via t.Cleanup.
func OpenInMemoryStore(t *testing.T, name string) *store.SQLiteStore {
	t.Helper()
	// Shared cache so every pooled connection sees the same database.
	s, err := store.NewSQLiteStore("file:" + name + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}
