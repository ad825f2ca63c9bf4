package server

import (
	"path/filepath"
	"testing"

	"github.com/petal-labs/algoviz/bus"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "algoviz.sqlite")
	store, err := NewSQLiteStore(SQLiteStoreConfig{DSN: path})
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestEventStore(t *testing.T) *bus.SQLiteEventStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "events.sqlite")
	store, err := bus.NewSQLiteEventStore(bus.SQLiteStoreConfig{DSN: path})
	if err != nil {
		t.Fatalf("NewSQLiteEventStore(events): %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
