package testutil

import (
	"context"
	"testing"

	"photoframe/internal/store"
)

// NewTestStore opens an in-memory metadata store with migrations applied,
// closed automatically when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	st, err := store.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}
