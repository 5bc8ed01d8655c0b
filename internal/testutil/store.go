package testutil

import (
	"testing"

	"dispatchhub/internal/repository/sqlite"
)

// NewTestStore creates an in-memory SQLite store with all migrations applied.
// It is closed when the test completes.
func NewTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}
