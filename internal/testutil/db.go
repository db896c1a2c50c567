// Package testutil provides test helpers for database setup.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"testledger/internal/storage"
)

// NewTestDB opens an in-memory database with the full schema applied and
// closes it when the test finishes.
func NewTestDB(t *testing.T) *storage.DB {
	t.Helper()

	db, err := storage.OpenMemory()
	require.NoError(t, err, "failed to open in-memory database")
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}
