package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"testledger/internal/config"
	"testledger/internal/docstore"
	"testledger/internal/schema"
	"testledger/internal/storage"
	"testledger/internal/testutil"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return newTestManagerWithFields(t, nil)
}

func newTestManagerWithFields(t *testing.T, custom map[string][]config.CustomFieldConfig) *Manager {
	t.Helper()
	db := testutil.NewTestDB(t)
	reg, err := schema.NewRegistry(RealmDecls(), custom)
	require.NoError(t, err)
	outcomes, err := NewOutcomes(config.DefaultOutcomes())
	require.NoError(t, err)

	m := NewManager(db, reg, docstore.NewStore(db), outcomes)
	t.Cleanup(m.Close)
	return m
}

func mustCatalog(t *testing.T, m *Manager, parentPage, title string) *TestCatalog {
	t.Helper()
	cat, err := m.CreateCatalog(context.Background(), parentPage, title, "", "tester")
	require.NoError(t, err)
	return cat
}

func mustCase(t *testing.T, m *Manager, catalogPage, title string) *TestCase {
	t.Helper()
	tc, err := m.CreateCase(context.Background(), catalogPage, title, "", "tester")
	require.NoError(t, err)
	return tc
}

func countRows(t *testing.T, db *storage.DB, table string) int {
	t.Helper()
	var n int
	err := db.Conn().QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n)
	require.NoError(t, err)
	return n
}
