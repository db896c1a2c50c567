package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestOpen_CreatesDirectory verifies that Open creates the parent directory if missing.
func TestOpen_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	db, err := Open(dbPath)
	require.NoError(t, err, "Open should succeed even with nested non-existent directories")
	defer db.Close()

	info, err := os.Stat(filepath.Dir(dbPath))
	require.NoError(t, err, "Directory should exist after Open")
	require.True(t, info.IsDir())

	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0700), info.Mode().Perm(), "Directory should have 0700 permissions")
	}
}

// TestOpen_RunsMigrations verifies that Open runs migrations and creates the core tables.
func TestOpen_RunsMigrations(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{
		"testcatalog", "testcase", "testplan", "testcaseinplan",
		"testcasehistory", "testconfig", "documents",
	} {
		var name string
		err = db.conn.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist after migrations", table)
		require.Equal(t, table, name)
	}
}

// TestOpen_PreMigrationBackup verifies that a .bak file is created before migrations
// when an existing database file is present.
func TestOpen_PreMigrationBackup(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db1, err := Open(dbPath)
	require.NoError(t, err)

	_, err = db1.conn.Exec(
		"INSERT INTO testcatalog (id, page_name) VALUES (?, ?)", "0", "TC_TT0",
	)
	require.NoError(t, err)
	db1.Close()

	db2, err := Open(dbPath)
	require.NoError(t, err)
	defer db2.Close()

	info, err := os.Stat(dbPath + ".bak")
	require.NoError(t, err, "Backup file should exist after second Open")
	require.False(t, info.IsDir())
	require.Greater(t, info.Size(), int64(0))
}

// TestOpen_WALMode verifies that WAL mode is enabled via PRAGMA query.
func TestOpen_WALMode(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	var journalMode string
	err = db.conn.QueryRow("PRAGMA journal_mode").Scan(&journalMode)
	require.NoError(t, err)
	require.Equal(t, "wal", journalMode)
}

func TestOpenMemory(t *testing.T) {
	db, err := OpenMemory()
	require.NoError(t, err)
	defer db.Close()

	var name string
	err = db.conn.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='testconfig'",
	).Scan(&name)
	require.NoError(t, err)
}

func TestProperty_RoundTrip(t *testing.T) {
	db, err := OpenMemory()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	_, ok, err := db.Property(ctx, "SOME_PROP")
	require.NoError(t, err)
	require.False(t, ok, "unset property should report not found")

	require.NoError(t, db.SetProperty(ctx, "SOME_PROP", "42"))

	value, ok, err := db.Property(ctx, "SOME_PROP")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "42", value)

	// Overwrite
	require.NoError(t, db.SetProperty(ctx, "SOME_PROP", "43"))
	value, _, err = db.Property(ctx, "SOME_PROP")
	require.NoError(t, err)
	require.Equal(t, "43", value)
}

func TestNextID_StartsAtZeroAndAdvances(t *testing.T) {
	db, err := OpenMemory()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	var got []int
	for i := 0; i < 3; i++ {
		err = db.WithTx(ctx, func(tx *sql.Tx) error {
			id, err := NextID(tx, PropNextCatalogID)
			if err != nil {
				return err
			}
			got = append(got, id)
			return nil
		})
		require.NoError(t, err)
	}
	require.Equal(t, []int{0, 1, 2}, got)

	// Counters are independent
	err = db.WithTx(ctx, func(tx *sql.Tx) error {
		id, err := NextID(tx, PropNextPlanID)
		require.NoError(t, err)
		require.Equal(t, 0, id)
		return nil
	})
	require.NoError(t, err)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db, err := OpenMemory()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	wantErr := os.ErrInvalid
	err = db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec("INSERT INTO testcatalog (id, page_name) VALUES (?, ?)", "9", "TC_TT9")
		require.NoError(t, err)
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)

	var count int
	require.NoError(t, db.conn.QueryRow("SELECT COUNT(*) FROM testcatalog").Scan(&count))
	require.Equal(t, 0, count, "rolled back insert should not be visible")
}
