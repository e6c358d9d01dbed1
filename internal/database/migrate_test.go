package database

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func columns(t *testing.T, conn *sql.DB, table string) []string {
	t.Helper()
	rows, err := conn.Query("SELECT name FROM pragma_table_info(?)", table)
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	return names
}

func TestOpenCreatesLedgerSchema(t *testing.T) {
	db := openTestDB(t)

	v, err := schemaVersion(db.conn)
	require.NoError(t, err)
	assert.Equal(t, latestVersion(), v)

	assert.Equal(t,
		[]string{"id", "kind", "started_at", "finished_at", "status", "collected", "briefs", "published", "entries", "error"},
		columns(t, db.conn, "runs"))
	assert.Equal(t, []string{"name", "holder", "expires_at"}, columns(t, db.conn, "locks"))

	var index string
	err = db.conn.QueryRow("SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = 'runs' AND name = 'idx_runs_kind_started'").Scan(&index)
	require.NoError(t, err)
}

func TestReopenKeepsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	db, err := Open(path)
	require.NoError(t, err)
	_, err = db.StartRun("run")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	runs, err := db.ListRuns("", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestMigrateAppliesOnlyPending(t *testing.T) {
	db := openTestDB(t)

	applied := 0
	saved := migrations
	t.Cleanup(func() { migrations = saved })
	migrations = append(append([]Migration(nil), saved...), Migration{
		Version:     latestVersion() + 1,
		Description: "run notes",
		Up: func(tx *sql.Tx) error {
			applied++
			_, err := tx.Exec("ALTER TABLE runs ADD COLUMN note TEXT")
			return err
		},
	})

	require.NoError(t, migrate(db.conn))
	require.NoError(t, migrate(db.conn))
	assert.Equal(t, 1, applied, "a migration runs once")
	assert.Contains(t, columns(t, db.conn, "runs"), "note")

	v, err := schemaVersion(db.conn)
	require.NoError(t, err)
	assert.Equal(t, latestVersion(), v)
}

func TestFailedMigrationLeavesVersion(t *testing.T) {
	db := openTestDB(t)
	before, err := schemaVersion(db.conn)
	require.NoError(t, err)

	saved := migrations
	t.Cleanup(func() { migrations = saved })
	migrations = append(append([]Migration(nil), saved...), Migration{
		Version:     before + 1,
		Description: "broken",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec("ALTER TABLE missing ADD COLUMN x TEXT")
			return err
		},
	})

	err = migrate(db.conn)
	assert.ErrorContains(t, err, "broken")

	after, err := schemaVersion(db.conn)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSchemaVersionOfEmptyFile(t *testing.T) {
	conn, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer conn.Close()

	v, err := schemaVersion(conn)
	require.NoError(t, err)
	assert.Zero(t, v)
}
