package migrate

import (
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

var testMigrations = fstest.MapFS{
	"sql/001_create_runs.up.sql":    {Data: []byte("CREATE TABLE runs (id INTEGER PRIMARY KEY, station TEXT);")},
	"sql/001_create_runs.down.sql":  {Data: []byte("DROP TABLE runs;")},
	"sql/002_add_notes.up.sql":      {Data: []byte("CREATE TABLE notes (run_id INTEGER, body TEXT);\nCREATE INDEX notes_run ON notes (run_id);")},
	"sql/002_add_notes.down.sql":    {Data: []byte("DROP TABLE notes;")},
	"sql/README.md":                 {Data: []byte("ignored")},
	"sql/003_missing_down.up.sql":   {Data: []byte("CREATE TABLE extra (x INTEGER);")},
	"other/001_not_loaded.up.sql":   {Data: []byte("CREATE TABLE nope (x INTEGER);")},
	"other/001_not_loaded.down.sql": {Data: []byte("DROP TABLE nope;")},
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n))
	return n == 1
}

func TestGetMigrations(t *testing.T) {
	got, err := NewFSProvider(testMigrations, "sql", "").GetMigrations()
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].Version)
	assert.Equal(t, "create runs", got[0].Name)
	assert.Contains(t, got[0].Down, "DROP TABLE runs")
	assert.Equal(t, 3, got[2].Version)
	assert.Empty(t, got[2].Down)
}

func TestMigrateUpAndDown(t *testing.T) {
	db := openDB(t)
	m := NewMigrator(db, NewFSProvider(testMigrations, "sql", ""), nil)

	require.NoError(t, m.MigrateUp())
	v, err := m.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.True(t, tableExists(t, db, "notes"))
	assert.False(t, tableExists(t, db, "nope"))

	// Applying again is a no-op.
	require.NoError(t, m.MigrateUp())

	// Version 3 has no down migration.
	assert.Error(t, m.MigrateTo(1))

	require.NoError(t, m.MigrateTo(3))
	v, err = m.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestMigrateDown(t *testing.T) {
	fsys := fstest.MapFS{}
	for name, f := range testMigrations {
		if name != "sql/003_missing_down.up.sql" {
			fsys[name] = f
		}
	}

	db := openDB(t)
	m := NewMigrator(db, NewFSProvider(fsys, "sql", "versions"), nil)
	require.NoError(t, m.MigrateUp())
	require.NoError(t, m.MigrateTo(1))

	v, err := m.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.True(t, tableExists(t, db, "runs"))
	assert.False(t, tableExists(t, db, "notes"))

	require.NoError(t, m.MigrateTo(0))
	assert.False(t, tableExists(t, db, "runs"))
	assert.True(t, tableExists(t, db, "versions"))
}
