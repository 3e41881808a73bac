package database

import (
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "data", "test.db"), MaxOpenConns: 4}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDSN(t *testing.T) {
	dsn := DSN(Config{Path: "/tmp/x.db", BusyTimeout: 2 * time.Second})
	assert.Contains(t, dsn, "file:/tmp/x.db?")
	assert.Contains(t, dsn, "_txlock=immediate")
	assert.Contains(t, dsn, "_journal_mode=WAL")
	assert.Contains(t, dsn, "_busy_timeout=2000")

	assert.Contains(t, DSN(Config{Path: "y.db"}), "_busy_timeout=5000")
}

func TestLoadMigrations_OrderedByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"010_later.sql":  {Data: []byte("SELECT 1;")},
		"002_second.sql": {Data: []byte("SELECT 2;")},
		"README.md":      {Data: []byte("ignored")},
	}

	migrations, err := LoadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 2, migrations[0].Version)
	assert.Equal(t, "second", migrations[0].Name)
	assert.Equal(t, 10, migrations[1].Version)
}

func TestLoadMigrations_BadFilename(t *testing.T) {
	_, err := LoadMigrations(fstest.MapFS{"initial.sql": {Data: []byte("SELECT 1;")}})
	assert.Error(t, err)
}

func TestRunMigrations_EmbeddedSchemaIsIdempotent(t *testing.T) {
	db := openTemp(t)
	m := NewMigrator(db, zap.NewNop())

	require.NoError(t, m.RunMigrations(Migrations()))
	require.NoError(t, m.RunMigrations(Migrations()))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 1, count)

	for _, table := range []string{"users", "invoices", "audit_entries", "messages"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	_, err := LoadMigrations(fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"1_b.sql":   {Data: []byte("SELECT 2;")},
	})
	assert.ErrorContains(t, err, "share version 1")
}

func TestRunMigrations_RejectsEditedMigration(t *testing.T) {
	db := openTemp(t)
	m := NewMigrator(db, zap.NewNop())

	original := fstest.MapFS{"001_notes.sql": {Data: []byte("CREATE TABLE notes (body TEXT);")}}
	require.NoError(t, m.RunMigrations(original))

	edited := fstest.MapFS{"001_notes.sql": {Data: []byte("CREATE TABLE notes (body TEXT, extra TEXT);")}}
	assert.ErrorContains(t, m.RunMigrations(edited), "modified after it was applied")
}

func TestRunMigrations_AppliesOnlyNewFiles(t *testing.T) {
	db := openTemp(t)
	m := NewMigrator(db, zap.NewNop())

	fsys := fstest.MapFS{"001_notes.sql": {Data: []byte("CREATE TABLE notes (body TEXT);")}}
	require.NoError(t, m.RunMigrations(fsys))

	fsys["002_tags.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE tags (name TEXT);")}
	require.NoError(t, m.RunMigrations(fsys))

	var versions []int
	rows, err := db.Query("SELECT version FROM schema_migrations ORDER BY version")
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var v int
		require.NoError(t, rows.Scan(&v))
		versions = append(versions, v)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []int{1, 2}, versions)
}
