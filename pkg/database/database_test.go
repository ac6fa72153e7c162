package database

import (
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "test.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDSN(t *testing.T) {
	dsn := DSN("/tmp/app.db", 2*time.Second)

	assert.True(t, strings.HasPrefix(dsn, "file:/tmp/app.db?"))
	assert.Contains(t, dsn, "_journal_mode=WAL")
	assert.Contains(t, dsn, "_busy_timeout=2000")
	assert.Contains(t, dsn, "_foreign_keys=on")
	assert.Contains(t, dsn, "_txlock=immediate")

	assert.Contains(t, DSN("x.db", 0), "_busy_timeout=5000")
}

func TestLoadMigrations_SortsAndNames(t *testing.T) {
	fsys := fstest.MapFS{
		"002_add_index.sql":      {Data: []byte("CREATE INDEX i ON t(a);")},
		"001_initial_schema.sql": {Data: []byte("CREATE TABLE t (a INTEGER);")},
		"README.md":              {Data: []byte("ignored")},
	}

	migrations, err := LoadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "initial_schema", migrations[0].Name)
	assert.Equal(t, 2, migrations[1].Version)
	assert.Equal(t, "add_index", migrations[1].Name)
}

func TestLoadMigrations_RejectsBadNames(t *testing.T) {
	_, err := LoadMigrations(fstest.MapFS{"schema.sql": {Data: []byte("")}})
	assert.Error(t, err)

	_, err = LoadMigrations(fstest.MapFS{
		"001_a.sql": {Data: []byte("")},
		"001_b.sql": {Data: []byte("")},
	})
	assert.Error(t, err)
}

func TestRunMigrations_EmbeddedIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	m := NewMigrator(db, zap.NewNop())

	applied, err := m.RunMigrations(EmbeddedMigrations())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, applied, 1)

	applied, err = m.RunMigrations(EmbeddedMigrations())
	require.NoError(t, err)
	assert.Equal(t, 0, applied)

	for _, table := range []string{"companies", "users", "expenses", "approvals", "company_approvers", "approval_rules", "audit_logs"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %s", table)
	}
}

func TestRunMigrations_FailedMigrationIsNotRecorded(t *testing.T) {
	db := openTestDB(t)
	m := NewMigrator(db, zap.NewNop())

	_, err := m.RunMigrations(fstest.MapFS{
		"001_ok.sql":     {Data: []byte("CREATE TABLE ok (id INTEGER);")},
		"002_broken.sql": {Data: []byte("CREATE TABL nope;")},
	})
	require.Error(t, err)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 1, count)
}
