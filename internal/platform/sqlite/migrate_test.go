package sqlite

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMigrateURL(t *testing.T) {
	url, err := BuildMigrateURL(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(url, "sqlite:///"), "url: %s", url)
	assert.True(t, strings.HasSuffix(url, "/store.db"), "url: %s", url)
	assert.NotContains(t, url, `\`)
}

func writeMigration(t *testing.T, dir, name, stmt string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(stmt), 0644))
}

func TestApplyMigrations(t *testing.T) {
	dir := t.TempDir()
	migDir := filepath.Join(dir, "migrations")
	require.NoError(t, os.Mkdir(migDir, 0755))

	writeMigration(t, migDir, "000001_create_items.up.sql",
		`CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL);`)
	writeMigration(t, migDir, "000001_create_items.down.sql",
		`DROP TABLE items;`)

	dbPath := filepath.Join(dir, "store.db")
	migrationsPath := "file://" + filepath.ToSlash(migDir)

	require.NoError(t, ApplyMigrations(dbPath, migrationsPath))

	// Idempotent: a second run hits ErrNoChange and still succeeds.
	require.NoError(t, ApplyMigrations(dbPath, migrationsPath))
}

func TestApplyMigrations_MissingSource(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "store.db")
	err := ApplyMigrations(dbPath, "file:///nonexistent/migrations")
	assert.Error(t, err)
}
