package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMigrator_Validation(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("fails with nil database", func(t *testing.T) {
		migrator, err := NewMigrator(nil, "/some/path", logger)
		assert.Error(t, err)
		assert.Nil(t, migrator)
		assert.Contains(t, err.Error(), "database is required")
	})

	t.Run("fails with nil pool", func(t *testing.T) {
		migrator, err := NewMigrator(&DB{}, "/some/path", logger)
		assert.Error(t, err)
		assert.Nil(t, migrator)
		assert.Contains(t, err.Error(), "database pool not initialized")
	})

	t.Run("fails with empty migrations path", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		migrator, err := NewMigrator(db, "", logger)
		assert.Error(t, err)
		assert.Nil(t, migrator)
		assert.Contains(t, err.Error(), "migrations path is required")
	})

	t.Run("fails with missing migrations path", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		migrator, err := NewMigrator(db, "/nonexistent/path", logger)
		assert.Error(t, err)
		assert.Nil(t, migrator)
		assert.Contains(t, err.Error(), "migrations path validation failed")
	})
}

func TestMigrator_UpAndVersion(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Close()

	migrator, err := NewMigrator(db, catalogMigrationsPath(t), zerolog.Nop())
	require.NoError(t, err)
	defer migrator.Close()

	t.Run("up applies or confirms migrations", func(t *testing.T) {
		assert.NoError(t, migrator.Up())
	})

	t.Run("version is clean after up", func(t *testing.T) {
		version, dirty, err := migrator.Version()
		require.NoError(t, err)
		assert.False(t, dirty, "schema must not be dirty after a clean up")
		assert.GreaterOrEqual(t, version, uint(1))
	})

	t.Run("steps past the newest migration is a no-op", func(t *testing.T) {
		assert.NoError(t, migrator.Steps(1))
	})
}

func TestMigrator_Close(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Close()

	migrator, err := NewMigrator(db, catalogMigrationsPath(t), zerolog.Nop())
	require.NoError(t, err)

	assert.NoError(t, migrator.Close())
}

// catalogMigrationsPath resolves the repo's migrations directory relative to
// this package.
func catalogMigrationsPath(t *testing.T) string {
	t.Helper()

	cwd, err := os.Getwd()
	require.NoError(t, err)

	path := filepath.Join(cwd, "..", "..", "migrations")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Skipf("Skipping test: migrations directory not found at %s", path)
	}

	return path
}
