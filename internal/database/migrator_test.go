package database

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/oa-compliance-service/migrations"
)

// TestNewMigrator_Validation tests the input validation for NewMigrator.
func TestNewMigrator_Validation(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("fails with nil database", func(t *testing.T) {
		migrator, err := NewMigrator(nil, "/some/path", logger)
		assert.Error(t, err)
		assert.Nil(t, migrator)
		assert.Contains(t, err.Error(), "database is required")
	})

	t.Run("fails with nil pool", func(t *testing.T) {
		db := &DB{pool: nil}
		migrator, err := NewMigrator(db, "/some/path", logger)
		assert.Error(t, err)
		assert.Nil(t, migrator)
		assert.Contains(t, err.Error(), "database pool not initialized")
	})

	t.Run("fails with invalid migrations path", func(t *testing.T) {
		if testing.Short() {
			t.Skip("Skipping integration test in short mode")
		}

		db := setupTestDB(t)
		defer db.Close()

		migrator, err := NewMigrator(db, "/nonexistent/path", logger)
		assert.Error(t, err)
		assert.Nil(t, migrator)
		assert.Contains(t, err.Error(), "migrations path validation failed")
	})
}

// TestEmbeddedMigrations checks that every up migration has a matching down
// migration and that the embedded set matches the directory on disk.
func TestEmbeddedMigrations(t *testing.T) {
	embedded, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, embedded)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, name := range embedded {
		switch filepath.Ext(name[:len(name)-len(".sql")]) {
		case ".up":
			ups[name[:len(name)-len(".up.sql")]] = true
		case ".down":
			downs[name[:len(name)-len(".down.sql")]] = true
		}
	}
	assert.Equal(t, ups, downs)
	assert.True(t, ups["000001_init"])
	assert.True(t, ups["000002_unique_licence_links"])

	onDisk, err := filepath.Glob(filepath.Join(getMigrationsPath(t), "*.sql"))
	require.NoError(t, err)
	assert.Len(t, onDisk, len(embedded))
}

// TestMigrator_Lifecycle runs the migrations up, steps back and forward, and
// checks the version bookkeeping against a real database.
func TestMigrator_Lifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Close()

	logger := zerolog.Nop()

	for name, path := range map[string]string{
		"embedded":  "",
		"directory": getMigrationsPath(t),
	} {
		t.Run(name, func(t *testing.T) {
			migrator, err := NewMigrator(db, path, logger)
			require.NoError(t, err)
			defer migrator.Close()

			require.NoError(t, migrator.Up())
			// A second Up is a no-op.
			require.NoError(t, migrator.Up())

			version, dirty, err := migrator.Version()
			require.NoError(t, err)
			assert.False(t, dirty)
			assert.GreaterOrEqual(t, version, uint(1))

			require.NoError(t, migrator.Steps(1))
			require.NoError(t, migrator.Force(int(version)))
		})
	}
}

// TestMigrator_Close tests the Close method.
func TestMigrator_Close(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Close()

	migrator, err := NewMigrator(db, "", zerolog.Nop())
	require.NoError(t, err)
	assert.NoError(t, migrator.Close())
}

// getMigrationsPath returns the path to the migrations directory.
func getMigrationsPath(t *testing.T) string {
	t.Helper()

	cwd, err := os.Getwd()
	require.NoError(t, err)

	// internal/database -> project root
	migrationsPath := filepath.Join(cwd, "..", "..", "migrations")
	if _, err := os.Stat(migrationsPath); os.IsNotExist(err) {
		t.Skipf("Skipping test: migrations directory not found at %s", migrationsPath)
	}

	return migrationsPath
}
