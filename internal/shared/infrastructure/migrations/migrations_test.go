package migrations

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func TestRunSQLiteMigrations(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, RunSQLiteMigrations(ctx, db))
	// Idempotent.
	require.NoError(t, RunSQLiteMigrations(ctx, db))

	for _, table := range []string{"recurrence_rules", "tasks", "notifications", "outbox"} {
		var name string
		err := db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}

func TestUpFilesSorted(t *testing.T) {
	for _, dir := range []string{"sqlite", "postgres"} {
		fsys := sqliteFS
		if dir == "postgres" {
			fsys = postgresFS
		}
		files, err := upFiles(fsys, dir)
		require.NoError(t, err)
		require.NotEmpty(t, files)
		assert.IsIncreasing(t, files)
	}
}
