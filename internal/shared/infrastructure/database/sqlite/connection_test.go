package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/database"
)

func TestNewConnection(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "tracklane.db")

	conn, err := database.NewConnection(ctx, database.Config{Driver: database.DriverSQLite, SQLitePath: path})
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, database.DriverSQLite, conn.Driver())
	require.NoError(t, conn.Ping(ctx))

	db := conn.(*Connection).DB()
	_, err = db.ExecContext(ctx, `CREATE TABLE probe (id TEXT PRIMARY KEY)`)
	require.NoError(t, err)

	var mode string
	require.NoError(t, db.QueryRowContext(ctx, `PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestOpen_InMemory(t *testing.T) {
	conn, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	defer conn.Close()

	var one int
	require.NoError(t, conn.DB().QueryRow(`SELECT 1`).Scan(&one))
	assert.Equal(t, 1, one)
}
