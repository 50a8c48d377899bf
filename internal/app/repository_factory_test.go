package app

import (
	"context"
	"testing"

	"github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/database/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bareConnection reports a driver but exposes no native handle.
type bareConnection struct {
	driver database.Driver
}

func (b bareConnection) Ping(context.Context) error { return nil }
func (b bareConnection) Close() error               { return nil }
func (b bareConnection) Driver() database.Driver    { return b.driver }

func TestRepositoryFactory_SQLite(t *testing.T) {
	conn, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	factory := NewRepositoryFactory(conn)
	assert.Equal(t, database.DriverSQLite, factory.Driver())
	assert.Same(t, conn, factory.Connection())

	rules, err := factory.RuleRepository()
	require.NoError(t, err)
	assert.NotNil(t, rules)

	tasks, err := factory.TaskRepository()
	require.NoError(t, err)
	assert.NotNil(t, tasks)

	notifications, err := factory.NotificationRepository()
	require.NoError(t, err)
	assert.NotNil(t, notifications)

	outboxRepo, err := factory.OutboxRepository()
	require.NoError(t, err)
	assert.NotNil(t, outboxRepo)

	uow, err := factory.UnitOfWork()
	require.NoError(t, err)
	assert.NotNil(t, uow)
}

func TestRepositoryFactory_MissingHandle(t *testing.T) {
	t.Run("postgres without pool", func(t *testing.T) {
		factory := NewRepositoryFactory(bareConnection{driver: database.DriverPostgres})
		_, err := factory.RuleRepository()
		assert.ErrorContains(t, err, "PostgreSQL pool")
		_, err = factory.UnitOfWork()
		assert.ErrorContains(t, err, "PostgreSQL pool")
	})

	t.Run("sqlite without db", func(t *testing.T) {
		factory := NewRepositoryFactory(bareConnection{driver: database.DriverSQLite})
		_, err := factory.NotificationRepository()
		assert.ErrorContains(t, err, "SQLite database")
	})

	t.Run("unknown driver", func(t *testing.T) {
		factory := NewRepositoryFactory(bareConnection{driver: "oracle"})
		_, err := factory.OutboxRepository()
		assert.ErrorContains(t, err, "unsupported driver")
	})
}
