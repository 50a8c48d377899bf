package app

import (
	"database/sql"
	"fmt"

	notificationDomain "github.com/felixgeelhaar/tracklane/internal/notifications/domain"
	notificationPersistence "github.com/felixgeelhaar/tracklane/internal/notifications/infrastructure/persistence"
	recurrenceDomain "github.com/felixgeelhaar/tracklane/internal/recurrence/domain"
	recurrencePersistence "github.com/felixgeelhaar/tracklane/internal/recurrence/infrastructure/persistence"
	sharedApplication "github.com/felixgeelhaar/tracklane/internal/shared/application"
	"github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/outbox"
	sharedPersistence "github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/persistence"
	taskDomain "github.com/felixgeelhaar/tracklane/internal/tasks/domain"
	taskPersistence "github.com/felixgeelhaar/tracklane/internal/tasks/infrastructure/persistence"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryFactory creates driver-specific repositories for one connection.
type RepositoryFactory struct {
	conn   database.Connection
	driver database.Driver
}

// NewRepositoryFactory creates a factory for the given connection.
func NewRepositoryFactory(conn database.Connection) *RepositoryFactory {
	return &RepositoryFactory{
		conn:   conn,
		driver: conn.Driver(),
	}
}

// RuleRepository returns the recurrence rule repository.
func (f *RepositoryFactory) RuleRepository() (recurrenceDomain.Repository, error) {
	switch f.driver {
	case database.DriverPostgres:
		pool, err := f.getPostgresPool()
		if err != nil {
			return nil, err
		}
		return recurrencePersistence.NewPostgresRuleRepository(pool), nil
	case database.DriverSQLite:
		db, err := f.getSQLiteDB()
		if err != nil {
			return nil, err
		}
		return recurrencePersistence.NewSQLiteRuleRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", f.driver)
	}
}

// TaskRepository returns the task repository.
func (f *RepositoryFactory) TaskRepository() (taskDomain.Repository, error) {
	switch f.driver {
	case database.DriverPostgres:
		pool, err := f.getPostgresPool()
		if err != nil {
			return nil, err
		}
		return taskPersistence.NewPostgresTaskRepository(pool), nil
	case database.DriverSQLite:
		db, err := f.getSQLiteDB()
		if err != nil {
			return nil, err
		}
		return taskPersistence.NewSQLiteTaskRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", f.driver)
	}
}

// NotificationRepository returns the notification inbox repository.
func (f *RepositoryFactory) NotificationRepository() (notificationDomain.Repository, error) {
	switch f.driver {
	case database.DriverPostgres:
		pool, err := f.getPostgresPool()
		if err != nil {
			return nil, err
		}
		return notificationPersistence.NewPostgresNotificationRepository(pool), nil
	case database.DriverSQLite:
		db, err := f.getSQLiteDB()
		if err != nil {
			return nil, err
		}
		return notificationPersistence.NewSQLiteNotificationRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", f.driver)
	}
}

// OutboxRepository returns the transactional outbox repository.
func (f *RepositoryFactory) OutboxRepository() (outbox.Repository, error) {
	switch f.driver {
	case database.DriverPostgres:
		pool, err := f.getPostgresPool()
		if err != nil {
			return nil, err
		}
		return outbox.NewPostgresRepository(pool), nil
	case database.DriverSQLite:
		db, err := f.getSQLiteDB()
		if err != nil {
			return nil, err
		}
		return outbox.NewSQLiteRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", f.driver)
	}
}

// UnitOfWork returns a unit of work bound to the connection.
func (f *RepositoryFactory) UnitOfWork() (sharedApplication.UnitOfWork, error) {
	switch f.driver {
	case database.DriverPostgres:
		pool, err := f.getPostgresPool()
		if err != nil {
			return nil, err
		}
		return sharedPersistence.NewPostgresUnitOfWork(pool), nil
	case database.DriverSQLite:
		db, err := f.getSQLiteDB()
		if err != nil {
			return nil, err
		}
		return sharedPersistence.NewSQLiteUnitOfWork(db), nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", f.driver)
	}
}

// Driver returns the database driver type.
func (f *RepositoryFactory) Driver() database.Driver {
	return f.driver
}

// Connection returns the underlying database connection.
func (f *RepositoryFactory) Connection() database.Connection {
	return f.conn
}

func (f *RepositoryFactory) getPostgresPool() (*pgxpool.Pool, error) {
	pooler, ok := f.conn.(interface{ Pool() *pgxpool.Pool })
	if !ok {
		return nil, fmt.Errorf("connection does not provide a PostgreSQL pool")
	}
	return pooler.Pool(), nil
}

func (f *RepositoryFactory) getSQLiteDB() (*sql.DB, error) {
	dber, ok := f.conn.(interface{ DB() *sql.DB })
	if !ok {
		return nil, fmt.Errorf("connection does not provide a SQLite database")
	}
	return dber.DB(), nil
}
