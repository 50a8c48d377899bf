package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/database"
)

func init() {
	database.RegisterDriver(database.DriverSQLite, NewConnection)
}

// pragmas applied to every file-backed database.
// WAL lets the API server read while the sweep writes; busy_timeout rides out
// the single-writer lock instead of failing immediately.
const pragmas = "_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

// Connection wraps *sql.DB for the modernc SQLite driver.
type Connection struct {
	db *sql.DB
}

// NewConnection opens (creating if needed) the SQLite database at cfg.SQLitePath.
func NewConnection(ctx context.Context, cfg database.Config) (database.Connection, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = strings.TrimPrefix(cfg.URL, "sqlite://")
	}
	if path == "" {
		path = database.DefaultSQLitePath()
	}
	if err := database.EnsureDirectory(path); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	return Open(ctx, withPragmas(path))
}

// Open opens a SQLite database from a raw DSN, e.g. ":memory:".
func Open(ctx context.Context, dsn string) (*Connection, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	return &Connection{db: db}, nil
}

func withPragmas(path string) string {
	if strings.Contains(path, "?") {
		return path + "&" + pragmas
	}
	return path + "?" + pragmas
}

// DB returns the underlying handle used by the SQLite repositories.
func (c *Connection) DB() *sql.DB { return c.db }

func (c *Connection) Driver() database.Driver { return database.DriverSQLite }

func (c *Connection) Close() error { return c.db.Close() }

func (c *Connection) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }
