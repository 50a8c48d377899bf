package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Config selects and parameterises a backend.
type Config struct {
	// Driver forces a backend. Empty or "auto" detects it from URL.
	Driver Driver
	// URL is the PostgreSQL connection string.
	URL string
	// SQLitePath is the database file for SQLite. Defaults to ~/.tracklane/data.db.
	SQLitePath string
	// MaxConns caps the PostgreSQL pool size.
	MaxConns int
}

// Connection is an open database handle. Concrete types expose the native
// pool (postgres.Connection.Pool) or *sql.DB (sqlite.Connection.DB).
type Connection interface {
	Ping(ctx context.Context) error
	Close() error
	Driver() Driver
}

type opener func(ctx context.Context, cfg Config) (Connection, error)

var openers = map[Driver]opener{}

// RegisterDriver makes a backend available to NewConnection. Driver packages
// call it from init, so importing them for side effects is enough.
func RegisterDriver(driver Driver, open func(ctx context.Context, cfg Config) (Connection, error)) {
	openers[driver] = open
}

// NewConnection opens a connection for the configured backend.
func NewConnection(ctx context.Context, cfg Config) (Connection, error) {
	driver := cfg.Driver
	if driver == "" || driver == "auto" {
		driver = DetectDriver(cfg.URL)
	}
	open, ok := openers[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
	return open(ctx, cfg)
}

// DefaultSQLitePath returns the per-user database location.
func DefaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".tracklane", "data.db")
}

// EnsureDirectory creates the parent directory of path.
func EnsureDirectory(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
