// Package migrations embeds the schema for both supported backends.
// Every statement is idempotent (IF NOT EXISTS), so migrations run on each start.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed sqlite/*.sql
var sqliteFS embed.FS

//go:embed postgres/*.sql
var postgresFS embed.FS

// RunSQLiteMigrations applies the SQLite schema.
func RunSQLiteMigrations(ctx context.Context, db *sql.DB) error {
	return apply(sqliteFS, "sqlite", func(name, stmt string) error {
		_, err := db.ExecContext(ctx, stmt)
		return err
	})
}

// RunPostgresMigrations applies the PostgreSQL schema.
func RunPostgresMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	return apply(postgresFS, "postgres", func(name, stmt string) error {
		_, err := pool.Exec(ctx, stmt)
		return err
	})
}

func apply(fsys embed.FS, dir string, exec func(name, stmt string) error) error {
	files, err := upFiles(fsys, dir)
	if err != nil {
		return err
	}
	for _, file := range files {
		body, err := fsys.ReadFile(dir + "/" + file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if err := exec(file, string(body)); err != nil {
			return fmt.Errorf("execute migration %s: %w", file, err)
		}
	}
	return nil
}

func upFiles(fsys fs.ReadDirFS, dir string) ([]string, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}
