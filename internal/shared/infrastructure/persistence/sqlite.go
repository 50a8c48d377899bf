package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type sqliteTxKey struct{}

// SQLiteTxInfo is the *sql.Tx in context and whether this scope opened it.
type SQLiteTxInfo struct {
	Tx    *sql.Tx
	Owned bool
}

// WithSQLiteTx stores a SQLite transaction in ctx.
func WithSQLiteTx(ctx context.Context, tx *sql.Tx, owned bool) context.Context {
	return context.WithValue(ctx, sqliteTxKey{}, SQLiteTxInfo{Tx: tx, Owned: owned})
}

// SQLiteTxInfoFromContext returns the SQLite transaction in ctx, if any.
func SQLiteTxInfoFromContext(ctx context.Context) (SQLiteTxInfo, bool) {
	info, ok := ctx.Value(sqliteTxKey{}).(SQLiteTxInfo)
	if !ok || info.Tx == nil {
		return SQLiteTxInfo{}, false
	}
	return info, true
}

// SQLExecutor is the query surface shared by *sql.DB and *sql.Tx.
type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteExecutor returns the transaction in ctx, falling back to db.
// The SQLite pool holds a single connection, so repositories must use this
// inside a unit of work or they would block on the transaction's connection.
func SQLiteExecutor(ctx context.Context, db *sql.DB) SQLExecutor {
	if info, ok := SQLiteTxInfoFromContext(ctx); ok {
		return info.Tx
	}
	return db
}

// SQLiteUnitOfWork opens database/sql transactions with the same nesting
// rules as PostgresUnitOfWork.
type SQLiteUnitOfWork struct {
	db *sql.DB
}

// NewSQLiteUnitOfWork creates a unit of work over db.
func NewSQLiteUnitOfWork(db *sql.DB) *SQLiteUnitOfWork {
	return &SQLiteUnitOfWork{db: db}
}

func (u *SQLiteUnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	if info, ok := SQLiteTxInfoFromContext(ctx); ok {
		return WithSQLiteTx(ctx, info.Tx, false), nil
	}
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return WithSQLiteTx(ctx, tx, true), nil
}

func (u *SQLiteUnitOfWork) Commit(ctx context.Context) error {
	info, ok := SQLiteTxInfoFromContext(ctx)
	if !ok {
		return ErrNoTransaction
	}
	if !info.Owned {
		return nil
	}
	return info.Tx.Commit()
}

func (u *SQLiteUnitOfWork) Rollback(ctx context.Context) error {
	info, ok := SQLiteTxInfoFromContext(ctx)
	if !ok {
		return ErrNoTransaction
	}
	if !info.Owned {
		return nil
	}
	return info.Tx.Rollback()
}

// sqliteTimeLayout is fixed-width so stored timestamps compare correctly as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatSQLiteTime encodes t as sortable UTC text.
func FormatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

// FormatSQLiteTimePtr encodes an optional timestamp as a nullable column value.
func FormatSQLiteTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: FormatSQLiteTime(*t), Valid: true}
}

// ParseSQLiteTime decodes a timestamp written by FormatSQLiteTime.
// RFC 3339 values written by other tools are accepted as well.
func ParseSQLiteTime(value string) (time.Time, error) {
	if t, err := time.Parse(sqliteTimeLayout, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse sqlite timestamp %q: %w", value, err)
	}
	return t.UTC(), nil
}

// ParseSQLiteTimePtr decodes a nullable timestamp column.
func ParseSQLiteTimePtr(value sql.NullString) (*time.Time, error) {
	if !value.Valid {
		return nil, nil
	}
	t, err := ParseSQLiteTime(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
