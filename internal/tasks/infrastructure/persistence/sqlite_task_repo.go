package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sharedDomain "github.com/felixgeelhaar/tracklane/internal/shared/domain"
	"github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/database"
	sharedPersistence "github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/persistence"
	"github.com/felixgeelhaar/tracklane/internal/tasks/domain"
	"github.com/google/uuid"
)

// SQLiteTaskRepository implements domain.Repository using SQLite.
type SQLiteTaskRepository struct {
	db *sql.DB
}

// NewSQLiteTaskRepository creates a new SQLite task repository.
func NewSQLiteTaskRepository(db *sql.DB) *SQLiteTaskRepository {
	return &SQLiteTaskRepository{db: db}
}

func (r *SQLiteTaskRepository) Save(ctx context.Context, task *domain.Task) error {
	var sourceRuleID sql.NullString
	if id := task.SourceRuleID(); id != nil {
		sourceRuleID = sql.NullString{String: id.String(), Valid: true}
	}

	exec := sharedPersistence.SQLiteExecutor(ctx, r.db)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			status = excluded.status,
			due_at = excluded.due_at,
			updated_at = excluded.updated_at
	`,
		task.ID().String(),
		task.OwnerID().String(),
		task.Title(),
		task.Description(),
		string(task.Status()),
		sharedPersistence.FormatSQLiteTime(task.DueAt()),
		sourceRuleID,
		sharedPersistence.FormatSQLiteTime(task.CreatedAt()),
		sharedPersistence.FormatSQLiteTime(task.UpdatedAt()),
	)
	if database.IsUniqueViolation(err) {
		return domain.ErrDuplicateOccurrence
	}
	if err != nil {
		return err
	}
	task.SetVersion(task.Version() + 1)
	return nil
}

func (r *SQLiteTaskRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	exec := sharedPersistence.SQLiteExecutor(ctx, r.db)
	row := exec.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id.String())
	return scanSQLiteTask(row)
}

func (r *SQLiteTaskRepository) FindBySource(ctx context.Context, ruleID uuid.UUID, dueAt time.Time) (*domain.Task, error) {
	exec := sharedPersistence.SQLiteExecutor(ctx, r.db)
	row := exec.QueryRowContext(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE source_rule_id = ? AND due_at = ?
	`, ruleID.String(), sharedPersistence.FormatSQLiteTime(dueAt))
	return scanSQLiteTask(row)
}

func (r *SQLiteTaskRepository) FindByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*domain.Task, error) {
	if limit <= 0 {
		limit = 100
	}
	exec := sharedPersistence.SQLiteExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE owner_id = ? ORDER BY due_at DESC LIMIT ?
	`, ownerID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanSQLiteTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTask(row rowScanner) (*domain.Task, error) {
	var (
		id, ownerID, title, desc, status string
		dueAt, created, updated          string
		sourceRuleID                     sql.NullString
	)
	if err := row.Scan(&id, &ownerID, &title, &desc, &status, &dueAt, &sourceRuleID, &created, &updated); err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, err
	}

	taskID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse task id: %w", err)
	}
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return nil, fmt.Errorf("parse owner id: %w", err)
	}
	var source *uuid.UUID
	if sourceRuleID.Valid {
		parsed, err := uuid.Parse(sourceRuleID.String)
		if err != nil {
			return nil, fmt.Errorf("parse source rule id: %w", err)
		}
		source = &parsed
	}

	due, err := sharedPersistence.ParseSQLiteTime(dueAt)
	if err != nil {
		return nil, err
	}
	createdAt, err := sharedPersistence.ParseSQLiteTime(created)
	if err != nil {
		return nil, err
	}
	updatedAt, err := sharedPersistence.ParseSQLiteTime(updated)
	if err != nil {
		return nil, err
	}

	base := sharedDomain.RehydrateBaseAggregateRoot(sharedDomain.RehydrateBaseEntity(taskID, createdAt, updatedAt), 1)
	return domain.RehydrateTask(base, owner, title, desc, domain.Status(status), due, source), nil
}
