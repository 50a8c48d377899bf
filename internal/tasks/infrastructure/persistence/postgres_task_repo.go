package persistence

import (
	"context"
	"time"

	sharedDomain "github.com/felixgeelhaar/tracklane/internal/shared/domain"
	"github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/database"
	sharedPersistence "github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/persistence"
	"github.com/felixgeelhaar/tracklane/internal/tasks/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresTaskRepository implements domain.Repository using PostgreSQL.
type PostgresTaskRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTaskRepository creates a new PostgreSQL task repository.
func NewPostgresTaskRepository(pool *pgxpool.Pool) *PostgresTaskRepository {
	return &PostgresTaskRepository{pool: pool}
}

const taskColumns = `id, owner_id, title, description, status, due_at, source_rule_id, created_at, updated_at`

func (r *PostgresTaskRepository) Save(ctx context.Context, task *domain.Task) error {
	exec := sharedPersistence.Executor(ctx, r.pool)
	_, err := exec.Exec(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			due_at = EXCLUDED.due_at,
			updated_at = EXCLUDED.updated_at
	`,
		task.ID(),
		task.OwnerID(),
		task.Title(),
		task.Description(),
		string(task.Status()),
		task.DueAt(),
		task.SourceRuleID(),
		task.CreatedAt(),
		task.UpdatedAt(),
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

func (r *PostgresTaskRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	exec := sharedPersistence.Executor(ctx, r.pool)
	row := exec.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	return scanPostgresTask(row)
}

func (r *PostgresTaskRepository) FindBySource(ctx context.Context, ruleID uuid.UUID, dueAt time.Time) (*domain.Task, error) {
	exec := sharedPersistence.Executor(ctx, r.pool)
	row := exec.QueryRow(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE source_rule_id = $1 AND due_at = $2
	`, ruleID, dueAt)
	return scanPostgresTask(row)
}

func (r *PostgresTaskRepository) FindByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*domain.Task, error) {
	if limit <= 0 {
		limit = 100
	}
	exec := sharedPersistence.Executor(ctx, r.pool)
	rows, err := exec.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE owner_id = $1 ORDER BY due_at DESC LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanPostgresTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func scanPostgresTask(row pgx.Row) (*domain.Task, error) {
	var (
		id, ownerID         uuid.UUID
		title, desc, status string
		dueAt, created, upd time.Time
		sourceRuleID        *uuid.UUID
	)
	if err := row.Scan(&id, &ownerID, &title, &desc, &status, &dueAt, &sourceRuleID, &created, &upd); err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, err
	}

	base := sharedDomain.RehydrateBaseAggregateRoot(sharedDomain.RehydrateBaseEntity(id, created, upd), 1)
	return domain.RehydrateTask(base, ownerID, title, desc, domain.Status(status), dueAt.UTC(), sourceRuleID), nil
}
