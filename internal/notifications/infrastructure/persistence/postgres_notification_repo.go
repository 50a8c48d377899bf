package persistence

import (
	"context"
	"time"

	"github.com/felixgeelhaar/tracklane/internal/notifications/domain"
	sharedDomain "github.com/felixgeelhaar/tracklane/internal/shared/domain"
	"github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/database"
	sharedPersistence "github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultListLimit = 50

const notificationColumns = `id, recipient_id, sender_id, type, resource_type, resource_id, project_id, message, read_at, created_at, updated_at`

// PostgresNotificationRepository implements domain.Repository using PostgreSQL.
type PostgresNotificationRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresNotificationRepository creates a new PostgreSQL notification repository.
func NewPostgresNotificationRepository(pool *pgxpool.Pool) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{pool: pool}
}

func (r *PostgresNotificationRepository) Save(ctx context.Context, n *domain.Notification) error {
	exec := sharedPersistence.Executor(ctx, r.pool)
	_, err := exec.Exec(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			message = EXCLUDED.message,
			read_at = EXCLUDED.read_at,
			updated_at = EXCLUDED.updated_at
	`,
		n.ID(),
		n.RecipientID(),
		n.SenderID(),
		string(n.Type()),
		string(n.ResourceType()),
		n.ResourceID(),
		n.ProjectID(),
		n.Message(),
		n.ReadAt(),
		n.CreatedAt(),
		n.UpdatedAt(),
	)
	if err != nil {
		return err
	}
	n.SetVersion(n.Version() + 1)
	return nil
}

func (r *PostgresNotificationRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	exec := sharedPersistence.Executor(ctx, r.pool)
	row := exec.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
	return scanPostgresNotification(row)
}

func (r *PostgresNotificationRepository) FindByRecipient(ctx context.Context, recipientID uuid.UUID, filter domain.ListFilter) ([]*domain.Notification, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	exec := sharedPersistence.Executor(ctx, r.pool)
	rows, err := exec.Query(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE recipient_id = $1 AND (NOT $2 OR read_at IS NULL)
		ORDER BY created_at DESC, id
		LIMIT $3
	`, recipientID, filter.UnreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Notification
	for rows.Next() {
		n, err := scanPostgresNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *PostgresNotificationRepository) CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error) {
	exec := sharedPersistence.Executor(ctx, r.pool)
	var count int
	err := exec.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND read_at IS NULL
	`, recipientID).Scan(&count)
	return count, err
}

func (r *PostgresNotificationRepository) MarkAllRead(ctx context.Context, recipientID uuid.UUID, readAt time.Time) (int, error) {
	exec := sharedPersistence.Executor(ctx, r.pool)
	tag, err := exec.Exec(ctx, `
		UPDATE notifications SET read_at = $2, updated_at = $2
		WHERE recipient_id = $1 AND read_at IS NULL
	`, recipientID, readAt.UTC())
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanPostgresNotification(row pgx.Row) (*domain.Notification, error) {
	var (
		id, recipientID                 uuid.UUID
		senderID, resourceID, projectID *uuid.UUID
		kind, resourceType, message     string
		readAt                          *time.Time
		created, updated                time.Time
	)
	if err := row.Scan(&id, &recipientID, &senderID, &kind, &resourceType, &resourceID, &projectID, &message, &readAt, &created, &updated); err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrNotificationNotFound
		}
		return nil, err
	}
	if readAt != nil {
		utc := readAt.UTC()
		readAt = &utc
	}

	base := sharedDomain.RehydrateBaseAggregateRoot(sharedDomain.RehydrateBaseEntity(id, created.UTC(), updated.UTC()), 1)
	return domain.RehydrateNotification(base, domain.Params{
		RecipientID:  recipientID,
		SenderID:     senderID,
		Type:         domain.Type(kind),
		ResourceType: domain.ResourceType(resourceType),
		ResourceID:   resourceID,
		ProjectID:    projectID,
		Message:      message,
	}, readAt), nil
}
