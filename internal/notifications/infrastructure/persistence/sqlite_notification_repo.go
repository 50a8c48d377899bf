package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/felixgeelhaar/tracklane/internal/notifications/domain"
	sharedDomain "github.com/felixgeelhaar/tracklane/internal/shared/domain"
	"github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/database"
	sharedPersistence "github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

// SQLiteNotificationRepository implements domain.Repository using SQLite.
type SQLiteNotificationRepository struct {
	db *sql.DB
}

// NewSQLiteNotificationRepository creates a new SQLite notification repository.
func NewSQLiteNotificationRepository(db *sql.DB) *SQLiteNotificationRepository {
	return &SQLiteNotificationRepository{db: db}
}

func (r *SQLiteNotificationRepository) Save(ctx context.Context, n *domain.Notification) error {
	exec := sharedPersistence.SQLiteExecutor(ctx, r.db)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			message = excluded.message,
			read_at = excluded.read_at,
			updated_at = excluded.updated_at
	`,
		n.ID().String(),
		n.RecipientID().String(),
		nullUUID(n.SenderID()),
		string(n.Type()),
		string(n.ResourceType()),
		nullUUID(n.ResourceID()),
		nullUUID(n.ProjectID()),
		n.Message(),
		sharedPersistence.FormatSQLiteTimePtr(n.ReadAt()),
		sharedPersistence.FormatSQLiteTime(n.CreatedAt()),
		sharedPersistence.FormatSQLiteTime(n.UpdatedAt()),
	)
	if err != nil {
		return err
	}
	n.SetVersion(n.Version() + 1)
	return nil
}

func (r *SQLiteNotificationRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	exec := sharedPersistence.SQLiteExecutor(ctx, r.db)
	row := exec.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id.String())
	return scanSQLiteNotification(row)
}

func (r *SQLiteNotificationRepository) FindByRecipient(ctx context.Context, recipientID uuid.UUID, filter domain.ListFilter) ([]*domain.Notification, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	exec := sharedPersistence.SQLiteExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE recipient_id = ? AND (? = 0 OR read_at IS NULL)
		ORDER BY created_at DESC, id
		LIMIT ?
	`, recipientID.String(), boolToInt(filter.UnreadOnly), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Notification
	for rows.Next() {
		n, err := scanSQLiteNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *SQLiteNotificationRepository) CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error) {
	exec := sharedPersistence.SQLiteExecutor(ctx, r.db)
	var count int
	err := exec.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND read_at IS NULL
	`, recipientID.String()).Scan(&count)
	return count, err
}

func (r *SQLiteNotificationRepository) MarkAllRead(ctx context.Context, recipientID uuid.UUID, readAt time.Time) (int, error) {
	stamp := sharedPersistence.FormatSQLiteTime(readAt)
	exec := sharedPersistence.SQLiteExecutor(ctx, r.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE notifications SET read_at = ?, updated_at = ?
		WHERE recipient_id = ? AND read_at IS NULL
	`, stamp, stamp, recipientID.String())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func nullUUID(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func parseNullUUID(value sql.NullString, field string) (*uuid.UUID, error) {
	if !value.Valid {
		return nil, nil
	}
	id, err := uuid.Parse(value.String)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", field, err)
	}
	return &id, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteNotification(row rowScanner) (*domain.Notification, error) {
	var (
		id, recipient, kind, resourceType, message string
		sender, resource, project, readAt          sql.NullString
		created, updated                           string
	)
	if err := row.Scan(&id, &recipient, &sender, &kind, &resourceType, &resource, &project, &message, &readAt, &created, &updated); err != nil {
		if database.IsNoRows(err) {
			return nil, domain.ErrNotificationNotFound
		}
		return nil, err
	}

	notificationID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse notification id: %w", err)
	}
	recipientID, err := uuid.Parse(recipient)
	if err != nil {
		return nil, fmt.Errorf("parse recipient id: %w", err)
	}
	senderID, err := parseNullUUID(sender, "sender id")
	if err != nil {
		return nil, err
	}
	resourceID, err := parseNullUUID(resource, "resource id")
	if err != nil {
		return nil, err
	}
	projectID, err := parseNullUUID(project, "project id")
	if err != nil {
		return nil, err
	}

	read, err := sharedPersistence.ParseSQLiteTimePtr(readAt)
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

	base := sharedDomain.RehydrateBaseAggregateRoot(sharedDomain.RehydrateBaseEntity(notificationID, createdAt, updatedAt), 1)
	return domain.RehydrateNotification(base, domain.Params{
		RecipientID:  recipientID,
		SenderID:     senderID,
		Type:         domain.Type(kind),
		ResourceType: domain.ResourceType(resourceType),
		ResourceID:   resourceID,
		ProjectID:    projectID,
		Message:      message,
	}, read), nil
}
