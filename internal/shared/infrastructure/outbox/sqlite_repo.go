package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sharedPersistence "github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

// SQLiteRepository stores outbox messages in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a SQLite outbox repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Save(ctx context.Context, msg *Message) error {
	exec := sharedPersistence.SQLiteExecutor(ctx, r.db)
	result, err := exec.ExecContext(ctx, `
		INSERT INTO outbox (
			event_id, aggregate_type, aggregate_id, event_type, routing_key,
			payload, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		msg.EventID.String(),
		msg.AggregateType,
		msg.AggregateID.String(),
		msg.EventType,
		msg.RoutingKey,
		[]byte(msg.Payload),
		[]byte(msg.Metadata),
		sharedPersistence.FormatSQLiteTime(msg.CreatedAt),
	)
	if err != nil {
		return err
	}
	msg.ID, err = result.LastInsertId()
	return err
}

func (r *SQLiteRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if _, ok := sharedPersistence.SQLiteTxInfoFromContext(ctx); ok {
		return r.saveAll(ctx, msgs)
	}

	uow := sharedPersistence.NewSQLiteUnitOfWork(r.db)
	txCtx, err := uow.Begin(ctx)
	if err != nil {
		return err
	}
	if err := r.saveAll(txCtx, msgs); err != nil {
		_ = uow.Rollback(txCtx)
		return err
	}
	return uow.Commit(txCtx)
}

func (r *SQLiteRepository) saveAll(ctx context.Context, msgs []*Message) error {
	for _, msg := range msgs {
		if err := r.Save(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, routing_key,
		       payload, metadata, created_at, published_at, next_retry_at, retry_count,
		       last_error, dead_lettered_at, dead_letter_reason
		FROM outbox
		WHERE published_at IS NULL
		  AND dead_lettered_at IS NULL
		  AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY created_at, id
		LIMIT ?
	`, sharedPersistence.FormatSQLiteTime(time.Now()), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanSQLiteMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *SQLiteRepository) MarkPublished(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox SET published_at = ? WHERE id = ?`,
		sharedPersistence.FormatSQLiteTime(time.Now()), id)
	return err
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox SET retry_count = retry_count + 1, last_error = ?, next_retry_at = ? WHERE id = ?
	`, errMsg, sharedPersistence.FormatSQLiteTime(nextRetryAt), id)
	return err
}

func (r *SQLiteRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox SET dead_lettered_at = ?, dead_letter_reason = ? WHERE id = ?
	`, sharedPersistence.FormatSQLiteTime(time.Now()), reason, id)
	return err
}

func (r *SQLiteRepository) DeleteOld(ctx context.Context, olderThan time.Duration) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM outbox WHERE published_at IS NOT NULL AND published_at < ?
	`, sharedPersistence.FormatSQLiteTime(time.Now().Add(-olderThan)))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanSQLiteMessage(rows *sql.Rows) (*Message, error) {
	var (
		msg                              Message
		eventID, aggregateID, createdAt  string
		payload, metadata                []byte
		publishedAt, nextRetryAt, deadAt sql.NullString
		lastError, deadReason            sql.NullString
	)
	if err := rows.Scan(
		&msg.ID, &eventID, &msg.AggregateType, &aggregateID, &msg.EventType, &msg.RoutingKey,
		&payload, &metadata, &createdAt, &publishedAt, &nextRetryAt, &msg.RetryCount,
		&lastError, &deadAt, &deadReason,
	); err != nil {
		return nil, err
	}

	var err error
	if msg.EventID, err = uuid.Parse(eventID); err != nil {
		return nil, fmt.Errorf("parse event id: %w", err)
	}
	if msg.AggregateID, err = uuid.Parse(aggregateID); err != nil {
		return nil, fmt.Errorf("parse aggregate id: %w", err)
	}
	if msg.CreatedAt, err = sharedPersistence.ParseSQLiteTime(createdAt); err != nil {
		return nil, err
	}
	if msg.PublishedAt, err = sharedPersistence.ParseSQLiteTimePtr(publishedAt); err != nil {
		return nil, err
	}
	if msg.NextRetryAt, err = sharedPersistence.ParseSQLiteTimePtr(nextRetryAt); err != nil {
		return nil, err
	}
	if msg.DeadLetteredAt, err = sharedPersistence.ParseSQLiteTimePtr(deadAt); err != nil {
		return nil, err
	}
	msg.Payload = payload
	msg.Metadata = metadata
	if lastError.Valid {
		msg.LastError = &lastError.String
	}
	if deadReason.Valid {
		msg.DeadLetterReason = &deadReason.String
	}
	return &msg, nil
}
