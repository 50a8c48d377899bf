package outbox

import (
	"context"
	"time"
)

// Repository persists outbox messages. Save and SaveBatch join the unit of
// work in the context so events commit atomically with the aggregate.
type Repository interface {
	Save(ctx context.Context, msg *Message) error
	SaveBatch(ctx context.Context, msgs []*Message) error
	// GetUnpublished returns messages due for (re)publishing, oldest first.
	GetUnpublished(ctx context.Context, limit int) ([]*Message, error)
	MarkPublished(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, err string, nextRetryAt time.Time) error
	MarkDead(ctx context.Context, id int64, reason string) error
	// DeleteOld removes published messages older than the retention window.
	DeleteOld(ctx context.Context, olderThan time.Duration) (int64, error)
}
