package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows a recipient's inbox listing.
type ListFilter struct {
	UnreadOnly bool
	Limit      int
}

// Repository defines the interface for notification persistence.
type Repository interface {
	Save(ctx context.Context, n *Notification) error
	FindByID(ctx context.Context, id uuid.UUID) (*Notification, error)

	// FindByRecipient lists notifications newest first.
	FindByRecipient(ctx context.Context, recipientID uuid.UUID, filter ListFilter) ([]*Notification, error)
	CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error)

	// MarkAllRead stamps every unread notification of the recipient and
	// returns how many changed.
	MarkAllRead(ctx context.Context, recipientID uuid.UUID, readAt time.Time) (int, error)
}
