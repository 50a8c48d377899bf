package commands

import (
	"context"

	"github.com/felixgeelhaar/tracklane/internal/notifications/domain"
	sharedApplication "github.com/felixgeelhaar/tracklane/internal/shared/application"
	"github.com/felixgeelhaar/tracklane/internal/shared/clock"
	"github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
)

// MarkReadCommand marks one notification as read by its recipient.
type MarkReadCommand struct {
	NotificationID uuid.UUID
	UserID         uuid.UUID
}

// MarkReadHandler handles the MarkReadCommand.
type MarkReadHandler struct {
	repo       domain.Repository
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	clock      clock.Clock
}

// NewMarkReadHandler creates a new MarkReadHandler.
func NewMarkReadHandler(repo domain.Repository, outboxRepo outbox.Repository, uow sharedApplication.UnitOfWork, clk clock.Clock) *MarkReadHandler {
	return &MarkReadHandler{
		repo:       repo,
		outboxRepo: outboxRepo,
		uow:        uow,
		clock:      clk,
	}
}

// Handle executes the MarkReadCommand. Reading twice is not an error.
func (h *MarkReadHandler) Handle(ctx context.Context, cmd MarkReadCommand) error {
	return sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		n, err := h.repo.FindByID(txCtx, cmd.NotificationID)
		if err != nil {
			return err
		}
		if n.RecipientID() != cmd.UserID {
			return domain.ErrNotificationNotRecipient
		}
		if !n.MarkRead(h.clock.Now()) {
			return nil
		}
		if err := h.repo.Save(txCtx, n); err != nil {
			return err
		}
		return saveEvents(txCtx, h.outboxRepo, n, cmd.UserID)
	})
}

// MarkAllReadCommand clears a user's unread notifications.
type MarkAllReadCommand struct {
	UserID uuid.UUID
}

// MarkAllReadHandler handles the MarkAllReadCommand. Bulk reads do not emit
// per-notification events.
type MarkAllReadHandler struct {
	repo  domain.Repository
	clock clock.Clock
}

// NewMarkAllReadHandler creates a new MarkAllReadHandler.
func NewMarkAllReadHandler(repo domain.Repository, clk clock.Clock) *MarkAllReadHandler {
	return &MarkAllReadHandler{repo: repo, clock: clk}
}

// Handle returns how many notifications were marked.
func (h *MarkAllReadHandler) Handle(ctx context.Context, cmd MarkAllReadCommand) (int, error) {
	return h.repo.MarkAllRead(ctx, cmd.UserID, h.clock.Now())
}
