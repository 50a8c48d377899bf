package commands

import (
	"context"

	"github.com/felixgeelhaar/tracklane/internal/notifications/application/services"
	"github.com/felixgeelhaar/tracklane/internal/notifications/domain"
	sharedApplication "github.com/felixgeelhaar/tracklane/internal/shared/application"
	"github.com/felixgeelhaar/tracklane/internal/shared/clock"
	"github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/tracklane/pkg/observability"
	"github.com/google/uuid"
)

// CreateNotificationCommand raises a notification for one recipient.
type CreateNotificationCommand struct {
	RecipientID  uuid.UUID
	SenderID     *uuid.UUID
	Type         string
	ResourceType string
	ResourceID   *uuid.UUID
	ProjectID    *uuid.UUID
	Message      string
}

// CreateNotificationResult contains the stored notification.
type CreateNotificationResult struct {
	NotificationID uuid.UUID
	Payload        domain.Payload
}

// CreateNotificationHandler stores a notification and pushes it to the
// recipient's live connections once the transaction commits.
type CreateNotificationHandler struct {
	repo       domain.Repository
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	notifier   services.Notifier
	clock      clock.Clock
	metrics    observability.Metrics
}

// NewCreateNotificationHandler creates a new CreateNotificationHandler.
func NewCreateNotificationHandler(
	repo domain.Repository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	notifier services.Notifier,
	clk clock.Clock,
	metrics observability.Metrics,
) *CreateNotificationHandler {
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &CreateNotificationHandler{
		repo:       repo,
		outboxRepo: outboxRepo,
		uow:        uow,
		notifier:   notifier,
		clock:      clk,
		metrics:    metrics,
	}
}

// Handle executes the CreateNotificationCommand.
func (h *CreateNotificationHandler) Handle(ctx context.Context, cmd CreateNotificationCommand) (*CreateNotificationResult, error) {
	n, err := domain.NewNotification(domain.Params{
		RecipientID:  cmd.RecipientID,
		SenderID:     cmd.SenderID,
		Type:         domain.Type(cmd.Type),
		ResourceType: domain.ResourceType(cmd.ResourceType),
		ResourceID:   cmd.ResourceID,
		ProjectID:    cmd.ProjectID,
		Message:      cmd.Message,
	}, h.clock.Now())
	if err != nil {
		return nil, err
	}

	actor := cmd.RecipientID
	if cmd.SenderID != nil {
		actor = *cmd.SenderID
	}
	err = sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		if err := h.repo.Save(txCtx, n); err != nil {
			return err
		}
		return saveEvents(txCtx, h.outboxRepo, n, actor)
	})
	if err != nil {
		return nil, err
	}

	h.metrics.Counter(observability.MetricNotificationsCreated, 1, observability.T("type", string(n.Type())))

	payload := n.Payload()
	h.notifier.Dispatch(ctx, payload)

	return &CreateNotificationResult{
		NotificationID: n.ID(),
		Payload:        payload,
	}, nil
}

func saveEvents(ctx context.Context, outboxRepo outbox.Repository, n *domain.Notification, userID uuid.UUID) error {
	events := n.DomainEvents()
	if len(events) == 0 {
		return nil
	}
	sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(ctx, userID))

	msgs, err := outbox.MessagesFromEvents(events)
	if err != nil {
		return err
	}
	if err := outboxRepo.SaveBatch(ctx, msgs); err != nil {
		return err
	}
	n.ClearDomainEvents()
	return nil
}
