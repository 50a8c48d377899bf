package subscribers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/tracklane/internal/notifications/application/commands"
	"github.com/felixgeelhaar/tracklane/internal/notifications/domain"
	"github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/eventbus"
	taskDomain "github.com/felixgeelhaar/tracklane/internal/tasks/domain"
	"github.com/google/uuid"
)

// NotificationCreator is satisfied by commands.CreateNotificationHandler.
type NotificationCreator interface {
	Handle(ctx context.Context, cmd commands.CreateNotificationCommand) (*commands.CreateNotificationResult, error)
}

// TaskGeneratedConsumer tells a rule's owner that a new task occurrence is
// ready.
type TaskGeneratedConsumer struct {
	creator  NotificationCreator
	location *time.Location
	logger   *slog.Logger
}

var _ eventbus.EventConsumer = (*TaskGeneratedConsumer)(nil)

// NewTaskGeneratedConsumer creates the consumer. Due times in messages are
// rendered in loc.
func NewTaskGeneratedConsumer(creator NotificationCreator, loc *time.Location, logger *slog.Logger) *TaskGeneratedConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	return &TaskGeneratedConsumer{creator: creator, location: loc, logger: logger}
}

func (c *TaskGeneratedConsumer) EventTypes() []string {
	return []string{taskDomain.RoutingKeyTaskGenerated}
}

type taskGeneratedPayload struct {
	TaskID       uuid.UUID `json:"task_id"`
	OwnerID      uuid.UUID `json:"owner_id"`
	Title        string    `json:"title"`
	DueAt        time.Time `json:"due_at"`
	SourceRuleID uuid.UUID `json:"source_rule_id"`
}

// Handle creates a task_generated notification. Malformed events are dropped
// since a retry cannot fix them; store failures are returned for redelivery.
func (c *TaskGeneratedConsumer) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	var payload taskGeneratedPayload
	if err := event.Decode(&payload); err != nil {
		c.logger.Warn("dropping undecodable task event",
			"event_id", event.EventID,
			"error", err,
		)
		return nil
	}
	if payload.OwnerID == uuid.Nil {
		c.logger.Warn("dropping task event without owner",
			"event_id", event.EventID,
			"task_id", payload.TaskID,
		)
		return nil
	}

	taskID := payload.TaskID
	if taskID == uuid.Nil {
		taskID = event.AggregateID
	}

	result, err := c.creator.Handle(ctx, commands.CreateNotificationCommand{
		RecipientID:  payload.OwnerID,
		Type:         string(domain.TypeTaskGenerated),
		ResourceType: string(domain.ResourceTask),
		ResourceID:   &taskID,
		Message:      c.message(payload),
	})
	if err != nil {
		return fmt.Errorf("notify owner of task %s: %w", taskID, err)
	}

	c.logger.Debug("task notification created",
		"notification_id", result.NotificationID,
		"task_id", taskID,
		"user_id", payload.OwnerID,
		"rule_id", payload.SourceRuleID,
	)
	return nil
}

func (c *TaskGeneratedConsumer) message(p taskGeneratedPayload) string {
	title := p.Title
	if title == "" {
		title = "Recurring task"
	}
	if p.DueAt.IsZero() {
		return fmt.Sprintf("%s is ready", title)
	}
	return fmt.Sprintf("%s is due %s", title, p.DueAt.In(c.location).Format("Mon Jan 2 15:04"))
}
