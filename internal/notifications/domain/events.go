package domain

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/tracklane/internal/shared/domain"
	"github.com/google/uuid"
)

const aggregateType = "Notification"

const (
	RoutingKeyNotificationCreated = "notifications.notification.created"
	RoutingKeyNotificationRead    = "notifications.notification.read"
)

// NotificationCreated is emitted when a notification enters a user's inbox.
type NotificationCreated struct {
	sharedDomain.BaseEvent
	NotificationID uuid.UUID    `json:"notification_id"`
	RecipientID    uuid.UUID    `json:"recipient_id"`
	Type           Type         `json:"type"`
	ResourceType   ResourceType `json:"resource_type"`
	ResourceID     *uuid.UUID   `json:"resource_id,omitempty"`
}

func NewNotificationCreated(n *Notification, now time.Time) *NotificationCreated {
	return &NotificationCreated{
		BaseEvent:      sharedDomain.NewBaseEvent(n.ID(), aggregateType, RoutingKeyNotificationCreated, now),
		NotificationID: n.ID(),
		RecipientID:    n.RecipientID(),
		Type:           n.Type(),
		ResourceType:   n.ResourceType(),
		ResourceID:     n.ResourceID(),
	}
}

// NotificationRead is emitted the first time a notification is read.
type NotificationRead struct {
	sharedDomain.BaseEvent
	NotificationID uuid.UUID `json:"notification_id"`
	RecipientID    uuid.UUID `json:"recipient_id"`
	ReadAt         time.Time `json:"read_at"`
}

func NewNotificationRead(n *Notification, now time.Time) *NotificationRead {
	return &NotificationRead{
		BaseEvent:      sharedDomain.NewBaseEvent(n.ID(), aggregateType, RoutingKeyNotificationRead, now),
		NotificationID: n.ID(),
		RecipientID:    n.RecipientID(),
		ReadAt:         now.UTC(),
	}
}
