package queries

import (
	"context"
	"time"

	"github.com/felixgeelhaar/tracklane/internal/notifications/domain"
	"github.com/google/uuid"
)

// NotificationDTO is the inbox view of a notification.
type NotificationDTO struct {
	ID           uuid.UUID  `json:"id"`
	Type         string     `json:"type"`
	ResourceType string     `json:"resource_type"`
	ResourceID   *uuid.UUID `json:"resource_id,omitempty"`
	ProjectID    *uuid.UUID `json:"project_id,omitempty"`
	SenderID     *uuid.UUID `json:"sender_id,omitempty"`
	Message      string     `json:"message"`
	Read         bool       `json:"read"`
	ReadAt       *time.Time `json:"read_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ToNotificationDTO converts a notification for callers.
func ToNotificationDTO(n *domain.Notification) NotificationDTO {
	return NotificationDTO{
		ID:           n.ID(),
		Type:         string(n.Type()),
		ResourceType: string(n.ResourceType()),
		ResourceID:   n.ResourceID(),
		ProjectID:    n.ProjectID(),
		SenderID:     n.SenderID(),
		Message:      n.Message(),
		Read:         n.IsRead(),
		ReadAt:       n.ReadAt(),
		CreatedAt:    n.CreatedAt(),
	}
}

// ListNotificationsQuery lists a user's inbox.
type ListNotificationsQuery struct {
	UserID     uuid.UUID
	UnreadOnly bool
	Limit      int
}

// ListNotificationsHandler handles the ListNotificationsQuery.
type ListNotificationsHandler struct {
	repo domain.Repository
}

// NewListNotificationsHandler creates a new ListNotificationsHandler.
func NewListNotificationsHandler(repo domain.Repository) *ListNotificationsHandler {
	return &ListNotificationsHandler{repo: repo}
}

// Handle executes the query, newest first.
func (h *ListNotificationsHandler) Handle(ctx context.Context, q ListNotificationsQuery) ([]NotificationDTO, error) {
	notifications, err := h.repo.FindByRecipient(ctx, q.UserID, domain.ListFilter{
		UnreadOnly: q.UnreadOnly,
		Limit:      q.Limit,
	})
	if err != nil {
		return nil, err
	}

	dtos := make([]NotificationDTO, 0, len(notifications))
	for _, n := range notifications {
		dtos = append(dtos, ToNotificationDTO(n))
	}
	return dtos, nil
}

// CountUnreadQuery counts a user's unread notifications.
type CountUnreadQuery struct {
	UserID uuid.UUID
}

// CountUnreadHandler handles the CountUnreadQuery.
type CountUnreadHandler struct {
	repo domain.Repository
}

// NewCountUnreadHandler creates a new CountUnreadHandler.
func NewCountUnreadHandler(repo domain.Repository) *CountUnreadHandler {
	return &CountUnreadHandler{repo: repo}
}

func (h *CountUnreadHandler) Handle(ctx context.Context, q CountUnreadQuery) (int, error) {
	return h.repo.CountUnread(ctx, q.UserID)
}
