package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	sharedDomain "github.com/felixgeelhaar/tracklane/internal/shared/domain"
	"github.com/google/uuid"
)

var (
	ErrNotificationNotFound     = errors.New("notification not found")
	ErrNotificationNotRecipient = errors.New("notification belongs to another user")
	ErrEmptyMessage             = errors.New("notification message cannot be empty")
	ErrUnknownType              = errors.New("unknown notification type")
	ErrUnknownResourceType      = errors.New("unknown resource type")
	ErrMissingRecipient         = errors.New("notification recipient is required")
)

// Type classifies why a user is being notified.
type Type string

const (
	TypeAssignment    Type = "assignment"
	TypeComment       Type = "comment"
	TypeMention       Type = "mention"
	TypeStatusChange  Type = "status_change"
	TypeTaskGenerated Type = "task_generated"
)

// ParseType validates a notification type.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeAssignment, TypeComment, TypeMention, TypeStatusChange, TypeTaskGenerated:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// ResourceType names the kind of object a notification points at.
type ResourceType string

const (
	ResourceProject     ResourceType = "project"
	ResourceVersion     ResourceType = "version"
	ResourceRequirement ResourceType = "requirement"
	ResourceDefect      ResourceType = "defect"
	ResourceComment     ResourceType = "comment"
	ResourceTask        ResourceType = "task"
)

// ParseResourceType validates a resource type.
func ParseResourceType(s string) (ResourceType, error) {
	switch r := ResourceType(strings.ToLower(strings.TrimSpace(s))); r {
	case ResourceProject, ResourceVersion, ResourceRequirement, ResourceDefect, ResourceComment, ResourceTask:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownResourceType, s)
}

// Params are the fields supplied when raising a notification.
type Params struct {
	RecipientID  uuid.UUID
	SenderID     *uuid.UUID
	Type         Type
	ResourceType ResourceType
	ResourceID   *uuid.UUID
	ProjectID    *uuid.UUID
	Message      string
}

// Notification is a durable inbox entry for one recipient.
type Notification struct {
	sharedDomain.BaseAggregateRoot
	recipientID  uuid.UUID
	senderID     *uuid.UUID
	kind         Type
	resourceType ResourceType
	resourceID   *uuid.UUID
	projectID    *uuid.UUID
	message      string
	readAt       *time.Time
}

// NewNotification validates params and raises NotificationCreated.
func NewNotification(p Params, now time.Time) (*Notification, error) {
	message := strings.TrimSpace(p.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if p.RecipientID == uuid.Nil {
		return nil, ErrMissingRecipient
	}
	kind, err := ParseType(string(p.Type))
	if err != nil {
		return nil, err
	}
	resourceType, err := ParseResourceType(string(p.ResourceType))
	if err != nil {
		return nil, err
	}

	n := &Notification{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(now),
		recipientID:       p.RecipientID,
		senderID:          p.SenderID,
		kind:              kind,
		resourceType:      resourceType,
		resourceID:        p.ResourceID,
		projectID:         p.ProjectID,
		message:           message,
	}
	n.AddDomainEvent(NewNotificationCreated(n, now))
	return n, nil
}

// RehydrateNotification recreates a notification from persisted state.
func RehydrateNotification(base sharedDomain.BaseAggregateRoot, p Params, readAt *time.Time) *Notification {
	return &Notification{
		BaseAggregateRoot: base,
		recipientID:       p.RecipientID,
		senderID:          p.SenderID,
		kind:              p.Type,
		resourceType:      p.ResourceType,
		resourceID:        p.ResourceID,
		projectID:         p.ProjectID,
		message:           p.Message,
		readAt:            readAt,
	}
}

func (n *Notification) RecipientID() uuid.UUID     { return n.recipientID }
func (n *Notification) SenderID() *uuid.UUID       { return n.senderID }
func (n *Notification) Type() Type                 { return n.kind }
func (n *Notification) ResourceType() ResourceType { return n.resourceType }
func (n *Notification) ResourceID() *uuid.UUID     { return n.resourceID }
func (n *Notification) ProjectID() *uuid.UUID      { return n.projectID }
func (n *Notification) Message() string            { return n.message }
func (n *Notification) ReadAt() *time.Time         { return n.readAt }
func (n *Notification) IsRead() bool               { return n.readAt != nil }

// MarkRead records the read instant. It returns false when the notification
// was already read.
func (n *Notification) MarkRead(now time.Time) bool {
	if n.readAt != nil {
		return false
	}
	at := now.UTC()
	n.readAt = &at
	n.Touch(now)
	n.AddDomainEvent(NewNotificationRead(n, now))
	return true
}

// Payload is the transient form pushed to live connections.
func (n *Notification) Payload() Payload {
	return Payload{
		ID:           n.ID(),
		RecipientID:  n.recipientID,
		SenderID:     n.senderID,
		Type:         n.kind,
		ResourceType: n.resourceType,
		ResourceID:   n.resourceID,
		ProjectID:    n.projectID,
		Message:      n.message,
		CreatedAt:    n.CreatedAt(),
	}
}

// Payload is the message delivered to each of a recipient's connections.
// It is never persisted in this form.
type Payload struct {
	ID           uuid.UUID    `json:"id"`
	RecipientID  uuid.UUID    `json:"recipient_id"`
	SenderID     *uuid.UUID   `json:"sender_id,omitempty"`
	Type         Type         `json:"type"`
	ResourceType ResourceType `json:"resource_type"`
	ResourceID   *uuid.UUID   `json:"resource_id,omitempty"`
	ProjectID    *uuid.UUID   `json:"project_id,omitempty"`
	Message      string       `json:"message"`
	CreatedAt    time.Time    `json:"created_at"`
}
