package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/tracklane/internal/shared/domain"
	"github.com/google/uuid"
)

// Message is a domain event waiting in the outbox table to be published.
type Message struct {
	ID               int64
	EventID          uuid.UUID
	AggregateType    string
	AggregateID      uuid.UUID
	EventType        string
	RoutingKey       string
	Payload          json.RawMessage
	Metadata         json.RawMessage
	CreatedAt        time.Time
	PublishedAt      *time.Time
	NextRetryAt      *time.Time
	RetryCount       int
	LastError        *string
	DeadLetteredAt   *time.Time
	DeadLetterReason *string
}

// Envelope is the wire format published to the broker. Consumers decode it
// into eventbus.ConsumedEvent, so the JSON names must stay aligned.
type Envelope struct {
	EventID       uuid.UUID            `json:"event_id"`
	AggregateID   uuid.UUID            `json:"aggregate_id"`
	AggregateType string               `json:"aggregate_type"`
	RoutingKey    string               `json:"routing_key"`
	OccurredAt    time.Time            `json:"occurred_at"`
	Payload       json.RawMessage      `json:"payload"`
	Metadata      domain.EventMetadata `json:"metadata"`
}

// NewMessage wraps a domain event in an envelope ready for the outbox.
func NewMessage(event domain.DomainEvent) (*Message, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", event.RoutingKey(), err)
	}
	envelope, err := json.Marshal(Envelope{
		EventID:       event.EventID(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		RoutingKey:    event.RoutingKey(),
		OccurredAt:    event.OccurredAt(),
		Payload:       body,
		Metadata:      event.Metadata(),
	})
	if err != nil {
		return nil, err
	}
	metadata, err := json.Marshal(event.Metadata())
	if err != nil {
		return nil, err
	}

	return &Message{
		EventID:       event.EventID(),
		AggregateType: event.AggregateType(),
		AggregateID:   event.AggregateID(),
		EventType:     event.RoutingKey(),
		RoutingKey:    event.RoutingKey(),
		Payload:       envelope,
		Metadata:      metadata,
		CreatedAt:     event.OccurredAt(),
	}, nil
}

// MessagesFromEvents converts an aggregate's uncommitted events.
func MessagesFromEvents(events []domain.DomainEvent) ([]*Message, error) {
	msgs := make([]*Message, 0, len(events))
	for _, event := range events {
		msg, err := NewMessage(event)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// IsPublished reports whether the broker accepted the message.
func (m *Message) IsPublished() bool {
	return m.PublishedAt != nil
}
