package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventConsumer handles events for a fixed set of routing keys.
type EventConsumer interface {
	// EventTypes returns the routing keys this consumer handles,
	// e.g. ["tasks.task.generated"].
	EventTypes() []string

	Handle(ctx context.Context, event *ConsumedEvent) error
}

// ConsumedEvent is the envelope received from the bus.
type ConsumedEvent struct {
	EventID       uuid.UUID       `json:"event_id"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	RoutingKey    string          `json:"routing_key"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
	Metadata      EventMetadata   `json:"metadata,omitempty"`
}

// EventMetadata carries the tracing fields of the producing request.
type EventMetadata struct {
	UserID        uuid.UUID `json:"user_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	CausationID   string    `json:"causation_id,omitempty"`
}

// Decode unmarshals the event-specific payload into v.
func (e *ConsumedEvent) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s has empty payload", e.EventID)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.RoutingKey, err)
	}
	return nil
}

// Consumer pulls events from a broker and dispatches them.
type Consumer interface {
	// Start blocks until ctx is cancelled or Close is called.
	Start(ctx context.Context) error
	RegisterConsumer(consumer EventConsumer)
	Close() error
}
