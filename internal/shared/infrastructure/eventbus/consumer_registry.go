package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
)

// ConsumerRegistry routes consumed events to the consumers registered for
// their routing key.
type ConsumerRegistry struct {
	consumers map[string][]EventConsumer
	mu        sync.RWMutex
	logger    *slog.Logger
}

// NewConsumerRegistry creates an empty registry.
func NewConsumerRegistry(logger *slog.Logger) *ConsumerRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsumerRegistry{
		consumers: make(map[string][]EventConsumer),
		logger:    logger,
	}
}

// Register adds a consumer for each of its declared event types.
func (r *ConsumerRegistry) Register(consumer EventConsumer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, eventType := range consumer.EventTypes() {
		r.consumers[eventType] = append(r.consumers[eventType], consumer)
		r.logger.Debug("registered consumer", "event_type", eventType)
	}
}

// Consumers returns the consumers registered for eventType.
func (r *ConsumerRegistry) Consumers(eventType string) []EventConsumer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]EventConsumer, len(r.consumers[eventType]))
	copy(out, r.consumers[eventType])
	return out
}

// EventTypes returns every routing key with at least one consumer, sorted.
func (r *ConsumerRegistry) EventTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.consumers))
	for t := range r.consumers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Dispatch hands the event to every consumer of its routing key. All
// consumers run even when one fails; their errors are joined.
func (r *ConsumerRegistry) Dispatch(ctx context.Context, event *ConsumedEvent) error {
	consumers := r.Consumers(event.RoutingKey)
	if len(consumers) == 0 {
		r.logger.Debug("no consumers for event type", "routing_key", event.RoutingKey)
		return nil
	}

	var errs []error
	for _, consumer := range consumers {
		if err := consumer.Handle(ctx, event); err != nil {
			r.logger.Error("consumer failed to handle event",
				"routing_key", event.RoutingKey,
				"event_id", event.EventID,
				"error", err,
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Count returns the number of registrations across all event types.
func (r *ConsumerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, consumers := range r.consumers {
		count += len(consumers)
	}
	return count
}
