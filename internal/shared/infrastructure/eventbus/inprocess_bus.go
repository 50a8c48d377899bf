package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// InProcessBus delivers published envelopes synchronously to local consumers.
// It stands in for RabbitMQ in single-binary deployments, so the outbox
// processor feeds consumers such as the task-generated notifier directly.
type InProcessBus struct {
	registry *ConsumerRegistry
	logger   *slog.Logger
}

// NewInProcessBus creates an in-process bus with its own registry.
func NewInProcessBus(logger *slog.Logger) *InProcessBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &InProcessBus{
		registry: NewConsumerRegistry(logger),
		logger:   logger,
	}
}

// RegisterConsumer registers an event consumer.
func (b *InProcessBus) RegisterConsumer(consumer EventConsumer) {
	b.registry.Register(consumer)
}

// Publish decodes the envelope and dispatches it. Consumer failures are
// returned so the outbox schedules a retry.
func (b *InProcessBus) Publish(ctx context.Context, routingKey string, payload []byte) error {
	event := &ConsumedEvent{}
	if err := json.Unmarshal(payload, event); err != nil {
		// Undecodable envelopes would never succeed on retry.
		b.logger.Error("failed to unmarshal event envelope",
			"routing_key", routingKey,
			"error", err,
		)
		return nil
	}
	if event.RoutingKey == "" {
		event.RoutingKey = routingKey
	}

	start := time.Now()
	err := b.registry.Dispatch(ctx, event)
	b.logger.Debug("event dispatched",
		"routing_key", event.RoutingKey,
		"event_id", event.EventID,
		"duration_ms", time.Since(start).Milliseconds(),
		"failed", err != nil,
	)
	return err
}

// Start blocks until ctx is done; delivery happens inside Publish.
func (b *InProcessBus) Start(ctx context.Context) error {
	b.logger.Info("in-process event bus started")
	<-ctx.Done()
	return ctx.Err()
}

func (b *InProcessBus) Close() error {
	return nil
}

// Registry returns the underlying consumer registry.
func (b *InProcessBus) Registry() *ConsumerRegistry {
	return b.registry
}
