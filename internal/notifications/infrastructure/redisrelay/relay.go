// Package redisrelay fans notifications out across nodes over Redis pub/sub.
// Each node subscribes and hands relayed payloads to its local dispatcher,
// so a recipient connected to any node receives the push.
package redisrelay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/tracklane/internal/notifications/application/services"
	"github.com/felixgeelhaar/tracklane/internal/notifications/domain"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is used when no channel is configured.
const DefaultChannel = "tracklane:notifications"

// Publisher implements services.Notifier by publishing to Redis.
type Publisher struct {
	client  redis.UniversalClient
	channel string
	logger  *slog.Logger
}

var _ services.Notifier = (*Publisher)(nil)

// NewPublisher creates a relay publisher.
func NewPublisher(client redis.UniversalClient, channel string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{client: client, channel: channel, logger: logger}
}

// Dispatch publishes the payload. Failures are logged; the notification is
// already durable.
func (p *Publisher) Dispatch(ctx context.Context, payload domain.Payload) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("failed to encode relayed notification", "notification_id", payload.ID, "error", err)
		return
	}
	receivers, err := p.client.Publish(context.WithoutCancel(ctx), p.channel, data).Result()
	if err != nil {
		p.logger.Warn("failed to relay notification",
			"notification_id", payload.ID,
			"user_id", payload.RecipientID,
			"channel", p.channel,
			"error", err,
		)
		return
	}
	p.logger.Debug("notification relayed",
		"notification_id", payload.ID,
		"channel", p.channel,
		"receivers", receivers,
	)
}

// Subscriber feeds relayed payloads into a local notifier.
type Subscriber struct {
	client  redis.UniversalClient
	channel string
	local   services.Notifier
	logger  *slog.Logger
}

// NewSubscriber creates a relay subscriber delivering to local.
func NewSubscriber(client redis.UniversalClient, channel string, local services.Notifier, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &Subscriber{client: client, channel: channel, local: local, logger: logger}
}

// Run subscribes and blocks until ctx is cancelled. It returns an error only
// when the subscription cannot be established.
func (s *Subscriber) Run(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.channel, err)
	}
	s.logger.Info("notification relay subscribed", "channel", s.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.handle(ctx, msg.Payload)
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, raw string) {
	var payload domain.Payload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		s.logger.Warn("dropping undecodable relayed notification", "channel", s.channel, "error", err)
		return
	}
	s.local.Dispatch(ctx, payload)
}
