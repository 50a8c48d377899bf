package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/tracklane/internal/notifications/domain"
	"github.com/felixgeelhaar/tracklane/internal/presence"
	"github.com/felixgeelhaar/tracklane/pkg/observability"
	"github.com/google/uuid"
)

// DefaultSendTimeout bounds one delivery attempt to one connection.
const DefaultSendTimeout = 5 * time.Second

// Notifier pushes a payload to whoever should see it live. Implementations
// never report failure to the caller; the durable inbox is the fallback.
type Notifier interface {
	Dispatch(ctx context.Context, payload domain.Payload)
}

// Sender writes a payload to a single live connection.
type Sender interface {
	Send(ctx context.Context, connID presence.ConnectionID, payload domain.Payload) error
}

// ConnectionLookup resolves a user's live connections.
type ConnectionLookup interface {
	ConnectionsFor(userID uuid.UUID) []presence.ConnectionID
}

// DeliveryError describes a failed push to one connection.
type DeliveryError struct {
	ConnectionID presence.ConnectionID
	UserID       uuid.UUID
	Err          error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to connection %s of user %s: %v", e.ConnectionID, e.UserID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Dispatcher fans a payload out to every live connection of its recipient.
type Dispatcher struct {
	connections ConnectionLookup
	sender      Sender
	timeout     time.Duration
	logger      *slog.Logger
	metrics     observability.Metrics

	wg sync.WaitGroup
}

var _ Notifier = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher. A non-positive timeout uses
// DefaultSendTimeout.
func NewDispatcher(connections ConnectionLookup, sender Sender, timeout time.Duration, logger *slog.Logger, metrics observability.Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Dispatcher{
		connections: connections,
		sender:      sender,
		timeout:     timeout,
		logger:      logger,
		metrics:     metrics,
	}
}

// Dispatch starts one send per connection and returns without waiting.
// Sends outlive ctx cancellation but keep its values.
func (d *Dispatcher) Dispatch(ctx context.Context, payload domain.Payload) {
	conns := d.connections.ConnectionsFor(payload.RecipientID)
	if len(conns) == 0 {
		d.metrics.Counter(observability.MetricDispatchOffline, 1)
		d.logger.Debug("recipient offline, notification left in inbox",
			"notification_id", payload.ID,
			"user_id", payload.RecipientID,
		)
		return
	}

	detached := context.WithoutCancel(ctx)
	for _, connID := range conns {
		d.wg.Add(1)
		go d.deliver(detached, connID, payload)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, connID presence.ConnectionID, payload domain.Payload) {
	defer d.wg.Done()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	if err := d.sender.Send(ctx, connID, payload); err != nil {
		derr := &DeliveryError{ConnectionID: connID, UserID: payload.RecipientID, Err: err}
		d.metrics.Counter(observability.MetricDispatchFailed, 1)
		d.logger.Warn("notification delivery failed",
			"notification_id", payload.ID,
			"user_id", payload.RecipientID,
			"connection_id", connID,
			"error", derr,
		)
		return
	}
	d.metrics.Counter(observability.MetricDispatchDelivered, 1)
	d.logger.Debug("notification delivered",
		"notification_id", payload.ID,
		"connection_id", connID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Drain waits for in-flight sends or for ctx to end.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("dispatcher drain interrupted"), ctx.Err())
	}
}
