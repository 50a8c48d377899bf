package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/tracklane/internal/notifications/domain"
	"github.com/felixgeelhaar/tracklane/internal/presence"
	"github.com/felixgeelhaar/tracklane/pkg/observability"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu        sync.Mutex
	delivered map[presence.ConnectionID][]domain.Payload
	fail      map[presence.ConnectionID]error
	block     map[presence.ConnectionID]bool
	deadlines map[presence.ConnectionID]bool
}

func newRecordingSender() *recordingSender {
	return &recordingSender{
		delivered: make(map[presence.ConnectionID][]domain.Payload),
		fail:      make(map[presence.ConnectionID]error),
		block:     make(map[presence.ConnectionID]bool),
		deadlines: make(map[presence.ConnectionID]bool),
	}
}

func (s *recordingSender) Send(ctx context.Context, connID presence.ConnectionID, payload domain.Payload) error {
	s.mu.Lock()
	_, hasDeadline := ctx.Deadline()
	s.deadlines[connID] = hasDeadline
	err := s.fail[connID]
	block := s.block[connID]
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.delivered[connID] = append(s.delivered[connID], payload)
	s.mu.Unlock()
	return nil
}

func (s *recordingSender) deliveredTo(connID presence.ConnectionID) []domain.Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Payload(nil), s.delivered[connID]...)
}

func testPayload(recipient uuid.UUID) domain.Payload {
	return domain.Payload{
		ID:           uuid.New(),
		RecipientID:  recipient,
		Type:         domain.TypeAssignment,
		ResourceType: domain.ResourceDefect,
		Message:      "assigned",
		CreatedAt:    time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
	}
}

func TestDispatcher_Dispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("offline recipient is a no-op", func(t *testing.T) {
		registry := presence.NewRegistry()
		sender := newRecordingSender()
		metrics := observability.NewInMemoryMetrics()
		d := NewDispatcher(registry, sender, time.Second, nil, metrics)

		d.Dispatch(ctx, testPayload(uuid.New()))
		require.NoError(t, d.Drain(ctx))

		assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricDispatchOffline))
		assert.Zero(t, metrics.GetCounter(observability.MetricDispatchDelivered))
	})

	t.Run("failed connection does not affect the others", func(t *testing.T) {
		registry := presence.NewRegistry()
		user := uuid.New()
		registry.Register(user, "c1")
		registry.Register(user, "c2")

		sender := newRecordingSender()
		sender.fail["c1"] = errors.New("broken pipe")
		metrics := observability.NewInMemoryMetrics()
		d := NewDispatcher(registry, sender, time.Second, nil, metrics)

		payload := testPayload(user)
		d.Dispatch(ctx, payload)
		require.NoError(t, d.Drain(ctx))

		assert.Empty(t, sender.deliveredTo("c1"))
		require.Len(t, sender.deliveredTo("c2"), 1)
		assert.Equal(t, payload, sender.deliveredTo("c2")[0])
		assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricDispatchFailed))
		assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricDispatchDelivered))
	})

	t.Run("only the recipient's connections receive", func(t *testing.T) {
		registry := presence.NewRegistry()
		alice, bob := uuid.New(), uuid.New()
		registry.Register(alice, "a1")
		registry.Register(bob, "b1")

		sender := newRecordingSender()
		d := NewDispatcher(registry, sender, time.Second, nil, nil)

		d.Dispatch(ctx, testPayload(alice))
		require.NoError(t, d.Drain(ctx))

		assert.Len(t, sender.deliveredTo("a1"), 1)
		assert.Empty(t, sender.deliveredTo("b1"))
	})

	t.Run("cancelled caller does not abort sends", func(t *testing.T) {
		registry := presence.NewRegistry()
		user := uuid.New()
		registry.Register(user, "c1")

		sender := newRecordingSender()
		d := NewDispatcher(registry, sender, time.Second, nil, nil)

		callerCtx, cancel := context.WithCancel(ctx)
		cancel()
		d.Dispatch(callerCtx, testPayload(user))
		require.NoError(t, d.Drain(ctx))

		assert.Len(t, sender.deliveredTo("c1"), 1)
		sender.mu.Lock()
		assert.True(t, sender.deadlines["c1"])
		sender.mu.Unlock()
	})

	t.Run("slow connection times out without blocking dispatch", func(t *testing.T) {
		registry := presence.NewRegistry()
		user := uuid.New()
		registry.Register(user, "slow")
		registry.Register(user, "fast")

		sender := newRecordingSender()
		sender.block["slow"] = true
		metrics := observability.NewInMemoryMetrics()
		d := NewDispatcher(registry, sender, 50*time.Millisecond, nil, metrics)

		start := time.Now()
		d.Dispatch(ctx, testPayload(user))
		assert.Less(t, time.Since(start), 50*time.Millisecond)

		require.NoError(t, d.Drain(ctx))
		assert.Len(t, sender.deliveredTo("fast"), 1)
		assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricDispatchFailed))
	})
}

func TestDispatcher_Drain(t *testing.T) {
	registry := presence.NewRegistry()
	user := uuid.New()
	registry.Register(user, "stuck")

	sender := newRecordingSender()
	sender.block["stuck"] = true
	d := NewDispatcher(registry, sender, time.Second, nil, nil)
	d.Dispatch(context.Background(), testPayload(user))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.Drain(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDeliveryError(t *testing.T) {
	cause := errors.New("queue full")
	err := &DeliveryError{ConnectionID: "c1", UserID: uuid.Nil, Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "c1")
	assert.Contains(t, err.Error(), "queue full")
}
