package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConsumer struct {
	types    []string
	err      error
	received []*ConsumedEvent
}

func (c *stubConsumer) EventTypes() []string { return c.types }

func (c *stubConsumer) Handle(ctx context.Context, event *ConsumedEvent) error {
	c.received = append(c.received, event)
	return c.err
}

type flakyPublisher struct {
	calls int
	err   error
}

func (p *flakyPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.calls++
	return p.err
}

func (p *flakyPublisher) Close() error { return nil }

func envelope(t *testing.T, routingKey string, payload any) []byte {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	data, err := json.Marshal(ConsumedEvent{
		EventID:    uuid.New(),
		RoutingKey: routingKey,
		OccurredAt: time.Now(),
		Payload:    body,
	})
	require.NoError(t, err)
	return data
}

func TestConsumerRegistry(t *testing.T) {
	ctx := context.Background()

	t.Run("dispatches to consumers of the routing key", func(t *testing.T) {
		reg := NewConsumerRegistry(nil)
		a := &stubConsumer{types: []string{"tasks.task.generated"}}
		b := &stubConsumer{types: []string{"recurrence.rule.fired"}}
		reg.Register(a)
		reg.Register(b)

		err := reg.Dispatch(ctx, &ConsumedEvent{RoutingKey: "tasks.task.generated"})

		require.NoError(t, err)
		assert.Len(t, a.received, 1)
		assert.Empty(t, b.received)
		assert.Equal(t, 2, reg.Count())
		assert.Equal(t, []string{"recurrence.rule.fired", "tasks.task.generated"}, reg.EventTypes())
	})

	t.Run("runs every consumer and joins errors", func(t *testing.T) {
		reg := NewConsumerRegistry(nil)
		boom := errors.New("boom")
		failing := &stubConsumer{types: []string{"x"}, err: boom}
		ok := &stubConsumer{types: []string{"x"}}
		reg.Register(failing)
		reg.Register(ok)

		err := reg.Dispatch(ctx, &ConsumedEvent{RoutingKey: "x"})

		assert.ErrorIs(t, err, boom)
		assert.Len(t, ok.received, 1)
	})

	t.Run("unknown routing key is not an error", func(t *testing.T) {
		reg := NewConsumerRegistry(nil)
		assert.NoError(t, reg.Dispatch(ctx, &ConsumedEvent{RoutingKey: "nobody.listens"}))
	})
}

func TestConsumedEvent_Decode(t *testing.T) {
	evt := &ConsumedEvent{RoutingKey: "x", Payload: json.RawMessage(`{"title":"standup"}`)}
	var out struct {
		Title string `json:"title"`
	}
	require.NoError(t, evt.Decode(&out))
	assert.Equal(t, "standup", out.Title)

	assert.Error(t, (&ConsumedEvent{}).Decode(&out))
}

func TestInProcessBus(t *testing.T) {
	ctx := context.Background()

	t.Run("publish delivers decoded envelope", func(t *testing.T) {
		bus := NewInProcessBus(nil)
		c := &stubConsumer{types: []string{"tasks.task.generated"}}
		bus.RegisterConsumer(c)

		require.NoError(t, bus.Publish(ctx, "tasks.task.generated", envelope(t, "tasks.task.generated", map[string]string{"title": "a"})))

		require.Len(t, c.received, 1)
		assert.JSONEq(t, `{"title":"a"}`, string(c.received[0].Payload))
	})

	t.Run("consumer failure is returned", func(t *testing.T) {
		bus := NewInProcessBus(nil)
		bus.RegisterConsumer(&stubConsumer{types: []string{"x"}, err: errors.New("db down")})

		assert.Error(t, bus.Publish(ctx, "x", envelope(t, "x", map[string]int{})))
	})

	t.Run("garbage payload is dropped", func(t *testing.T) {
		bus := NewInProcessBus(nil)
		assert.NoError(t, bus.Publish(ctx, "x", []byte("not json")))
	})

	t.Run("missing routing key falls back to the publish key", func(t *testing.T) {
		bus := NewInProcessBus(nil)
		c := &stubConsumer{types: []string{"x"}}
		bus.RegisterConsumer(c)

		require.NoError(t, bus.Publish(ctx, "x", []byte(`{"payload":{}}`)))
		assert.Len(t, c.received, 1)
	})
}

func TestBreakerPublisher(t *testing.T) {
	ctx := context.Background()

	t.Run("passes through while closed", func(t *testing.T) {
		next := &flakyPublisher{}
		p := NewBreakerPublisher(next, DefaultBreakerConfig(), nil)

		require.NoError(t, p.Publish(ctx, "x", nil))
		assert.Equal(t, 1, next.calls)
		assert.Equal(t, "closed", p.State())
	})

	t.Run("opens after consecutive failures", func(t *testing.T) {
		next := &flakyPublisher{err: errors.New("connection refused")}
		cfg := DefaultBreakerConfig()
		cfg.FailureThreshold = 2
		cfg.Timeout = time.Hour
		p := NewBreakerPublisher(next, cfg, nil)

		assert.Error(t, p.Publish(ctx, "x", nil))
		assert.Error(t, p.Publish(ctx, "x", nil))

		err := p.Publish(ctx, "x", nil)
		assert.ErrorIs(t, err, ErrBreakerOpen)
		assert.Equal(t, 2, next.calls)
		assert.Equal(t, "open", p.State())
	})
}

func TestNoopPublisher(t *testing.T) {
	p := NewNoopPublisher(nil)
	assert.NoError(t, p.Publish(context.Background(), "x", []byte("{}")))
	assert.NoError(t, p.Close())
}
