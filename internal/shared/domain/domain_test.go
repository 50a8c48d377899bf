package domain_test

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/tracklane/internal/shared/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type testAggregate struct {
	domain.BaseAggregateRoot
}

type testEvent struct {
	domain.BaseEvent
}

func TestBaseAggregateRoot(t *testing.T) {
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.FixedZone("CET", 3600))

	t.Run("new aggregate is unsaved and stamped in UTC", func(t *testing.T) {
		agg := testAggregate{BaseAggregateRoot: domain.NewBaseAggregateRoot(now)}

		assert.NotEqual(t, uuid.Nil, agg.ID())
		assert.True(t, agg.IsNew())
		assert.Equal(t, time.UTC, agg.CreatedAt().Location())
		assert.True(t, agg.CreatedAt().Equal(now))
		assert.Empty(t, agg.DomainEvents())
	})

	t.Run("collects and clears events", func(t *testing.T) {
		agg := testAggregate{BaseAggregateRoot: domain.NewBaseAggregateRoot(now)}
		agg.AddDomainEvent(testEvent{domain.NewBaseEvent(agg.ID(), "test", "test.aggregate.created", now)})
		agg.AddDomainEvent(testEvent{domain.NewBaseEvent(agg.ID(), "test", "test.aggregate.updated", now)})

		events := agg.DomainEvents()
		assert.Len(t, events, 2)
		assert.Equal(t, "test.aggregate.created", events[0].RoutingKey())

		agg.ClearDomainEvents()
		assert.Empty(t, agg.DomainEvents())
	})

	t.Run("touch advances updatedAt only", func(t *testing.T) {
		agg := testAggregate{BaseAggregateRoot: domain.NewBaseAggregateRoot(now)}
		later := now.Add(time.Hour)

		agg.Touch(later)

		assert.True(t, agg.CreatedAt().Equal(now))
		assert.True(t, agg.UpdatedAt().Equal(later))
	})

	t.Run("rehydrated aggregate keeps version", func(t *testing.T) {
		id := uuid.New()
		entity := domain.RehydrateBaseEntity(id, now, now)
		agg := testAggregate{BaseAggregateRoot: domain.RehydrateBaseAggregateRoot(entity, 3)}

		assert.Equal(t, id, agg.ID())
		assert.Equal(t, 3, agg.Version())
		assert.False(t, agg.IsNew())
	})
}

func TestSameIdentity(t *testing.T) {
	now := time.Now()
	id := uuid.New()
	a := domain.NewBaseEntityWithID(id, now)
	b := domain.NewBaseEntityWithID(id, now.Add(time.Minute))
	c := domain.NewBaseEntity(now)

	assert.True(t, domain.SameIdentity(a, b))
	assert.False(t, domain.SameIdentity(a, c))
	assert.False(t, domain.SameIdentity(a, nil))
}

func TestBaseEvent(t *testing.T) {
	aggregateID := uuid.New()
	occurred := time.Date(2024, 1, 3, 18, 0, 0, 0, time.UTC)
	event := testEvent{domain.NewBaseEvent(aggregateID, "rule", "recurrence.rule.fired", occurred)}

	assert.NotEqual(t, uuid.Nil, event.EventID())
	assert.Equal(t, aggregateID, event.AggregateID())
	assert.Equal(t, "rule", event.AggregateType())
	assert.Equal(t, "recurrence.rule.fired", event.RoutingKey())
	assert.Equal(t, occurred, event.OccurredAt())

	meta := domain.EventMetadata{UserID: uuid.New()}
	event.SetMetadata(meta)
	assert.Equal(t, meta, event.Metadata())
}
