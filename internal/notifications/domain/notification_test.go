package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validParams() Params {
	resource := uuid.New()
	return Params{
		RecipientID:  uuid.New(),
		Type:         TypeAssignment,
		ResourceType: ResourceDefect,
		ResourceID:   &resource,
		Message:      " You were assigned DEF-12 ",
	}
}

func TestNewNotification(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	t.Run("valid", func(t *testing.T) {
		p := validParams()
		n, err := NewNotification(p, now)
		require.NoError(t, err)

		assert.Equal(t, "You were assigned DEF-12", n.Message())
		assert.Equal(t, TypeAssignment, n.Type())
		assert.False(t, n.IsRead())

		require.Len(t, n.DomainEvents(), 1)
		evt, ok := n.DomainEvents()[0].(*NotificationCreated)
		require.True(t, ok)
		assert.Equal(t, RoutingKeyNotificationCreated, evt.RoutingKey())
		assert.Equal(t, p.RecipientID, evt.RecipientID)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		p := validParams()
		p.Message = "  "
		_, err := NewNotification(p, now)
		assert.ErrorIs(t, err, ErrEmptyMessage)

		p = validParams()
		p.Type = "poke"
		_, err = NewNotification(p, now)
		assert.ErrorIs(t, err, ErrUnknownType)

		p = validParams()
		p.ResourceType = "ticket"
		_, err = NewNotification(p, now)
		assert.ErrorIs(t, err, ErrUnknownResourceType)

		p = validParams()
		p.RecipientID = uuid.Nil
		_, err = NewNotification(p, now)
		assert.Error(t, err)
	})
}

func TestNotification_MarkRead(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	n, err := NewNotification(validParams(), now)
	require.NoError(t, err)
	n.ClearDomainEvents()

	later := now.Add(time.Hour)
	assert.True(t, n.MarkRead(later))
	require.NotNil(t, n.ReadAt())
	assert.Equal(t, later, *n.ReadAt())
	require.Len(t, n.DomainEvents(), 1)
	assert.Equal(t, RoutingKeyNotificationRead, n.DomainEvents()[0].RoutingKey())

	assert.False(t, n.MarkRead(later.Add(time.Hour)))
	assert.Equal(t, later, *n.ReadAt())
	assert.Len(t, n.DomainEvents(), 1)
}

func TestNotification_Payload(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	p := validParams()
	n, err := NewNotification(p, now)
	require.NoError(t, err)

	payload := n.Payload()
	assert.Equal(t, n.ID(), payload.ID)
	assert.Equal(t, p.RecipientID, payload.RecipientID)
	assert.Equal(t, ResourceDefect, payload.ResourceType)
	assert.Equal(t, p.ResourceID, payload.ResourceID)
	assert.Equal(t, now, payload.CreatedAt)
}

func TestParseType(t *testing.T) {
	tests := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{"assignment", TypeAssignment, false},
		{" Status_Change ", TypeStatusChange, false},
		{"task_generated", TypeTaskGenerated, false},
		{"", "", true},
		{"digest", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseType(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
