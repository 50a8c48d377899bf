package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeneratedTask(t *testing.T) {
	now := time.Date(2024, 1, 1, 9, 5, 0, 0, time.UTC)
	due := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	owner, rule := uuid.New(), uuid.New()

	task, err := NewGeneratedTask(owner, " Water plants ", "all of them", due, rule, now)
	require.NoError(t, err)

	assert.Equal(t, "Water plants", task.Title())
	assert.Equal(t, StatusOpen, task.Status())
	assert.Equal(t, due, task.DueAt())
	require.NotNil(t, task.SourceRuleID())
	assert.Equal(t, rule, *task.SourceRuleID())

	require.Len(t, task.DomainEvents(), 1)
	evt, ok := task.DomainEvents()[0].(*TaskGenerated)
	require.True(t, ok)
	assert.Equal(t, RoutingKeyTaskGenerated, evt.RoutingKey())
	assert.Equal(t, owner, evt.OwnerID)
	assert.Equal(t, rule, evt.SourceRuleID)

	_, err = NewGeneratedTask(owner, "", "", due, rule, now)
	assert.ErrorIs(t, err, ErrTaskEmptyTitle)
}

func TestTask_Complete(t *testing.T) {
	now := time.Now()
	task, err := NewGeneratedTask(uuid.New(), "x", "", now, uuid.New(), now)
	require.NoError(t, err)

	require.NoError(t, task.Complete(now))
	assert.Equal(t, StatusCompleted, task.Status())
	assert.ErrorIs(t, task.Complete(now), ErrTaskCompleted)
}
