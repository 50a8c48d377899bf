package domain

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/tracklane/internal/shared/domain"
	"github.com/google/uuid"
)

const aggregateType = "Task"

// RoutingKeyTaskGenerated is published once per materialised occurrence.
const RoutingKeyTaskGenerated = "tasks.task.generated"

// TaskGenerated is emitted when a recurrence rule materialises a task.
type TaskGenerated struct {
	sharedDomain.BaseEvent
	TaskID       uuid.UUID `json:"task_id"`
	OwnerID      uuid.UUID `json:"owner_id"`
	Title        string    `json:"title"`
	DueAt        time.Time `json:"due_at"`
	SourceRuleID uuid.UUID `json:"source_rule_id"`
}

func NewTaskGenerated(t *Task, now time.Time) *TaskGenerated {
	evt := &TaskGenerated{
		BaseEvent: sharedDomain.NewBaseEvent(t.ID(), aggregateType, RoutingKeyTaskGenerated, now),
		TaskID:    t.ID(),
		OwnerID:   t.OwnerID(),
		Title:     t.Title(),
		DueAt:     t.DueAt(),
	}
	if t.SourceRuleID() != nil {
		evt.SourceRuleID = *t.SourceRuleID()
	}
	return evt
}
