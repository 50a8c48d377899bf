package domain

import (
	"errors"
	"strings"
	"time"

	sharedDomain "github.com/felixgeelhaar/tracklane/internal/shared/domain"
	"github.com/google/uuid"
)

var (
	ErrTaskEmptyTitle = errors.New("task title cannot be empty")
	ErrTaskNotFound   = errors.New("task not found")
	ErrTaskCompleted  = errors.New("task is already completed")
	// ErrDuplicateOccurrence means a task already exists for the same rule
	// and due instant.
	ErrDuplicateOccurrence = errors.New("task already generated for this occurrence")
)

// Status is a task's lifecycle state.
type Status string

const (
	StatusOpen      Status = "open"
	StatusCompleted Status = "completed"
)

// Task is an ordinary unit of work. Tasks generated by a recurrence rule
// remember the rule only as provenance; nothing links back afterwards.
type Task struct {
	sharedDomain.BaseAggregateRoot
	ownerID      uuid.UUID
	title        string
	description  string
	status       Status
	dueAt        time.Time
	sourceRuleID *uuid.UUID
}

// NewGeneratedTask creates a task materialised from a rule occurrence.
func NewGeneratedTask(ownerID uuid.UUID, title, description string, dueAt time.Time, ruleID uuid.UUID, now time.Time) (*Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrTaskEmptyTitle
	}

	task := &Task{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(now),
		ownerID:           ownerID,
		title:             title,
		description:       description,
		status:            StatusOpen,
		dueAt:             dueAt.UTC(),
		sourceRuleID:      &ruleID,
	}
	task.AddDomainEvent(NewTaskGenerated(task, now))
	return task, nil
}

// RehydrateTask recreates a task from persisted state.
func RehydrateTask(base sharedDomain.BaseAggregateRoot, ownerID uuid.UUID, title, description string, status Status, dueAt time.Time, sourceRuleID *uuid.UUID) *Task {
	return &Task{
		BaseAggregateRoot: base,
		ownerID:           ownerID,
		title:             title,
		description:       description,
		status:            status,
		dueAt:             dueAt,
		sourceRuleID:      sourceRuleID,
	}
}

func (t *Task) OwnerID() uuid.UUID       { return t.ownerID }
func (t *Task) Title() string            { return t.title }
func (t *Task) Description() string      { return t.description }
func (t *Task) Status() Status           { return t.status }
func (t *Task) DueAt() time.Time         { return t.dueAt }
func (t *Task) SourceRuleID() *uuid.UUID { return t.sourceRuleID }

// Complete marks the task done.
func (t *Task) Complete(now time.Time) error {
	if t.status == StatusCompleted {
		return ErrTaskCompleted
	}
	t.status = StatusCompleted
	t.Touch(now)
	return nil
}
