package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for task persistence.
type Repository interface {
	Save(ctx context.Context, task *Task) error
	FindByID(ctx context.Context, id uuid.UUID) (*Task, error)

	// FindBySource returns the task generated for one rule occurrence, or
	// ErrTaskNotFound.
	FindBySource(ctx context.Context, ruleID uuid.UUID, dueAt time.Time) (*Task, error)

	// FindByOwner lists tasks by due date, newest first.
	FindByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*Task, error)
}
