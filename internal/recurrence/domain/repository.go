package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for rule persistence.
type Repository interface {
	// Save inserts a new rule or updates an existing one. Updates are
	// conditional on the loaded version and fail with ErrRuleConflict when
	// another writer got there first.
	Save(ctx context.Context, rule *Rule) error

	// FindByID returns ErrRuleNotFound when no rule matches.
	FindByID(ctx context.Context, id uuid.UUID) (*Rule, error)

	// FindByOwner lists an owner's rules ordered by next fire time.
	FindByOwner(ctx context.Context, ownerID uuid.UUID, includeInactive bool) ([]*Rule, error)

	// FindDue returns active rules with next_fire_at <= now, oldest first.
	// A limit <= 0 means no limit.
	FindDue(ctx context.Context, now time.Time, limit int) ([]*Rule, error)

	Delete(ctx context.Context, id uuid.UUID) error
}
