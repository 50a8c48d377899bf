package domain

import (
	"time"

	"github.com/google/uuid"
)

// Entity represents a domain object with identity.
type Entity interface {
	ID() uuid.UUID
	CreatedAt() time.Time
	UpdatedAt() time.Time
}

// BaseEntity carries identity and audit timestamps.
// Timestamps are supplied by the caller so aggregates stay deterministic under a test clock.
type BaseEntity struct {
	id        uuid.UUID
	createdAt time.Time
	updatedAt time.Time
}

// NewBaseEntity creates an entity with a generated ID stamped at now.
func NewBaseEntity(now time.Time) BaseEntity {
	return NewBaseEntityWithID(uuid.New(), now)
}

// NewBaseEntityWithID creates an entity with a specific ID stamped at now.
func NewBaseEntityWithID(id uuid.UUID, now time.Time) BaseEntity {
	now = now.UTC()
	return BaseEntity{id: id, createdAt: now, updatedAt: now}
}

// RehydrateBaseEntity recreates an entity from persisted state.
func RehydrateBaseEntity(id uuid.UUID, createdAt, updatedAt time.Time) BaseEntity {
	return BaseEntity{id: id, createdAt: createdAt, updatedAt: updatedAt}
}

func (e BaseEntity) ID() uuid.UUID        { return e.id }
func (e BaseEntity) CreatedAt() time.Time { return e.createdAt }
func (e BaseEntity) UpdatedAt() time.Time { return e.updatedAt }

// Touch moves updatedAt forward to now.
func (e *BaseEntity) Touch(now time.Time) {
	e.updatedAt = now.UTC()
}

// SameIdentity reports whether two entities share an ID.
func SameIdentity(a, b Entity) bool {
	if a == nil || b == nil {
		return false
	}
	return a.ID() == b.ID()
}
