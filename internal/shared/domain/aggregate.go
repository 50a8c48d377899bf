package domain

import (
	"time"

	"github.com/google/uuid"
)

// AggregateRoot is the consistency boundary persisted by a repository.
type AggregateRoot interface {
	Entity
	DomainEvents() []DomainEvent
	ClearDomainEvents()
	Version() int
}

// BaseAggregateRoot collects uncommitted events and tracks the stored version
// used for optimistic concurrency.
type BaseAggregateRoot struct {
	BaseEntity
	domainEvents []DomainEvent
	version      int
}

// NewBaseAggregateRoot creates an unsaved aggregate root stamped at now.
func NewBaseAggregateRoot(now time.Time) BaseAggregateRoot {
	return BaseAggregateRoot{BaseEntity: NewBaseEntity(now)}
}

// NewBaseAggregateRootWithID creates an unsaved aggregate root with a known ID.
func NewBaseAggregateRootWithID(id uuid.UUID, now time.Time) BaseAggregateRoot {
	return BaseAggregateRoot{BaseEntity: NewBaseEntityWithID(id, now)}
}

// RehydrateBaseAggregateRoot recreates an aggregate from persisted state.
func RehydrateBaseAggregateRoot(entity BaseEntity, version int) BaseAggregateRoot {
	return BaseAggregateRoot{BaseEntity: entity, version: version}
}

// DomainEvents returns the uncommitted events in the order they were raised.
func (a *BaseAggregateRoot) DomainEvents() []DomainEvent {
	return a.domainEvents
}

// ClearDomainEvents drops all uncommitted events.
func (a *BaseAggregateRoot) ClearDomainEvents() {
	a.domainEvents = nil
}

// AddDomainEvent records an event raised by the aggregate.
func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.domainEvents = append(a.domainEvents, event)
}

// Version returns the version last persisted. Zero means never saved.
func (a *BaseAggregateRoot) Version() int {
	return a.version
}

// IsNew reports whether the aggregate has never been persisted.
func (a *BaseAggregateRoot) IsNew() bool {
	return a.version == 0
}

// SetVersion records the version written by the repository.
func (a *BaseAggregateRoot) SetVersion(version int) {
	a.version = version
}
