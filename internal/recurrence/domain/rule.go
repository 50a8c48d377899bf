package domain

import (
	"strings"
	"time"

	sharedDomain "github.com/felixgeelhaar/tracklane/internal/shared/domain"
	"github.com/google/uuid"
)

// Rule is a recurring task template owned by one user. Its time of day is a
// wall-clock time in the process location: creation and edits read it from
// the zone of the clock's now, firing takes the location explicitly.
type Rule struct {
	sharedDomain.BaseAggregateRoot
	ownerID     uuid.UUID
	title       string
	description string
	definition  Definition
	nextFireAt  time.Time
	active      bool
	lastFiredAt *time.Time
	fireCount   int
}

// NewRule creates an active rule whose first occurrence is computed from now.
func NewRule(ownerID uuid.UUID, title, description string, def Definition, now time.Time) (*Rule, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	next, err := def.NextAfter(now)
	if err != nil {
		return nil, err
	}

	rule := &Rule{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(now),
		ownerID:           ownerID,
		title:             title,
		description:       description,
		definition:        def,
		nextFireAt:        next.UTC(),
		active:            true,
	}
	rule.AddDomainEvent(NewRuleCreated(rule, now))
	return rule, nil
}

// RehydrateRule rebuilds a rule from storage without validation, so a rule
// corrupted by another writer can still be loaded and reported.
func RehydrateRule(
	base sharedDomain.BaseAggregateRoot,
	ownerID uuid.UUID,
	title, description string,
	def Definition,
	nextFireAt time.Time,
	active bool,
	lastFiredAt *time.Time,
	fireCount int,
) *Rule {
	return &Rule{
		BaseAggregateRoot: base,
		ownerID:           ownerID,
		title:             title,
		description:       description,
		definition:        def,
		nextFireAt:        nextFireAt,
		active:            active,
		lastFiredAt:       lastFiredAt,
		fireCount:         fireCount,
	}
}

func (r *Rule) OwnerID() uuid.UUID      { return r.ownerID }
func (r *Rule) Title() string           { return r.title }
func (r *Rule) Description() string     { return r.description }
func (r *Rule) Definition() Definition  { return r.definition }
func (r *Rule) NextFireAt() time.Time   { return r.nextFireAt }
func (r *Rule) IsActive() bool          { return r.active }
func (r *Rule) LastFiredAt() *time.Time { return r.lastFiredAt }
func (r *Rule) FireCount() int          { return r.fireCount }

// IsOwnedBy reports whether userID owns the rule.
func (r *Rule) IsOwnedBy(userID uuid.UUID) bool {
	return r.ownerID == userID
}

// IsDue reports whether the rule should fire in a sweep at now.
func (r *Rule) IsDue(now time.Time) bool {
	return r.active && !r.nextFireAt.After(now)
}

// NextOccurrence returns the occurrence that follows the pending one,
// computed from nextFireAt viewed in loc. It fails when the stored
// definition is no longer valid.
func (r *Rule) NextOccurrence(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return r.definition.NextAfter(r.nextFireAt.In(loc))
}

// Fire records that the pending occurrence produced taskID and advances
// nextFireAt from the fired instant, not from now, so a late sweep keeps
// the cadence. The next occurrence is computed in loc whatever zone now
// carries.
func (r *Rule) Fire(taskID uuid.UUID, now time.Time, loc *time.Location) error {
	firedAt := r.nextFireAt
	next, err := r.NextOccurrence(loc)
	if err != nil {
		return err
	}

	r.nextFireAt = next.UTC()
	r.lastFiredAt = &firedAt
	r.fireCount++
	r.Touch(now)
	r.AddDomainEvent(NewRuleFired(r, taskID, firedAt, now))
	return nil
}

// Redefine applies an edit. nextFireAt is recomputed from now only when the
// schedule itself changed; it reports whether that happened.
func (r *Rule) Redefine(title, description string, def Definition, now time.Time) (bool, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return false, ErrEmptyTitle
	}
	if err := def.Validate(); err != nil {
		return false, err
	}

	rescheduled := false
	if !def.Equal(r.definition) {
		next, err := def.NextAfter(now)
		if err != nil {
			return false, err
		}
		r.definition = def
		r.nextFireAt = next.UTC()
		rescheduled = true
	}

	r.title = title
	r.description = description
	r.Touch(now)
	if rescheduled {
		r.AddDomainEvent(NewRuleRescheduled(r, now))
	}
	return rescheduled, nil
}

// Pause takes the rule out of sweeps. Pausing a paused rule is a no-op.
func (r *Rule) Pause(now time.Time) {
	if !r.active {
		return
	}
	r.active = false
	r.Touch(now)
	r.AddDomainEvent(NewRulePaused(r, now))
}

// Resume reactivates the rule. A nextFireAt that has already passed is
// recomputed from now, so the missed slots do not fire on reactivation.
func (r *Rule) Resume(now time.Time) error {
	if r.active {
		return nil
	}
	if !r.nextFireAt.After(now) {
		next, err := r.definition.NextAfter(now)
		if err != nil {
			return err
		}
		r.nextFireAt = next.UTC()
	}
	r.active = true
	r.Touch(now)
	r.AddDomainEvent(NewRuleResumed(r, now))
	return nil
}

// MarkDeleted raises the deletion event ahead of removal from storage.
func (r *Rule) MarkDeleted(now time.Time) {
	r.active = false
	r.Touch(now)
	r.AddDomainEvent(NewRuleDeleted(r, now))
}
