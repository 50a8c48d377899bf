package domain

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/tracklane/internal/shared/domain"
	"github.com/google/uuid"
)

const aggregateType = "RecurrenceRule"

const (
	RoutingKeyRuleCreated     = "recurrence.rule.created"
	RoutingKeyRuleRescheduled = "recurrence.rule.rescheduled"
	RoutingKeyRuleFired       = "recurrence.rule.fired"
	RoutingKeyRulePaused      = "recurrence.rule.paused"
	RoutingKeyRuleResumed     = "recurrence.rule.resumed"
	RoutingKeyRuleDeleted     = "recurrence.rule.deleted"
)

// RuleCreated is emitted when a rule is created.
type RuleCreated struct {
	sharedDomain.BaseEvent
	RuleID     uuid.UUID `json:"rule_id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	Title      string    `json:"title"`
	Frequency  string    `json:"frequency"`
	Days       []int     `json:"days_of_week,omitempty"`
	TimeOfDay  string    `json:"time_of_day"`
	NextFireAt time.Time `json:"next_fire_at"`
}

func NewRuleCreated(r *Rule, now time.Time) *RuleCreated {
	def := r.Definition()
	return &RuleCreated{
		BaseEvent:  sharedDomain.NewBaseEvent(r.ID(), aggregateType, RoutingKeyRuleCreated, now),
		RuleID:     r.ID(),
		OwnerID:    r.OwnerID(),
		Title:      r.Title(),
		Frequency:  string(def.Frequency),
		Days:       def.Days.Indices(),
		TimeOfDay:  def.Time.String(),
		NextFireAt: r.NextFireAt(),
	}
}

// RuleRescheduled is emitted when an edit changes the schedule.
type RuleRescheduled struct {
	sharedDomain.BaseEvent
	RuleID     uuid.UUID `json:"rule_id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	Frequency  string    `json:"frequency"`
	Days       []int     `json:"days_of_week,omitempty"`
	TimeOfDay  string    `json:"time_of_day"`
	NextFireAt time.Time `json:"next_fire_at"`
}

func NewRuleRescheduled(r *Rule, now time.Time) *RuleRescheduled {
	def := r.Definition()
	return &RuleRescheduled{
		BaseEvent:  sharedDomain.NewBaseEvent(r.ID(), aggregateType, RoutingKeyRuleRescheduled, now),
		RuleID:     r.ID(),
		OwnerID:    r.OwnerID(),
		Frequency:  string(def.Frequency),
		Days:       def.Days.Indices(),
		TimeOfDay:  def.Time.String(),
		NextFireAt: r.NextFireAt(),
	}
}

// RuleFired is emitted after a sweep materialised a task from the rule.
type RuleFired struct {
	sharedDomain.BaseEvent
	RuleID     uuid.UUID `json:"rule_id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	TaskID     uuid.UUID `json:"task_id"`
	FiredAt    time.Time `json:"fired_at"`
	NextFireAt time.Time `json:"next_fire_at"`
	FireCount  int       `json:"fire_count"`
}

func NewRuleFired(r *Rule, taskID uuid.UUID, firedAt, now time.Time) *RuleFired {
	return &RuleFired{
		BaseEvent:  sharedDomain.NewBaseEvent(r.ID(), aggregateType, RoutingKeyRuleFired, now),
		RuleID:     r.ID(),
		OwnerID:    r.OwnerID(),
		TaskID:     taskID,
		FiredAt:    firedAt,
		NextFireAt: r.NextFireAt(),
		FireCount:  r.FireCount(),
	}
}

// RuleStateChanged carries pause, resume and delete notifications.
type RuleStateChanged struct {
	sharedDomain.BaseEvent
	RuleID     uuid.UUID `json:"rule_id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	Active     bool      `json:"active"`
	NextFireAt time.Time `json:"next_fire_at"`
}

func newRuleStateChanged(r *Rule, routingKey string, now time.Time) *RuleStateChanged {
	return &RuleStateChanged{
		BaseEvent:  sharedDomain.NewBaseEvent(r.ID(), aggregateType, routingKey, now),
		RuleID:     r.ID(),
		OwnerID:    r.OwnerID(),
		Active:     r.IsActive(),
		NextFireAt: r.NextFireAt(),
	}
}

func NewRulePaused(r *Rule, now time.Time) *RuleStateChanged {
	return newRuleStateChanged(r, RoutingKeyRulePaused, now)
}

func NewRuleResumed(r *Rule, now time.Time) *RuleStateChanged {
	return newRuleStateChanged(r, RoutingKeyRuleResumed, now)
}

func NewRuleDeleted(r *Rule, now time.Time) *RuleStateChanged {
	return newRuleStateChanged(r, RoutingKeyRuleDeleted, now)
}
