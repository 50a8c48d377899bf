package queries

import (
	"time"

	"github.com/felixgeelhaar/tracklane/internal/recurrence/domain"
	"github.com/google/uuid"
)

// RuleDTO is a data transfer object for recurrence rules.
type RuleDTO struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Frequency   string     `json:"frequency"`
	Days        []int      `json:"days_of_week,omitempty"`
	Time        string     `json:"time_of_day"`
	NextFireAt  time.Time  `json:"next_fire_at"`
	IsActive    bool       `json:"is_active"`
	LastFiredAt *time.Time `json:"last_fired_at,omitempty"`
	FireCount   int        `json:"fire_count"`
}

// ToRuleDTO converts a rule into its transport shape. nextFireAt is shown in loc.
func ToRuleDTO(r *domain.Rule, loc *time.Location) RuleDTO {
	if loc == nil {
		loc = time.Local
	}
	def := r.Definition()
	dto := RuleDTO{
		ID:          r.ID(),
		Title:       r.Title(),
		Description: r.Description(),
		Frequency:   string(def.Frequency),
		Days:        def.Days.Indices(),
		Time:        def.Time.String(),
		NextFireAt:  r.NextFireAt().In(loc),
		IsActive:    r.IsActive(),
		FireCount:   r.FireCount(),
	}
	if last := r.LastFiredAt(); last != nil {
		t := last.In(loc)
		dto.LastFiredAt = &t
	}
	return dto
}
