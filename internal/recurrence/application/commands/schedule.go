package commands

import (
	"context"

	"github.com/felixgeelhaar/tracklane/internal/recurrence/domain"
	sharedApplication "github.com/felixgeelhaar/tracklane/internal/shared/application"
	"github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
)

// ScheduleInput is a rule's schedule as callers express it.
type ScheduleInput struct {
	Frequency string
	Days      []int  // weekday indices, Sunday=0; weekly rules only
	Time      string // "HH:MM"
}

// Definition validates the input and converts it to a domain definition.
func (in ScheduleInput) Definition() (domain.Definition, error) {
	freq, err := domain.ParseFrequency(in.Frequency)
	if err != nil {
		return domain.Definition{}, err
	}
	tod, err := domain.ParseTimeOfDay(in.Time)
	if err != nil {
		return domain.Definition{}, err
	}

	var days domain.Weekdays
	if freq == domain.FrequencyWeekly {
		days, err = domain.NewWeekdays(in.Days...)
		if err != nil {
			return domain.Definition{}, err
		}
	}
	return domain.NewDefinition(freq, days, tod)
}

func loadOwnedRule(ctx context.Context, repo domain.Repository, ruleID, userID uuid.UUID) (*domain.Rule, error) {
	rule, err := repo.FindByID(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if !rule.IsOwnedBy(userID) {
		return nil, domain.ErrRuleNotOwner
	}
	return rule, nil
}

func saveEvents(ctx context.Context, outboxRepo outbox.Repository, rule *domain.Rule, userID uuid.UUID) error {
	events := rule.DomainEvents()
	if len(events) == 0 {
		return nil
	}
	sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(ctx, userID))

	msgs, err := outbox.MessagesFromEvents(events)
	if err != nil {
		return err
	}
	if err := outboxRepo.SaveBatch(ctx, msgs); err != nil {
		return err
	}
	rule.ClearDomainEvents()
	return nil
}
