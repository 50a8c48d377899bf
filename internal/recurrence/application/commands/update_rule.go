package commands

import (
	"context"
	"time"

	"github.com/felixgeelhaar/tracklane/internal/recurrence/domain"
	sharedApplication "github.com/felixgeelhaar/tracklane/internal/shared/application"
	"github.com/felixgeelhaar/tracklane/internal/shared/clock"
	"github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
)

// UpdateRuleCommand replaces a rule's template and schedule.
type UpdateRuleCommand struct {
	RuleID      uuid.UUID
	UserID      uuid.UUID
	Title       string
	Description string
	Schedule    ScheduleInput
}

// UpdateRuleResult reports the rule's schedule after the edit.
type UpdateRuleResult struct {
	NextFireAt  time.Time
	Rescheduled bool
}

// UpdateRuleHandler handles the UpdateRuleCommand.
type UpdateRuleHandler struct {
	ruleRepo   domain.Repository
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	clock      clock.Clock
}

// NewUpdateRuleHandler creates a new UpdateRuleHandler.
func NewUpdateRuleHandler(ruleRepo domain.Repository, outboxRepo outbox.Repository, uow sharedApplication.UnitOfWork, clk clock.Clock) *UpdateRuleHandler {
	return &UpdateRuleHandler{
		ruleRepo:   ruleRepo,
		outboxRepo: outboxRepo,
		uow:        uow,
		clock:      clk,
	}
}

// Handle executes the UpdateRuleCommand. nextFireAt only moves when the
// schedule itself changed.
func (h *UpdateRuleHandler) Handle(ctx context.Context, cmd UpdateRuleCommand) (*UpdateRuleResult, error) {
	def, err := cmd.Schedule.Definition()
	if err != nil {
		return nil, err
	}

	var result UpdateRuleResult
	err = sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		rule, err := loadOwnedRule(txCtx, h.ruleRepo, cmd.RuleID, cmd.UserID)
		if err != nil {
			return err
		}

		rescheduled, err := rule.Redefine(cmd.Title, cmd.Description, def, h.clock.Now())
		if err != nil {
			return err
		}
		if err := h.ruleRepo.Save(txCtx, rule); err != nil {
			return err
		}

		result = UpdateRuleResult{NextFireAt: rule.NextFireAt(), Rescheduled: rescheduled}
		return saveEvents(txCtx, h.outboxRepo, rule, cmd.UserID)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
