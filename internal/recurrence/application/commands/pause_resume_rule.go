package commands

import (
	"context"

	"github.com/felixgeelhaar/tracklane/internal/recurrence/domain"
	sharedApplication "github.com/felixgeelhaar/tracklane/internal/shared/application"
	"github.com/felixgeelhaar/tracklane/internal/shared/clock"
	"github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
)

// SetRuleActiveCommand pauses (Active=false) or resumes (Active=true) a rule.
type SetRuleActiveCommand struct {
	RuleID uuid.UUID
	UserID uuid.UUID
	Active bool
}

// SetRuleActiveHandler handles the SetRuleActiveCommand.
type SetRuleActiveHandler struct {
	ruleRepo   domain.Repository
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	clock      clock.Clock
}

// NewSetRuleActiveHandler creates a new SetRuleActiveHandler.
func NewSetRuleActiveHandler(ruleRepo domain.Repository, outboxRepo outbox.Repository, uow sharedApplication.UnitOfWork, clk clock.Clock) *SetRuleActiveHandler {
	return &SetRuleActiveHandler{
		ruleRepo:   ruleRepo,
		outboxRepo: outboxRepo,
		uow:        uow,
		clock:      clk,
	}
}

// Handle executes the SetRuleActiveCommand. Repeating the current state is a no-op.
func (h *SetRuleActiveHandler) Handle(ctx context.Context, cmd SetRuleActiveCommand) error {
	return sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		rule, err := loadOwnedRule(txCtx, h.ruleRepo, cmd.RuleID, cmd.UserID)
		if err != nil {
			return err
		}
		if rule.IsActive() == cmd.Active {
			return nil
		}

		now := h.clock.Now()
		if cmd.Active {
			if err := rule.Resume(now); err != nil {
				return err
			}
		} else {
			rule.Pause(now)
		}

		if err := h.ruleRepo.Save(txCtx, rule); err != nil {
			return err
		}
		return saveEvents(txCtx, h.outboxRepo, rule, cmd.UserID)
	})
}
