package commands

import (
	"context"

	"github.com/felixgeelhaar/tracklane/internal/recurrence/domain"
	sharedApplication "github.com/felixgeelhaar/tracklane/internal/shared/application"
	"github.com/felixgeelhaar/tracklane/internal/shared/clock"
	"github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
)

// DeleteRuleCommand removes a rule. Tasks it already generated are kept.
type DeleteRuleCommand struct {
	RuleID uuid.UUID
	UserID uuid.UUID
}

// DeleteRuleHandler handles the DeleteRuleCommand.
type DeleteRuleHandler struct {
	ruleRepo   domain.Repository
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	clock      clock.Clock
}

// NewDeleteRuleHandler creates a new DeleteRuleHandler.
func NewDeleteRuleHandler(ruleRepo domain.Repository, outboxRepo outbox.Repository, uow sharedApplication.UnitOfWork, clk clock.Clock) *DeleteRuleHandler {
	return &DeleteRuleHandler{
		ruleRepo:   ruleRepo,
		outboxRepo: outboxRepo,
		uow:        uow,
		clock:      clk,
	}
}

// Handle executes the DeleteRuleCommand.
func (h *DeleteRuleHandler) Handle(ctx context.Context, cmd DeleteRuleCommand) error {
	return sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		rule, err := loadOwnedRule(txCtx, h.ruleRepo, cmd.RuleID, cmd.UserID)
		if err != nil {
			return err
		}

		rule.MarkDeleted(h.clock.Now())
		if err := saveEvents(txCtx, h.outboxRepo, rule, cmd.UserID); err != nil {
			return err
		}
		return h.ruleRepo.Delete(txCtx, rule.ID())
	})
}
