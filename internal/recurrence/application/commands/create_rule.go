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

// CreateRuleCommand contains the data needed to create a recurrence rule.
type CreateRuleCommand struct {
	OwnerID     uuid.UUID
	Title       string
	Description string
	Schedule    ScheduleInput
}

// CreateRuleResult contains the result of creating a rule.
type CreateRuleResult struct {
	RuleID     uuid.UUID
	NextFireAt time.Time
}

// CreateRuleHandler handles the CreateRuleCommand.
type CreateRuleHandler struct {
	ruleRepo   domain.Repository
	outboxRepo outbox.Repository
	uow        sharedApplication.UnitOfWork
	clock      clock.Clock
}

// NewCreateRuleHandler creates a new CreateRuleHandler.
func NewCreateRuleHandler(ruleRepo domain.Repository, outboxRepo outbox.Repository, uow sharedApplication.UnitOfWork, clk clock.Clock) *CreateRuleHandler {
	return &CreateRuleHandler{
		ruleRepo:   ruleRepo,
		outboxRepo: outboxRepo,
		uow:        uow,
		clock:      clk,
	}
}

// Handle executes the CreateRuleCommand. Malformed schedules are rejected
// before any transaction is opened.
func (h *CreateRuleHandler) Handle(ctx context.Context, cmd CreateRuleCommand) (*CreateRuleResult, error) {
	def, err := cmd.Schedule.Definition()
	if err != nil {
		return nil, err
	}
	rule, err := domain.NewRule(cmd.OwnerID, cmd.Title, cmd.Description, def, h.clock.Now())
	if err != nil {
		return nil, err
	}

	err = sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		if err := h.ruleRepo.Save(txCtx, rule); err != nil {
			return err
		}
		return saveEvents(txCtx, h.outboxRepo, rule, cmd.OwnerID)
	})
	if err != nil {
		return nil, err
	}

	return &CreateRuleResult{
		RuleID:     rule.ID(),
		NextFireAt: rule.NextFireAt(),
	}, nil
}
