package queries

import (
	"context"
	"time"

	"github.com/felixgeelhaar/tracklane/internal/recurrence/domain"
	"github.com/google/uuid"
)

// GetRuleQuery fetches one rule owned by UserID.
type GetRuleQuery struct {
	RuleID uuid.UUID
	UserID uuid.UUID
}

// GetRuleHandler handles the GetRuleQuery.
type GetRuleHandler struct {
	ruleRepo domain.Repository
	loc      *time.Location
}

// NewGetRuleHandler creates a new GetRuleHandler.
func NewGetRuleHandler(ruleRepo domain.Repository, loc *time.Location) *GetRuleHandler {
	return &GetRuleHandler{ruleRepo: ruleRepo, loc: loc}
}

// Handle executes the GetRuleQuery.
func (h *GetRuleHandler) Handle(ctx context.Context, query GetRuleQuery) (*RuleDTO, error) {
	rule, err := h.ruleRepo.FindByID(ctx, query.RuleID)
	if err != nil {
		return nil, err
	}
	if !rule.IsOwnedBy(query.UserID) {
		return nil, domain.ErrRuleNotOwner
	}
	dto := ToRuleDTO(rule, h.loc)
	return &dto, nil
}
