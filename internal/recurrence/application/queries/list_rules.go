package queries

import (
	"context"
	"time"

	"github.com/felixgeelhaar/tracklane/internal/recurrence/domain"
	"github.com/google/uuid"
)

// ListRulesQuery contains the parameters for listing rules.
type ListRulesQuery struct {
	OwnerID         uuid.UUID
	IncludeInactive bool
}

// ListRulesHandler handles the ListRulesQuery.
type ListRulesHandler struct {
	ruleRepo domain.Repository
	loc      *time.Location
}

// NewListRulesHandler creates a new ListRulesHandler.
func NewListRulesHandler(ruleRepo domain.Repository, loc *time.Location) *ListRulesHandler {
	return &ListRulesHandler{ruleRepo: ruleRepo, loc: loc}
}

// Handle executes the ListRulesQuery.
func (h *ListRulesHandler) Handle(ctx context.Context, query ListRulesQuery) ([]RuleDTO, error) {
	rules, err := h.ruleRepo.FindByOwner(ctx, query.OwnerID, query.IncludeInactive)
	if err != nil {
		return nil, err
	}

	dtos := make([]RuleDTO, 0, len(rules))
	for _, r := range rules {
		dtos = append(dtos, ToRuleDTO(r, h.loc))
	}
	return dtos, nil
}
