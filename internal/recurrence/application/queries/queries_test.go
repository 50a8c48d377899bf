package queries

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/tracklane/internal/recurrence/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRuleRepo struct {
	mock.Mock
}

func (m *mockRuleRepo) Save(ctx context.Context, rule *domain.Rule) error {
	return m.Called(ctx, rule).Error(0)
}

func (m *mockRuleRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Rule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Rule), args.Error(1)
}

func (m *mockRuleRepo) FindByOwner(ctx context.Context, ownerID uuid.UUID, includeInactive bool) ([]*domain.Rule, error) {
	args := m.Called(ctx, ownerID, includeInactive)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Rule), args.Error(1)
}

func (m *mockRuleRepo) FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.Rule, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Rule), args.Error(1)
}

func (m *mockRuleRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func weeklyRule(t *testing.T, ownerID uuid.UUID) *domain.Rule {
	t.Helper()
	days, err := domain.NewWeekdays(1, 3)
	require.NoError(t, err)
	tod, err := domain.NewTimeOfDay(18, 0)
	require.NoError(t, err)
	def, err := domain.NewDefinition(domain.FrequencyWeekly, days, tod)
	require.NoError(t, err)
	rule, err := domain.NewRule(ownerID, "Gym", "legs", def, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return rule
}

func TestGetRuleHandler_Handle(t *testing.T) {
	ownerID := uuid.New()

	t.Run("returns owned rule", func(t *testing.T) {
		repo := new(mockRuleRepo)
		handler := NewGetRuleHandler(repo, time.UTC)
		rule := weeklyRule(t, ownerID)
		repo.On("FindByID", mock.Anything, rule.ID()).Return(rule, nil)

		dto, err := handler.Handle(context.Background(), GetRuleQuery{RuleID: rule.ID(), UserID: ownerID})

		require.NoError(t, err)
		assert.Equal(t, "Gym", dto.Title)
		assert.Equal(t, "weekly", dto.Frequency)
		assert.Equal(t, []int{1, 3}, dto.Days)
		assert.Equal(t, "18:00", dto.Time)
		assert.True(t, dto.IsActive)
		assert.Equal(t, time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC), dto.NextFireAt)
		assert.Nil(t, dto.LastFiredAt)
	})

	t.Run("hides other users' rules", func(t *testing.T) {
		repo := new(mockRuleRepo)
		handler := NewGetRuleHandler(repo, time.UTC)
		rule := weeklyRule(t, ownerID)
		repo.On("FindByID", mock.Anything, rule.ID()).Return(rule, nil)

		_, err := handler.Handle(context.Background(), GetRuleQuery{RuleID: rule.ID(), UserID: uuid.New()})

		assert.ErrorIs(t, err, domain.ErrRuleNotOwner)
	})
}

func TestListRulesHandler_Handle(t *testing.T) {
	ownerID := uuid.New()

	t.Run("lists rules", func(t *testing.T) {
		repo := new(mockRuleRepo)
		handler := NewListRulesHandler(repo, time.UTC)
		rules := []*domain.Rule{weeklyRule(t, ownerID), weeklyRule(t, ownerID)}
		repo.On("FindByOwner", mock.Anything, ownerID, true).Return(rules, nil)

		dtos, err := handler.Handle(context.Background(), ListRulesQuery{OwnerID: ownerID, IncludeInactive: true})

		require.NoError(t, err)
		assert.Len(t, dtos, 2)
		repo.AssertExpectations(t)
	})

	t.Run("returns repository errors", func(t *testing.T) {
		repo := new(mockRuleRepo)
		handler := NewListRulesHandler(repo, time.UTC)
		repo.On("FindByOwner", mock.Anything, ownerID, false).Return(nil, errors.New("db down"))

		_, err := handler.Handle(context.Background(), ListRulesQuery{OwnerID: ownerID})

		assert.Error(t, err)
	})
}
