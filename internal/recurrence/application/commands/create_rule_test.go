package commands

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/tracklane/internal/recurrence/domain"
	"github.com/felixgeelhaar/tracklane/internal/shared/clock"
	"github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRuleRepo struct {
	mock.Mock
}

func (m *mockRuleRepo) Save(ctx context.Context, rule *domain.Rule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
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
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockOutboxRepo struct {
	mock.Mock
}

func (m *mockOutboxRepo) Save(ctx context.Context, msg *outbox.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *mockOutboxRepo) SaveBatch(ctx context.Context, msgs []*outbox.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *mockOutboxRepo) GetUnpublished(ctx context.Context, limit int) ([]*outbox.Message, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbox.Message), args.Error(1)
}

func (m *mockOutboxRepo) MarkPublished(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockOutboxRepo) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	args := m.Called(ctx, id, errMsg, nextRetryAt)
	return args.Error(0)
}

func (m *mockOutboxRepo) MarkDead(ctx context.Context, id int64, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

func (m *mockOutboxRepo) DeleteOld(ctx context.Context, olderThan time.Duration) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

type mockUnitOfWork struct {
	mock.Mock
}

func (m *mockUnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	args := m.Called(ctx)
	return args.Get(0).(context.Context), args.Error(1)
}

func (m *mockUnitOfWork) Commit(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockUnitOfWork) Rollback(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type txKey struct{}

func txContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, txKey{}, "transaction")
}

func messageCount(n int) any {
	return mock.MatchedBy(func(msgs []*outbox.Message) bool { return len(msgs) == n })
}

var testNow = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

func existingRule(t *testing.T, ownerID uuid.UUID, schedule ScheduleInput) *domain.Rule {
	t.Helper()
	def, err := schedule.Definition()
	require.NoError(t, err)
	rule, err := domain.NewRule(ownerID, "Stand-up", "daily sync", def, testNow)
	require.NoError(t, err)
	rule.ClearDomainEvents()
	return rule
}

func TestScheduleInput_Definition(t *testing.T) {
	t.Run("daily ignores days", func(t *testing.T) {
		def, err := ScheduleInput{Frequency: "daily", Days: []int{9}, Time: "09:00"}.Definition()

		require.NoError(t, err)
		assert.Equal(t, domain.FrequencyDaily, def.Frequency)
		assert.True(t, def.Days.IsEmpty())
	})

	t.Run("weekly days", func(t *testing.T) {
		def, err := ScheduleInput{Frequency: "weekly", Days: []int{1, 3}, Time: "18:00"}.Definition()

		require.NoError(t, err)
		assert.Equal(t, []int{1, 3}, def.Days.Indices())
	})

	invalid := []ScheduleInput{
		{Frequency: "weekly", Time: "18:00"},
		{Frequency: "weekly", Days: []int{7}, Time: "18:00"},
		{Frequency: "daily", Time: "24:00"},
		{Frequency: "daily", Time: "9am"},
		{Frequency: "monthly", Time: "09:00"},
	}
	for _, in := range invalid {
		_, err := in.Definition()
		assert.ErrorIs(t, err, domain.ErrInvalidRule, "%+v", in)
	}
}

func TestCreateRuleHandler_Handle(t *testing.T) {
	ownerID := uuid.New()

	t.Run("successfully creates rule", func(t *testing.T) {
		ruleRepo := new(mockRuleRepo)
		outboxRepo := new(mockOutboxRepo)
		uow := new(mockUnitOfWork)
		handler := NewCreateRuleHandler(ruleRepo, outboxRepo, uow, clock.NewManual(testNow))

		ctx := context.Background()
		txCtx := txContext(ctx)

		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Commit", txCtx).Return(nil)
		ruleRepo.On("Save", txCtx, mock.AnythingOfType("*domain.Rule")).Return(nil)
		outboxRepo.On("SaveBatch", txCtx, messageCount(1)).Return(nil)

		result, err := handler.Handle(ctx, CreateRuleCommand{
			OwnerID:  ownerID,
			Title:    "Stand-up",
			Schedule: ScheduleInput{Frequency: "daily", Time: "09:00"},
		})

		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, result.RuleID)
		assert.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), result.NextFireAt)

		uow.AssertExpectations(t)
		ruleRepo.AssertExpectations(t)
		outboxRepo.AssertExpectations(t)
	})

	t.Run("rejects weekly rule without days before opening a transaction", func(t *testing.T) {
		ruleRepo := new(mockRuleRepo)
		outboxRepo := new(mockOutboxRepo)
		uow := new(mockUnitOfWork)
		handler := NewCreateRuleHandler(ruleRepo, outboxRepo, uow, clock.NewManual(testNow))

		_, err := handler.Handle(context.Background(), CreateRuleCommand{
			OwnerID:  ownerID,
			Title:    "Gym",
			Schedule: ScheduleInput{Frequency: "weekly", Time: "18:00"},
		})

		assert.ErrorIs(t, err, domain.ErrEmptyWeekdays)
		uow.AssertNotCalled(t, "Begin", mock.Anything)
	})

	t.Run("rejects empty title", func(t *testing.T) {
		handler := NewCreateRuleHandler(new(mockRuleRepo), new(mockOutboxRepo), new(mockUnitOfWork), clock.NewManual(testNow))

		_, err := handler.Handle(context.Background(), CreateRuleCommand{
			OwnerID:  ownerID,
			Title:    "  ",
			Schedule: ScheduleInput{Frequency: "daily", Time: "09:00"},
		})

		assert.ErrorIs(t, err, domain.ErrEmptyTitle)
	})

	t.Run("rolls back when save fails", func(t *testing.T) {
		ruleRepo := new(mockRuleRepo)
		outboxRepo := new(mockOutboxRepo)
		uow := new(mockUnitOfWork)
		handler := NewCreateRuleHandler(ruleRepo, outboxRepo, uow, clock.NewManual(testNow))

		ctx := context.Background()
		txCtx := txContext(ctx)

		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Rollback", txCtx).Return(nil)
		ruleRepo.On("Save", txCtx, mock.AnythingOfType("*domain.Rule")).Return(errors.New("db error"))

		_, err := handler.Handle(ctx, CreateRuleCommand{
			OwnerID:  ownerID,
			Title:    "Stand-up",
			Schedule: ScheduleInput{Frequency: "daily", Time: "09:00"},
		})

		require.Error(t, err)
		uow.AssertExpectations(t)
		outboxRepo.AssertNotCalled(t, "SaveBatch", mock.Anything, mock.Anything)
	})
}
