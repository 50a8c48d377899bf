package taskstore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/felixgeelhaar/tracklane/internal/recurrence/application/services"
	"github.com/felixgeelhaar/tracklane/internal/recurrence/domain"
	rulePersistence "github.com/felixgeelhaar/tracklane/internal/recurrence/infrastructure/persistence"
	"github.com/felixgeelhaar/tracklane/internal/shared/clock"
	"github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/outbox"
	sharedPersistence "github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/persistence"
	taskDomain "github.com/felixgeelhaar/tracklane/internal/tasks/domain"
	taskPersistence "github.com/felixgeelhaar/tracklane/internal/tasks/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

type fixture struct {
	store  *Store
	rules  *rulePersistence.SQLiteRuleRepository
	tasks  *taskPersistence.SQLiteTaskRepository
	outbox *outbox.SQLiteRepository
	clock  *clock.Manual
}

func setup(t *testing.T, start time.Time) fixture {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, migrations.RunSQLiteMigrations(context.Background(), db))
	t.Cleanup(func() { _ = db.Close() })

	f := fixture{
		rules:  rulePersistence.NewSQLiteRuleRepository(db),
		tasks:  taskPersistence.NewSQLiteTaskRepository(db),
		outbox: outbox.NewSQLiteRepository(db),
		clock:  clock.NewManual(start),
	}
	f.store = New(f.rules, f.tasks, f.outbox, sharedPersistence.NewSQLiteUnitOfWork(db), f.clock, 0, nil)
	return f
}

func routingKeys(t *testing.T, repo outbox.Repository) []string {
	t.Helper()
	msgs, err := repo.GetUnpublished(context.Background(), 100)
	require.NoError(t, err)
	keys := make([]string, 0, len(msgs))
	for _, m := range msgs {
		keys = append(keys, m.RoutingKey)
	}
	return keys
}

func dailyRule(t *testing.T, now time.Time) *domain.Rule {
	t.Helper()
	def, err := domain.NewDefinition(domain.FrequencyDaily, 0, domain.TimeOfDay{Hour: 9})
	require.NoError(t, err)
	rule, err := domain.NewRule(uuid.New(), "Stand-up", "", def, now)
	require.NoError(t, err)
	return rule
}

func TestStore_CreateTask(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 9, 5, 0, 0, time.UTC)

	t.Run("creates a task and its event", func(t *testing.T) {
		f := setup(t, now)
		nt := services.NewTask{
			OwnerID:      uuid.New(),
			Title:        "Stand-up",
			DueAt:        time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
			SourceRuleID: uuid.New(),
		}

		id, err := f.store.CreateTask(ctx, nt)

		require.NoError(t, err)
		task, err := f.tasks.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, nt.OwnerID, task.OwnerID())
		assert.True(t, nt.DueAt.Equal(task.DueAt()))
		assert.Equal(t, []string{taskDomain.RoutingKeyTaskGenerated}, routingKeys(t, f.outbox))
	})

	t.Run("repeating an occurrence returns the existing task", func(t *testing.T) {
		f := setup(t, now)
		nt := services.NewTask{
			OwnerID:      uuid.New(),
			Title:        "Stand-up",
			DueAt:        time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
			SourceRuleID: uuid.New(),
		}

		first, err := f.store.CreateTask(ctx, nt)
		require.NoError(t, err)
		second, err := f.store.CreateTask(ctx, nt)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		tasks, err := f.tasks.FindByOwner(ctx, nt.OwnerID, 0)
		require.NoError(t, err)
		assert.Len(t, tasks, 1)
		assert.Len(t, routingKeys(t, f.outbox), 1)
	})

	t.Run("rejects an empty title", func(t *testing.T) {
		f := setup(t, now)

		_, err := f.store.CreateTask(ctx, services.NewTask{OwnerID: uuid.New(), SourceRuleID: uuid.New(), DueAt: now})

		assert.ErrorIs(t, err, taskDomain.ErrTaskEmptyTitle)
	})
}

func TestStore_SaveRule(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	f := setup(t, now)
	rule := dailyRule(t, now)

	require.NoError(t, f.store.SaveRule(ctx, rule))

	assert.Empty(t, rule.DomainEvents())
	assert.Equal(t, []string{domain.RoutingKeyRuleCreated}, routingKeys(t, f.outbox))
	found, err := f.rules.FindByID(ctx, rule.ID())
	require.NoError(t, err)
	assert.Equal(t, rule.NextFireAt(), found.NextFireAt())
}

func TestStore_DrivesSweep(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	f := setup(t, start)
	rule := dailyRule(t, start)
	require.NoError(t, f.store.SaveRule(ctx, rule))

	scheduler := services.NewRuleScheduler(f.store, time.UTC, 2, nil, nil)
	sweepAt := time.Date(2024, 1, 1, 9, 5, 0, 0, time.UTC)

	report, err := scheduler.Sweep(ctx, sweepAt)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fired)

	stored, err := f.rules.FindByID(ctx, rule.ID())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), stored.NextFireAt())
	assert.Equal(t, 1, stored.FireCount())

	tasks, err := f.tasks.FindByOwner(ctx, rule.OwnerID(), 0)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.True(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC).Equal(tasks[0].DueAt()))

	assert.ElementsMatch(t, []string{
		domain.RoutingKeyRuleCreated,
		taskDomain.RoutingKeyTaskGenerated,
		domain.RoutingKeyRuleFired,
	}, routingKeys(t, f.outbox))

	// A second sweep at the same instant finds nothing due.
	report, err = scheduler.Sweep(ctx, sweepAt)
	require.NoError(t, err)
	assert.Zero(t, report.Due)
}

func TestStore_SweepWithUTCInstantKeepsLocalTimeOfDay(t *testing.T) {
	ctx := context.Background()
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	start := time.Date(2024, 3, 4, 8, 0, 0, 0, ny)
	f := setup(t, start)
	rule := dailyRule(t, start)
	require.NoError(t, f.store.SaveRule(ctx, rule))

	sweepAt, err := time.Parse(time.RFC3339, "2024-03-04T15:00:00Z")
	require.NoError(t, err)
	report, err := services.NewRuleScheduler(f.store, ny, 1, nil, nil).Sweep(ctx, sweepAt)
	require.NoError(t, err)
	require.Equal(t, 1, report.Fired)

	stored, err := f.rules.FindByID(ctx, rule.ID())
	require.NoError(t, err)
	next := stored.NextFireAt().In(ny)
	assert.True(t, time.Date(2024, 3, 5, 9, 0, 0, 0, ny).Equal(next), "next fire at %s", next)

	tasks, err := f.tasks.FindByOwner(ctx, rule.OwnerID(), 0)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.True(t, time.Date(2024, 3, 4, 9, 0, 0, 0, ny).Equal(tasks[0].DueAt()))
}

func TestStore_ConcurrentWorkersFenceOnVersion(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	f := setup(t, start)
	rule := dailyRule(t, start)
	require.NoError(t, f.store.SaveRule(ctx, rule))

	sweepAt := time.Date(2024, 1, 1, 9, 5, 0, 0, time.UTC)
	// Two workers load the same due rule before either writes.
	a, err := f.store.FindDueRules(ctx, sweepAt)
	require.NoError(t, err)
	b, err := f.store.FindDueRules(ctx, sweepAt)
	require.NoError(t, err)

	report, err := services.NewRuleScheduler(staticStore{f.store, a}, time.UTC, 1, nil, nil).Sweep(ctx, sweepAt)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fired)

	report, err = services.NewRuleScheduler(staticStore{f.store, b}, time.UTC, 1, nil, nil).Sweep(ctx, sweepAt)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	var storeErr *services.StoreError
	require.ErrorAs(t, report.Errors[0], &storeErr)
	assert.Equal(t, "save_rule", storeErr.Op)
	assert.ErrorIs(t, storeErr, domain.ErrRuleConflict)

	tasks, err := f.tasks.FindByOwner(ctx, rule.OwnerID(), 0)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

// staticStore replays a due set loaded earlier.
type staticStore struct {
	*Store
	due []*domain.Rule
}

func (s staticStore) FindDueRules(context.Context, time.Time) ([]*domain.Rule, error) {
	return s.due, nil
}
