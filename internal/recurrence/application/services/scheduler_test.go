package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/tracklane/internal/recurrence/domain"
	sharedDomain "github.com/felixgeelhaar/tracklane/internal/shared/domain"
	"github.com/felixgeelhaar/tracklane/pkg/observability"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu        sync.Mutex
	due       []*domain.Rule
	findErr   error
	createErr map[uuid.UUID]error
	saveErr   map[uuid.UUID]error
	tasks     []NewTask
	saved     []uuid.UUID
}

func newFakeStore(rules ...*domain.Rule) *fakeStore {
	return &fakeStore{
		due:       rules,
		createErr: make(map[uuid.UUID]error),
		saveErr:   make(map[uuid.UUID]error),
	}
}

func (s *fakeStore) FindDueRules(ctx context.Context, now time.Time) ([]*domain.Rule, error) {
	return s.due, s.findErr
}

func (s *fakeStore) CreateTask(ctx context.Context, task NewTask) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.createErr[task.SourceRuleID]; err != nil {
		return uuid.Nil, err
	}
	s.tasks = append(s.tasks, task)
	return uuid.New(), nil
}

func (s *fakeStore) SaveRule(ctx context.Context, rule *domain.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveErr[rule.ID()]; err != nil {
		return err
	}
	s.saved = append(s.saved, rule.ID())
	return nil
}

func (s *fakeStore) tasksFor(ruleID uuid.UUID) []NewTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []NewTask
	for _, task := range s.tasks {
		if task.SourceRuleID == ruleID {
			out = append(out, task)
		}
	}
	return out
}

func newRule(t *testing.T, freq domain.Frequency, days []int, hour, minute int, createdAt time.Time) *domain.Rule {
	t.Helper()
	weekdays, err := domain.NewWeekdays(days...)
	require.NoError(t, err)
	tod, err := domain.NewTimeOfDay(hour, minute)
	require.NoError(t, err)
	def, err := domain.NewDefinition(freq, weekdays, tod)
	require.NoError(t, err)
	rule, err := domain.NewRule(uuid.New(), "Stand-up", "15 minutes", def, createdAt)
	require.NoError(t, err)
	rule.ClearDomainEvents()
	return rule
}

func date(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

func TestRuleScheduler_Sweep(t *testing.T) {
	ctx := context.Background()

	t.Run("daily rule fires once and advances a day", func(t *testing.T) {
		rule := newRule(t, domain.FrequencyDaily, nil, 9, 0, date(2024, 1, 1, 8, 0))
		require.Equal(t, date(2024, 1, 1, 9, 0), rule.NextFireAt())
		store := newFakeStore(rule)
		scheduler := NewRuleScheduler(store, time.UTC, 2, nil, nil)

		report, err := scheduler.Sweep(ctx, date(2024, 1, 1, 9, 5))

		require.NoError(t, err)
		assert.Equal(t, 1, report.Due)
		assert.Equal(t, 1, report.Fired)
		tasks := store.tasksFor(rule.ID())
		require.Len(t, tasks, 1)
		assert.Equal(t, date(2024, 1, 1, 9, 0), tasks[0].DueAt)
		assert.Equal(t, "Stand-up", tasks[0].Title)
		assert.Equal(t, "15 minutes", tasks[0].Description)
		assert.Equal(t, rule.OwnerID(), tasks[0].OwnerID)
		assert.Equal(t, date(2024, 1, 2, 9, 0), rule.NextFireAt())
		assert.Equal(t, 1, rule.FireCount())
		assert.Equal(t, []uuid.UUID{rule.ID()}, store.saved)
	})

	t.Run("time of day is read in the scheduler location whatever zone now has", func(t *testing.T) {
		ny, err := time.LoadLocation("America/New_York")
		require.NoError(t, err)
		rule := newRule(t, domain.FrequencyDaily, nil, 9, 0, time.Date(2024, 3, 8, 8, 0, 0, 0, ny))
		store := newFakeStore(rule)
		scheduler := NewRuleScheduler(store, ny, 1, nil, nil)

		// 15:00Z is 10:00 in New York, an hour after the 09:00 slot.
		report, err := scheduler.Sweep(ctx, time.Date(2024, 3, 8, 15, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Equal(t, 1, report.Fired)
		want := time.Date(2024, 3, 9, 9, 0, 0, 0, ny)
		assert.True(t, want.Equal(rule.NextFireAt()), "next fire at %s", rule.NextFireAt().In(ny))

		// Clocks spring forward overnight; the slot stays at 09:00 local.
		report, err = scheduler.Sweep(ctx, time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Equal(t, 1, report.Fired)
		want = time.Date(2024, 3, 10, 9, 0, 0, 0, ny)
		assert.True(t, want.Equal(rule.NextFireAt()), "next fire at %s", rule.NextFireAt().In(ny))
		assert.Equal(t, 13, rule.NextFireAt().UTC().Hour())
	})

	t.Run("weekly rule wraps to the following monday", func(t *testing.T) {
		rule := newRule(t, domain.FrequencyWeekly, []int{1, 3}, 18, 0, date(2024, 1, 3, 12, 0))
		require.Equal(t, date(2024, 1, 3, 18, 0), rule.NextFireAt())
		store := newFakeStore(rule)
		scheduler := NewRuleScheduler(store, time.UTC, 1, nil, nil)

		_, err := scheduler.Sweep(ctx, date(2024, 1, 3, 18, 1))

		require.NoError(t, err)
		assert.Equal(t, date(2024, 1, 8, 18, 0), rule.NextFireAt())
		require.Len(t, store.tasksFor(rule.ID()), 1)
	})

	t.Run("late sweep fires once and keeps the cadence", func(t *testing.T) {
		rule := newRule(t, domain.FrequencyDaily, nil, 9, 0, date(2024, 1, 1, 8, 0))
		store := newFakeStore(rule, rule)
		scheduler := NewRuleScheduler(store, time.UTC, 4, nil, nil)

		report, err := scheduler.Sweep(ctx, date(2024, 1, 10, 12, 0))

		require.NoError(t, err)
		assert.Equal(t, 1, report.Due)
		require.Len(t, store.tasksFor(rule.ID()), 1)
		assert.Equal(t, date(2024, 1, 1, 9, 0), store.tasksFor(rule.ID())[0].DueAt)
		assert.Equal(t, date(2024, 1, 2, 9, 0), rule.NextFireAt())
	})

	t.Run("ignores rules that are paused or not yet due", func(t *testing.T) {
		paused := newRule(t, domain.FrequencyDaily, nil, 9, 0, date(2024, 1, 1, 8, 0))
		paused.Pause(date(2024, 1, 1, 8, 0))
		future := newRule(t, domain.FrequencyDaily, nil, 23, 0, date(2024, 1, 1, 8, 0))
		store := newFakeStore(paused, future)
		scheduler := NewRuleScheduler(store, time.UTC, 2, nil, nil)

		report, err := scheduler.Sweep(ctx, date(2024, 1, 1, 9, 5))

		require.NoError(t, err)
		assert.Zero(t, report.Due)
		assert.Empty(t, store.tasks)
	})

	t.Run("create failure leaves rule due and spares the others", func(t *testing.T) {
		failing := newRule(t, domain.FrequencyDaily, nil, 9, 0, date(2024, 1, 1, 8, 0))
		healthy := newRule(t, domain.FrequencyDaily, nil, 9, 0, date(2024, 1, 1, 8, 0))
		store := newFakeStore(failing, healthy)
		store.createErr[failing.ID()] = errors.New("connection reset")
		scheduler := NewRuleScheduler(store, time.UTC, 2, nil, nil)

		report, err := scheduler.Sweep(ctx, date(2024, 1, 1, 9, 5))

		require.NoError(t, err)
		assert.Equal(t, 1, report.Fired)
		assert.Equal(t, 1, report.Failed)
		require.Len(t, report.Errors, 1)
		var storeErr *StoreError
		require.ErrorAs(t, report.Errors[0], &storeErr)
		assert.Equal(t, "create_task", storeErr.Op)
		assert.Equal(t, failing.ID(), storeErr.RuleID)

		assert.Equal(t, date(2024, 1, 1, 9, 0), failing.NextFireAt())
		assert.True(t, failing.IsDue(date(2024, 1, 1, 9, 5)))
		assert.Equal(t, date(2024, 1, 2, 9, 0), healthy.NextFireAt())
	})

	t.Run("save failure is reported as a store error", func(t *testing.T) {
		rule := newRule(t, domain.FrequencyDaily, nil, 9, 0, date(2024, 1, 1, 8, 0))
		store := newFakeStore(rule)
		store.saveErr[rule.ID()] = errors.New("disk full")
		scheduler := NewRuleScheduler(store, time.UTC, 1, nil, nil)

		report, err := scheduler.Sweep(ctx, date(2024, 1, 1, 9, 5))

		require.NoError(t, err)
		assert.Equal(t, 1, report.Failed)
		var storeErr *StoreError
		require.ErrorAs(t, report.Errors[0], &storeErr)
		assert.Equal(t, "save_rule", storeErr.Op)
		assert.Empty(t, store.saved)
	})

	t.Run("invalid rule is skipped and stays active", func(t *testing.T) {
		start := date(2024, 1, 1, 8, 0)
		broken := domain.RehydrateRule(
			sharedDomain.RehydrateBaseAggregateRoot(sharedDomain.RehydrateBaseEntity(uuid.New(), start, start), 1),
			uuid.New(), "Broken", "",
			domain.Definition{Frequency: domain.FrequencyWeekly, Time: domain.TimeOfDay{Hour: 18}},
			date(2024, 1, 1, 18, 0), true, nil, 0,
		)
		healthy := newRule(t, domain.FrequencyDaily, nil, 9, 0, start)
		store := newFakeStore(broken, healthy)
		scheduler := NewRuleScheduler(store, time.UTC, 2, nil, nil)

		report, err := scheduler.Sweep(ctx, date(2024, 1, 1, 19, 0))

		require.NoError(t, err)
		assert.Equal(t, 1, report.Skipped)
		assert.Equal(t, 1, report.Fired)
		require.Len(t, report.Errors, 1)
		assert.ErrorIs(t, report.Errors[0], domain.ErrEmptyWeekdays)
		assert.Empty(t, store.tasksFor(broken.ID()))
		assert.True(t, broken.IsActive())
	})

	t.Run("load failure fails the sweep", func(t *testing.T) {
		store := newFakeStore()
		store.findErr = errors.New("db down")
		scheduler := NewRuleScheduler(store, time.UTC, 1, nil, nil)

		_, err := scheduler.Sweep(ctx, date(2024, 1, 1, 9, 5))

		assert.Error(t, err)
	})

	t.Run("cancelled context processes nothing", func(t *testing.T) {
		rule := newRule(t, domain.FrequencyDaily, nil, 9, 0, date(2024, 1, 1, 8, 0))
		store := newFakeStore(rule)
		scheduler := NewRuleScheduler(store, time.UTC, 1, nil, nil)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		report, err := scheduler.Sweep(cancelled, date(2024, 1, 1, 9, 5))

		require.NoError(t, err)
		assert.Equal(t, 1, report.Failed)
		assert.Empty(t, store.tasks)
		assert.Equal(t, date(2024, 1, 1, 9, 0), rule.NextFireAt())
	})

	t.Run("records metrics", func(t *testing.T) {
		rule := newRule(t, domain.FrequencyDaily, nil, 9, 0, date(2024, 1, 1, 8, 0))
		metrics := observability.NewInMemoryMetrics()
		scheduler := NewRuleScheduler(newFakeStore(rule), time.UTC, 1, nil, metrics)

		_, err := scheduler.Sweep(ctx, date(2024, 1, 1, 9, 5))

		require.NoError(t, err)
		assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricSweepRuns, observability.T("result", "ok")))
		assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricSweepFired))
		assert.Len(t, metrics.GetTimings(observability.MetricSweepDuration), 1)
	})
}

// Every sweep over many rules and instants must leave each fired rule
// strictly after the occurrence it materialised.
func TestRuleScheduler_SweepAdvancesPastFiredInstant(t *testing.T) {
	start := date(2024, 2, 26, 0, 0)
	for hour := 0; hour < 24; hour += 5 {
		for _, days := range [][]int{{0}, {1, 3, 5}, {6}, {0, 1, 2, 3, 4, 5, 6}} {
			rule := newRule(t, domain.FrequencyWeekly, days, hour, 30, start)
			store := newFakeStore(rule)
			scheduler := NewRuleScheduler(store, time.UTC, 1, nil, nil)
			fired := rule.NextFireAt()

			_, err := scheduler.Sweep(context.Background(), fired.Add(time.Minute))

			require.NoError(t, err)
			assert.True(t, rule.NextFireAt().After(fired))
			assert.False(t, rule.NextFireAt().After(fired.AddDate(0, 0, 7)))
			assert.Contains(t, days, int(rule.NextFireAt().Weekday()))
		}
	}
}
