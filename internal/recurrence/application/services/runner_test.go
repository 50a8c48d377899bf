package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/tracklane/internal/shared/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
	last  atomic.Value
}

func (s *countingSweeper) Sweep(ctx context.Context, now time.Time) (SweepReport, error) {
	s.calls.Add(1)
	s.last.Store(now)
	return SweepReport{StartedAt: now, Due: 2, Fired: 2}, s.err
}

func TestSweepRunner(t *testing.T) {
	now := date(2024, 1, 1, 9, 5)

	t.Run("rejects an unparseable schedule", func(t *testing.T) {
		runner := NewSweepRunner(&countingSweeper{}, clock.NewManual(now), "every minute please", nil)

		err := runner.Start(context.Background())

		assert.Error(t, err)
		assert.False(t, runner.Stats().Running)
	})

	t.Run("run once sweeps at the clock's instant", func(t *testing.T) {
		sweeper := &countingSweeper{}
		runner := NewSweepRunner(sweeper, clock.NewManual(now), "", nil)

		report, err := runner.RunOnce(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 2, report.Fired)
		assert.Equal(t, now, sweeper.last.Load())

		stats := runner.Stats()
		assert.Equal(t, DefaultSweepSchedule, stats.Schedule)
		assert.Equal(t, uint64(1), stats.Runs)
		assert.Equal(t, uint64(2), stats.TotalFired)
		require.NotNil(t, stats.LastRunAt)
		assert.Equal(t, now, *stats.LastRunAt)
		assert.Empty(t, stats.LastError)
	})

	t.Run("records the last error", func(t *testing.T) {
		sweeper := &countingSweeper{err: errors.New("db down")}
		runner := NewSweepRunner(sweeper, clock.NewManual(now), "", nil)

		_, err := runner.RunOnce(context.Background())

		require.Error(t, err)
		assert.Equal(t, "db down", runner.Stats().LastError)
	})

	t.Run("timer drives sweeps until stopped", func(t *testing.T) {
		sweeper := &countingSweeper{}
		runner := NewSweepRunner(sweeper, clock.NewManual(now), "@every 1s", nil)

		require.NoError(t, runner.Start(context.Background()))
		assert.True(t, runner.Stats().Running)
		assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		runner.Stop(ctx)

		stopped := sweeper.calls.Load()
		time.Sleep(1200 * time.Millisecond)
		assert.Equal(t, stopped, sweeper.calls.Load())
		assert.False(t, runner.Stats().Running)
	})
}
