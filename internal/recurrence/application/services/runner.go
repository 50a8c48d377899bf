package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/tracklane/internal/shared/clock"
	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs a sweep once a minute.
const DefaultSweepSchedule = "@every 1m"

// Sweeper runs one sweep at the given instant.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (SweepReport, error)
}

// RunnerStats is the runner's state for health reporting.
type RunnerStats struct {
	Running      bool       `json:"running"`
	Schedule     string     `json:"schedule"`
	Runs         uint64     `json:"runs"`
	TotalFired   uint64     `json:"total_fired"`
	TotalFailed  uint64     `json:"total_failed"`
	LastRunAt    *time.Time `json:"last_run_at,omitempty"`
	LastDuration string     `json:"last_duration,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

// SweepRunner drives a Sweeper on a cron schedule. Sweeps never overlap: a
// tick that arrives while a sweep is running is dropped.
type SweepRunner struct {
	sweeper  Sweeper
	clock    clock.Clock
	schedule string
	logger   *slog.Logger

	// sweepMu serialises cron ticks with RunOnce callers.
	sweepMu sync.Mutex

	mu    sync.Mutex
	cron  *cron.Cron
	stats RunnerStats
}

// NewSweepRunner creates a runner. An empty schedule means DefaultSweepSchedule.
func NewSweepRunner(sweeper Sweeper, clk clock.Clock, schedule string, logger *slog.Logger) *SweepRunner {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepRunner{
		sweeper:  sweeper,
		clock:    clk,
		schedule: schedule,
		logger:   logger,
		stats:    RunnerStats{Schedule: schedule},
	}
}

// Start registers the schedule and starts the timer. A schedule that cannot
// be parsed is the only error. ctx bounds every sweep started by the timer.
func (r *SweepRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return nil
	}

	cl := cronLogger{logger: r.logger}
	c := cron.New(
		cron.WithLocation(r.clock.Now().Location()),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(r.schedule, func() {
		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.Error("sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("register sweep schedule %q: %w", r.schedule, err)
	}

	c.Start()
	r.cron = c
	r.stats.Running = true
	r.logger.Info("sweep runner started", "schedule", r.schedule)
	return nil
}

// Stop halts the timer and waits for a running sweep, or for ctx.
func (r *SweepRunner) Stop(ctx context.Context) {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.stats.Running = false
	r.mu.Unlock()
	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
		r.logger.Info("sweep runner stopped")
	case <-ctx.Done():
		r.logger.Warn("sweep runner stop timed out", "error", ctx.Err())
	}
}

// RunOnce runs a sweep now, waiting for any sweep already in progress.
func (r *SweepRunner) RunOnce(ctx context.Context) (SweepReport, error) {
	r.sweepMu.Lock()
	defer r.sweepMu.Unlock()

	now := r.clock.Now()
	report, err := r.sweeper.Sweep(ctx, now)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Runs++
	r.stats.TotalFired += uint64(report.Fired)
	r.stats.TotalFailed += uint64(report.Failed)
	r.stats.LastRunAt = &now
	r.stats.LastDuration = report.Duration.String()
	switch {
	case err != nil:
		r.stats.LastError = err.Error()
	case len(report.Errors) > 0:
		r.stats.LastError = report.Errors[len(report.Errors)-1].Error()
	default:
		r.stats.LastError = ""
	}
	return report, err
}

// Stats returns a copy of the runner's counters.
func (r *SweepRunner) Stats() RunnerStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := r.stats
	if stats.LastRunAt != nil {
		t := *stats.LastRunAt
		stats.LastRunAt = &t
	}
	return stats
}
