package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/tracklane/internal/recurrence/domain"
	"github.com/felixgeelhaar/tracklane/pkg/observability"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// NewTask describes the task materialised for one rule occurrence.
type NewTask struct {
	OwnerID      uuid.UUID
	Title        string
	Description  string
	DueAt        time.Time
	SourceRuleID uuid.UUID
}

// TaskStore is the persistence boundary a sweep runs against.
type TaskStore interface {
	// FindDueRules returns active rules with nextFireAt <= now.
	FindDueRules(ctx context.Context, now time.Time) ([]*domain.Rule, error)
	// CreateTask materialises one occurrence and returns the task ID.
	CreateTask(ctx context.Context, task NewTask) (uuid.UUID, error)
	// SaveRule persists a rule after it fired.
	SaveRule(ctx context.Context, rule *domain.Rule) error
}

// StoreError is a persistence failure while processing one rule. The rule
// stays due and is retried by the next sweep.
type StoreError struct {
	Op     string
	RuleID uuid.UUID
	Err    error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s for rule %s: %v", e.Op, e.RuleID, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// SweepReport summarises one sweep.
type SweepReport struct {
	StartedAt time.Time
	Duration  time.Duration
	Due       int
	Fired     int
	Skipped   int
	Failed    int
	Errors    []error
}

type outcome int

const (
	outcomeFired outcome = iota
	outcomeSkipped
	outcomeFailed
)

// DefaultSweepWorkers bounds per-rule parallelism when no value is configured.
const DefaultSweepWorkers = 4

// RuleScheduler turns due rules into tasks and advances their schedule.
type RuleScheduler struct {
	store   TaskStore
	loc     *time.Location
	workers int
	logger  *slog.Logger
	metrics observability.Metrics
}

// NewRuleScheduler creates a scheduler processing up to workers rules at once.
// Rule times of day are read in loc; nil means time.Local.
func NewRuleScheduler(store TaskStore, loc *time.Location, workers int, logger *slog.Logger, metrics observability.Metrics) *RuleScheduler {
	if loc == nil {
		loc = time.Local
	}
	if workers <= 0 {
		workers = DefaultSweepWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &RuleScheduler{
		store:   store,
		loc:     loc,
		workers: workers,
		logger:  logger,
		metrics: metrics,
	}
}

// Sweep fires every rule due at now. Each rule is processed independently:
// a failure is recorded in the report and never aborts the others. The
// returned error is set only when the due set itself could not be loaded.
func (s *RuleScheduler) Sweep(ctx context.Context, now time.Time) (SweepReport, error) {
	now = now.In(s.loc)
	report := SweepReport{StartedAt: now}
	start := time.Now()

	rules, err := s.store.FindDueRules(ctx, now)
	if err != nil {
		s.metrics.Counter(observability.MetricSweepRuns, 1, observability.T("result", "error"))
		return report, fmt.Errorf("find due rules: %w", err)
	}

	due := dueSet(rules, now)
	report.Due = len(due)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.workers)
	for _, rule := range due {
		g.Go(func() error {
			result, err := s.fire(ctx, rule, now)
			mu.Lock()
			defer mu.Unlock()
			switch result {
			case outcomeFired:
				report.Fired++
			case outcomeSkipped:
				report.Skipped++
			case outcomeFailed:
				report.Failed++
			}
			if err != nil {
				report.Errors = append(report.Errors, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start)
	s.record(report)
	return report, nil
}

// dueSet drops duplicates and anything not actually due, so a rule is
// materialised at most once per sweep whatever the store returned.
func dueSet(rules []*domain.Rule, now time.Time) []*domain.Rule {
	seen := make(map[uuid.UUID]struct{}, len(rules))
	due := make([]*domain.Rule, 0, len(rules))
	for _, rule := range rules {
		if rule == nil || !rule.IsDue(now) {
			continue
		}
		if _, ok := seen[rule.ID()]; ok {
			continue
		}
		seen[rule.ID()] = struct{}{}
		due = append(due, rule)
	}
	return due
}

func (s *RuleScheduler) fire(ctx context.Context, rule *domain.Rule, now time.Time) (outcome, error) {
	if err := ctx.Err(); err != nil {
		return outcomeFailed, err
	}

	log := s.logger.With("rule_id", rule.ID(), "user_id", rule.OwnerID())

	// A definition corrupted after creation is left active for its owner to fix.
	if _, err := rule.NextOccurrence(s.loc); err != nil {
		log.Error("skipping rule with invalid schedule", "error", err)
		return outcomeSkipped, fmt.Errorf("rule %s: %w", rule.ID(), err)
	}

	dueAt := rule.NextFireAt()
	taskID, err := s.store.CreateTask(ctx, NewTask{
		OwnerID:      rule.OwnerID(),
		Title:        rule.Title(),
		Description:  rule.Description(),
		DueAt:        dueAt,
		SourceRuleID: rule.ID(),
	})
	if err != nil {
		storeErr := &StoreError{Op: "create_task", RuleID: rule.ID(), Err: err}
		log.Error("failed to create task for rule", "error", err)
		return outcomeFailed, storeErr
	}

	if err := rule.Fire(taskID, now, s.loc); err != nil {
		log.Error("failed to advance rule", "task_id", taskID, "error", err)
		return outcomeSkipped, fmt.Errorf("rule %s: %w", rule.ID(), err)
	}

	if err := s.store.SaveRule(ctx, rule); err != nil {
		storeErr := &StoreError{Op: "save_rule", RuleID: rule.ID(), Err: err}
		log.Error("failed to save fired rule", "task_id", taskID, "error", err)
		return outcomeFailed, storeErr
	}

	log.Info("rule fired",
		"task_id", taskID,
		"due_at", dueAt,
		"next_fire_at", rule.NextFireAt(),
	)
	return outcomeFired, nil
}

func (s *RuleScheduler) record(report SweepReport) {
	s.metrics.Counter(observability.MetricSweepRuns, 1, observability.T("result", "ok"))
	s.metrics.Counter(observability.MetricSweepFired, int64(report.Fired))
	s.metrics.Counter(observability.MetricSweepSkipped, int64(report.Skipped))
	s.metrics.Counter(observability.MetricSweepFailed, int64(report.Failed))
	s.metrics.Timing(observability.MetricSweepDuration, report.Duration)

	if report.Due == 0 {
		s.logger.Debug("sweep finished, nothing due")
		return
	}
	s.logger.Info("sweep finished",
		"due", report.Due,
		"fired", report.Fired,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"duration_ms", report.Duration.Milliseconds(),
	)
}
