// Package taskstore backs the rule scheduler with the rule and task
// repositories. Each write runs in its own unit of work together with the
// outbox, so a fired rule and its events commit or fail as one.
package taskstore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/tracklane/internal/recurrence/application/services"
	"github.com/felixgeelhaar/tracklane/internal/recurrence/domain"
	sharedApplication "github.com/felixgeelhaar/tracklane/internal/shared/application"
	"github.com/felixgeelhaar/tracklane/internal/shared/clock"
	sharedDomain "github.com/felixgeelhaar/tracklane/internal/shared/domain"
	"github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/outbox"
	taskDomain "github.com/felixgeelhaar/tracklane/internal/tasks/domain"
	"github.com/google/uuid"
)

// Store implements services.TaskStore.
type Store struct {
	rules     domain.Repository
	tasks     taskDomain.Repository
	outbox    outbox.Repository
	uow       sharedApplication.UnitOfWork
	clock     clock.Clock
	batchSize int
	logger    *slog.Logger
}

var _ services.TaskStore = (*Store)(nil)

// New creates a store. batchSize caps how many due rules one sweep loads;
// zero or less loads them all.
func New(
	rules domain.Repository,
	tasks taskDomain.Repository,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	clk clock.Clock,
	batchSize int,
	logger *slog.Logger,
) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		rules:     rules,
		tasks:     tasks,
		outbox:    outboxRepo,
		uow:       uow,
		clock:     clk,
		batchSize: batchSize,
		logger:    logger,
	}
}

func (s *Store) FindDueRules(ctx context.Context, now time.Time) ([]*domain.Rule, error) {
	return s.rules.FindDue(ctx, now, s.batchSize)
}

// CreateTask is idempotent per (rule, dueAt): when the occurrence already
// produced a task, that task's ID is returned and nothing is written. This
// covers a crash between task creation and the rule update, and a second
// worker racing on the same rule.
func (s *Store) CreateTask(ctx context.Context, nt services.NewTask) (uuid.UUID, error) {
	if id, ok, err := s.existing(ctx, nt); err != nil || ok {
		return id, err
	}

	task, err := taskDomain.NewGeneratedTask(nt.OwnerID, nt.Title, nt.Description, nt.DueAt, nt.SourceRuleID, s.clock.Now())
	if err != nil {
		return uuid.Nil, err
	}

	err = sharedApplication.WithUnitOfWork(ctx, s.uow, func(txCtx context.Context) error {
		if err := s.tasks.Save(txCtx, task); err != nil {
			return err
		}
		return s.saveEvents(txCtx, task.DomainEvents(), nt.OwnerID)
	})
	if errors.Is(err, taskDomain.ErrDuplicateOccurrence) {
		if id, ok, findErr := s.existing(ctx, nt); findErr == nil && ok {
			return id, nil
		}
	}
	if err != nil {
		return uuid.Nil, err
	}
	task.ClearDomainEvents()
	return task.ID(), nil
}

func (s *Store) existing(ctx context.Context, nt services.NewTask) (uuid.UUID, bool, error) {
	task, err := s.tasks.FindBySource(ctx, nt.SourceRuleID, nt.DueAt)
	if errors.Is(err, taskDomain.ErrTaskNotFound) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	s.logger.Info("occurrence already materialised",
		"rule_id", nt.SourceRuleID,
		"task_id", task.ID(),
		"due_at", nt.DueAt,
	)
	return task.ID(), true, nil
}

// SaveRule persists the rule and the events it raised.
func (s *Store) SaveRule(ctx context.Context, rule *domain.Rule) error {
	err := sharedApplication.WithUnitOfWork(ctx, s.uow, func(txCtx context.Context) error {
		if err := s.rules.Save(txCtx, rule); err != nil {
			return err
		}
		return s.saveEvents(txCtx, rule.DomainEvents(), rule.OwnerID())
	})
	if err != nil {
		return err
	}
	rule.ClearDomainEvents()
	return nil
}

func (s *Store) saveEvents(ctx context.Context, events []sharedDomain.DomainEvent, userID uuid.UUID) error {
	if len(events) == 0 {
		return nil
	}
	sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(ctx, userID))
	msgs, err := outbox.MessagesFromEvents(events)
	if err != nil {
		return err
	}
	return s.outbox.SaveBatch(ctx, msgs)
}
