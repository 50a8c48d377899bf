package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/tracklane/internal/shared/domain"
	"github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/tracklane/pkg/observability"
)

// ProcessorConfig holds configuration for the outbox processor.
type ProcessorConfig struct {
	PollInterval     time.Duration
	BatchSize        int
	MaxRetries       int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
	// Retention is how long published messages are kept. Zero disables cleanup.
	Retention       time.Duration
	CleanupInterval time.Duration
}

// DefaultProcessorConfig returns sensible defaults.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		PollInterval:     100 * time.Millisecond,
		BatchSize:        100,
		MaxRetries:       5,
		RetryBackoffBase: 1 * time.Second,
		RetryBackoffMax:  1 * time.Minute,
		Retention:        7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// ProcessorOption customises a Processor.
type ProcessorOption func(*Processor)

// WithMetrics reports outcomes tagged by aggregate type and routing key.
func WithMetrics(m observability.Metrics) ProcessorOption {
	return func(p *Processor) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithClock replaces time.Now for retry scheduling and lag.
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

// Processor relays outbox rows (rule fired, task created, notification
// created) to the broker. Each row is published at least once, in id order
// within a batch.
type Processor struct {
	repo      Repository
	publisher eventbus.Publisher
	config    ProcessorConfig
	logger    *slog.Logger
	metrics   observability.Metrics
	now       func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup

	statsMu sync.Mutex
	stats   Stats
}

// NewProcessor creates a processor. It does nothing until Start or ProcessOnce.
func NewProcessor(repo Repository, publisher eventbus.Publisher, config ProcessorConfig, logger *slog.Logger, opts ...ProcessorOption) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		repo:      repo,
		publisher: publisher,
		config:    config,
		logger:    logger.With("component", "outbox"),
		metrics:   observability.NoopMetrics{},
		now:       time.Now,
		stats:     Stats{ByAggregate: map[string]AggregateCounts{}},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start runs the poll loop, and the cleanup loop when retention is set, until
// ctx ends or Stop is called. Starting twice is a no-op.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.every(loopCtx, p.config.PollInterval, func(ctx context.Context) {
		if err := p.processBatch(ctx); err != nil {
			p.logger.Error("failed to process outbox batch", "error", err)
		}
	})
	if p.config.Retention > 0 && p.config.CleanupInterval > 0 {
		p.every(loopCtx, p.config.CleanupInterval, func(ctx context.Context) {
			if _, err := p.Cleanup(ctx); err != nil {
				p.logger.Error("failed to clean up outbox", "error", err)
			}
		})
	}

	p.logger.Info("outbox processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
		"max_retries", p.config.MaxRetries,
		"retention", p.config.Retention,
	)
	return nil
}

// Stop cancels the loops and waits for the current batch to finish.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("outbox processor stopped")
}

// IsRunning reports whether Start has been called without a matching Stop.
func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Processor) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

// ProcessOnce publishes one batch synchronously.
func (p *Processor) ProcessOnce(ctx context.Context) error {
	return p.processBatch(ctx)
}

// Cleanup removes published messages older than the retention window.
func (p *Processor) Cleanup(ctx context.Context) (int64, error) {
	if p.config.Retention <= 0 {
		return 0, nil
	}
	deleted, err := p.repo.DeleteOld(ctx, p.config.Retention)
	if err != nil {
		p.recordError(err)
		return 0, err
	}
	if deleted > 0 {
		p.logger.Debug("outbox cleanup", "deleted", deleted)
		p.metrics.Counter(observability.MetricOutboxCleaned, deleted)
	}
	return deleted, nil
}

// outcome is what happened to one message.
type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDead
	outcomeDeferred
)

func (o outcome) String() string {
	switch o {
	case outcomePublished:
		return "published"
	case outcomeRetry:
		return "retry"
	case outcomeDead:
		return "dead"
	default:
		return "deferred"
	}
}

func (p *Processor) processBatch(ctx context.Context) error {
	messages, err := p.repo.GetUnpublished(ctx, p.config.BatchSize)
	if err != nil {
		p.recordError(err)
		return err
	}
	p.recordLag(messages)

	for i, msg := range messages {
		if p.publish(ctx, msg) == outcomeDeferred {
			p.logger.Debug("publisher circuit open, deferring batch", "remaining", len(messages)-i)
			return nil
		}
	}
	return nil
}

func (p *Processor) publish(ctx context.Context, msg *Message) outcome {
	log := p.logger.With(messageAttrs(msg)...)

	err := p.publisher.Publish(ctx, msg.RoutingKey, msg.Payload)
	if errors.Is(err, eventbus.ErrBreakerOpen) {
		// The broker is known to be down; retries are not spent.
		return outcomeDeferred
	}

	result := outcomePublished
	switch {
	case err == nil:
		if markErr := p.repo.MarkPublished(ctx, msg.ID); markErr != nil {
			// The row is retried on the next poll and consumers dedupe on event_id.
			log.Error("failed to mark message as published", "error", markErr)
			return outcomeRetry
		}
	case p.exhausted(msg):
		result = outcomeDead
		log.Warn("dead-lettering message", "retry_count", msg.RetryCount, "error", err)
		if markErr := p.repo.MarkDead(ctx, msg.ID, err.Error()); markErr != nil {
			log.Error("failed to mark message as dead-lettered", "error", markErr)
		}
	default:
		result = outcomeRetry
		next := p.now().Add(p.retryBackoff(msg.RetryCount + 1))
		log.Warn("failed to publish message", "retry_count", msg.RetryCount, "next_retry_at", next, "error", err)
		if markErr := p.repo.MarkFailed(ctx, msg.ID, err.Error(), next); markErr != nil {
			log.Error("failed to mark message as failed", "error", markErr)
		}
	}

	p.record(msg, result, err)
	return result
}

func (p *Processor) exhausted(msg *Message) bool {
	return p.config.MaxRetries <= 0 || msg.RetryCount+1 >= p.config.MaxRetries
}

// retryBackoff doubles from RetryBackoffBase per attempt, capped at RetryBackoffMax.
func (p *Processor) retryBackoff(attempt int) time.Duration {
	base, limit := p.config.RetryBackoffBase, p.config.RetryBackoffMax
	if base <= 0 {
		base = time.Second
	}
	if limit <= 0 {
		limit = time.Minute
	}
	backoff := base
	for ; attempt > 1 && backoff < limit; attempt-- {
		backoff *= 2
	}
	return min(backoff, limit)
}

// messageAttrs identifies a message in logs by its event and the metadata
// that links it to the rule, task or notification that raised it.
func messageAttrs(msg *Message) []any {
	attrs := []any{
		"outbox_id", msg.ID,
		"event_id", msg.EventID,
		"routing_key", msg.RoutingKey,
		"aggregate_type", msg.AggregateType,
		"aggregate_id", msg.AggregateID,
	}
	if len(msg.Metadata) == 0 {
		return attrs
	}
	var metadata domain.EventMetadata
	if err := json.Unmarshal(msg.Metadata, &metadata); err != nil {
		return attrs
	}
	return append(attrs,
		"correlation_id", metadata.CorrelationID,
		"causation_id", metadata.CausationID,
		"user_id", metadata.UserID,
	)
}

// AggregateCounts are outcomes for one aggregate type.
type AggregateCounts struct {
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
	Dead      uint64 `json:"dead"`
}

// Stats is a snapshot of processor activity since start.
type Stats struct {
	IsRunning       bool
	PublishedCount  uint64
	FailedCount     uint64
	DeadCount       uint64
	ByAggregate     map[string]AggregateCounts
	LagSeconds      float64
	LastError       string
	LastErrorAt     *time.Time
	LastProcessedAt *time.Time
	OldestMessageAt *time.Time
}

// GetStats returns a copy of the current statistics.
func (p *Processor) GetStats() Stats {
	running := p.IsRunning()

	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	stats := p.stats
	stats.IsRunning = running
	stats.ByAggregate = make(map[string]AggregateCounts, len(p.stats.ByAggregate))
	for k, v := range p.stats.ByAggregate {
		stats.ByAggregate[k] = v
	}
	return stats
}

func (p *Processor) record(msg *Message, result outcome, err error) {
	p.metrics.Counter(observability.MetricOutboxMessages, 1,
		observability.T("aggregate", msg.AggregateType),
		observability.T("routing_key", msg.RoutingKey),
		observability.T("outcome", result.String()),
	)

	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	counts := p.stats.ByAggregate[msg.AggregateType]
	switch result {
	case outcomePublished:
		p.stats.PublishedCount++
		counts.Published++
	case outcomeRetry:
		p.stats.FailedCount++
		counts.Failed++
	case outcomeDead:
		p.stats.DeadCount++
		counts.Dead++
	}
	p.stats.ByAggregate[msg.AggregateType] = counts
	if err != nil {
		p.setLastErrorLocked(err)
	}
}

func (p *Processor) recordError(err error) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.setLastErrorLocked(err)
}

func (p *Processor) setLastErrorLocked(err error) {
	now := p.now()
	p.stats.LastError = err.Error()
	p.stats.LastErrorAt = &now
}

func (p *Processor) recordLag(messages []*Message) {
	now := p.now()
	var oldest *time.Time
	for _, msg := range messages {
		if oldest == nil || msg.CreatedAt.Before(*oldest) {
			created := msg.CreatedAt
			oldest = &created
		}
	}

	lag := 0.0
	if oldest != nil {
		lag = now.Sub(*oldest).Seconds()
	}
	p.metrics.Gauge(observability.MetricOutboxLag, lag)

	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.LastProcessedAt = &now
	p.stats.OldestMessageAt = oldest
	p.stats.LagSeconds = lag
}
