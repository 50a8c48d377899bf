package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixgeelhaar/tracklane/adapter/cli"
	"github.com/felixgeelhaar/tracklane/internal/app"
	"github.com/felixgeelhaar/tracklane/pkg/config"
	"github.com/felixgeelhaar/tracklane/pkg/observability"
)

func main() {
	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.LoggerFor(cfg.AppEnv, cfg.LogLevel, cfg.LogFormat, cli.Version)
	logger.Info("starting tracklane worker")

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := container.Close(); err != nil {
			logger.Warn("container close error", "error", err)
		}
	}()

	processor := container.OutboxProcessor
	logger.Info("starting outbox processor",
		"poll_interval", cfg.OutboxPollInterval,
		"batch_size", cfg.OutboxBatchSize,
		"max_retries", cfg.OutboxMaxRetries,
	)
	if err := processor.Start(ctx); err != nil {
		logger.Error("failed to start outbox processor", "error", err)
		os.Exit(1)
	}

	runner := container.SweepRunner
	if err := runner.Start(ctx); err != nil {
		logger.Error("failed to start sweep runner", "error", err, "schedule", cfg.SweepSchedule)
		os.Exit(1)
	}

	consumer, err := container.EventConsumer()
	if err != nil {
		logger.Error("failed to create event consumer", "error", err)
		os.Exit(1)
	}
	go func() {
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("event consumer stopped", "error", err)
			cancel()
		}
	}()

	if cfg.WorkerHealthAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			stats := processor.GetStats()
			response := map[string]any{
				"status":            "ok",
				"running":           stats.IsRunning,
				"published":         stats.PublishedCount,
				"failed":            stats.FailedCount,
				"dead":              stats.DeadCount,
				"by_aggregate":      stats.ByAggregate,
				"lag_seconds":       stats.LagSeconds,
				"last_processed_at": stats.LastProcessedAt,
				"last_error_at":     stats.LastErrorAt,
				"last_error":        stats.LastError,
				"sweep":             runner.Stats(),
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(response)
		})

		mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
			checkCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			health := container.Health.Check(checkCtx)
			w.Header().Set("Content-Type", "application/json")
			if health.Status == observability.HealthStatusUnhealthy {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			_ = json.NewEncoder(w).Encode(health)
		})

		healthSrv := &http.Server{
			Addr:              cfg.WorkerHealthAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			logger.Info("health server starting", "addr", cfg.WorkerHealthAddr)
			if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("health server error", "error", err)
			}
		}()

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := healthSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("health server shutdown error", "error", err)
			}
		}()
	}

	statsInterval := cfg.WorkerStatsInterval
	if statsInterval <= 0 {
		statsInterval = time.Minute
	}
	statsTicker := time.NewTicker(statsInterval)
	defer statsTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-statsTicker.C:
				stats := processor.GetStats()
				sweep := runner.Stats()
				logger.Info("worker stats",
					"outbox_published", stats.PublishedCount,
					"outbox_failed", stats.FailedCount,
					"outbox_dead", stats.DeadCount,
					"outbox_lag_seconds", stats.LagSeconds,
					"outbox_last_error", stats.LastError,
					"sweeps", sweep.Runs,
					"rules_fired", sweep.TotalFired,
					"rules_failed", sweep.TotalFailed,
					"last_sweep_at", sweep.LastRunAt,
					"last_sweep_error", sweep.LastError,
				)
			}
		}
	}()

	// Wait for shutdown
	<-ctx.Done()
	logger.Info("shutting down worker")

	stopCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	runner.Stop(stopCtx)
	processor.Stop()
	logger.Info("worker stopped")
}
