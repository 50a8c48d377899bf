package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/tracklane/adapter/cli"
	"github.com/felixgeelhaar/tracklane/adapter/cli/notify"
	"github.com/felixgeelhaar/tracklane/adapter/cli/rule"
	"github.com/felixgeelhaar/tracklane/internal/app"
	"github.com/felixgeelhaar/tracklane/pkg/config"
	"github.com/felixgeelhaar/tracklane/pkg/observability"
)

func main() {
	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		cfg = &config.Config{AppEnv: "development"}
	}

	logger := observability.LoggerFor(cfg.AppEnv, cfg.LogLevel, cfg.LogFormat, cli.Version)
	cli.SetLogger(logger)

	// Commands that need storage fail with ErrNotInitialized when the
	// container cannot be built; version and help still work.
	var cliApp *cli.App
	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		if !cfg.IsDevelopment() {
			logger.Error("failed to initialize container", "error", err)
			os.Exit(1)
		}
		logger.Warn("failed to initialize container, running in limited mode", "error", err)
	} else {
		defer container.Close()

		cliApp = cli.NewApp(container)
		userID, err := container.DefaultUserID()
		if err != nil {
			logger.Error("invalid TRACKLANE_USER_ID", "error", err)
			os.Exit(1)
		}
		cliApp.SetCurrentUserID(userID)
	}
	cli.SetApp(cliApp)

	// Register commands
	cli.AddCommand(rule.Cmd)
	cli.AddCommand(notify.Cmd)

	cli.Execute(ctx)
}
