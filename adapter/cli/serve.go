package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/felixgeelhaar/tracklane/adapter/api"
	"github.com/spf13/cobra"
)

var (
	serveAddr      string
	serveNoSweep   bool
	serveNoConsume bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API, websocket endpoint and background workers",
	Long: `Serve the HTTP API and the /ws notification endpoint. Unless disabled,
the same process also runs the sweep timer, the outbox processor and the
event consumer, so a single binary covers a small deployment.

Examples:
  tracklane serve
  tracklane serve --addr :9090 --no-sweep   # API node behind dedicated workers`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := RequireApp()
		if err != nil {
			return err
		}
		c := app.Container
		if c == nil {
			return ErrNotInitialized
		}
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		cfg := api.DefaultServerConfig()
		cfg.Addr = c.Config.HTTPAddr
		if serveAddr != "" {
			cfg.Addr = serveAddr
		}
		cfg.AllowedOrigins = c.Config.AllowedOrigins
		// Websocket connections outlive any request write deadline.
		cfg.WriteTimeout = 0
		server := api.NewServer(cfg, c)

		if c.Config.OutboxProcessorEnabled {
			if err := c.OutboxProcessor.Start(ctx); err != nil {
				return fmt.Errorf("start outbox processor: %w", err)
			}
		}
		if !serveNoSweep {
			if err := c.SweepRunner.Start(ctx); err != nil {
				return fmt.Errorf("start sweep runner: %w", err)
			}
			defer func() {
				stopCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
				defer stop()
				c.SweepRunner.Stop(stopCtx)
			}()
		}
		if !serveNoConsume {
			consumer, err := c.EventConsumer()
			if err != nil {
				return err
			}
			go func() {
				if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					c.Logger.Error("event consumer stopped", "error", err)
				}
			}()
		}
		if c.Relay != nil {
			go func() {
				if err := c.Relay.Run(ctx); err != nil {
					c.Logger.Error("notification relay stopped", "error", err)
				}
			}()
		}

		errCh := make(chan error, 1)
		go func() {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-ctx.Done():
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("http server: %w", err)
			}
		}

		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		return server.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default HTTP_ADDR)")
	serveCmd.Flags().BoolVar(&serveNoSweep, "no-sweep", false, "do not run the sweep timer in this process")
	serveCmd.Flags().BoolVar(&serveNoConsume, "no-consume", false, "do not consume domain events in this process")
	rootCmd.AddCommand(serveCmd)
}
