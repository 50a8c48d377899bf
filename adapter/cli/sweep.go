package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/tracklane/internal/recurrence/application/services"
	"github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/outbox"
	"github.com/spf13/cobra"
)

// maxFlushPasses bounds how many outbox batches one CLI command publishes.
// A fired rule needs two: its own events, then the notification they create.
const maxFlushPasses = 4

var (
	sweepAt        string
	sweepNoPublish bool
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Fire every due recurrence rule once",
	Long: `Run a single sweep: every active rule whose next fire time has passed
produces one task and is advanced to its next occurrence.

Examples:
  tracklane sweep
  tracklane sweep --at 2024-03-04T09:00:00Z   # sweep as of a given instant`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := RequireApp()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		var report services.SweepReport
		if sweepAt != "" {
			at, err := parseSweepAt(sweepAt, app.location())
			if err != nil {
				return err
			}
			report, err = app.RuleScheduler.Sweep(ctx, at)
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}
		} else {
			report, err = app.SweepRunner.RunOnce(ctx)
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Sweep complete in %s\n", report.Duration.Round(time.Millisecond))
		fmt.Fprintf(out, "  due:     %d\n", report.Due)
		fmt.Fprintf(out, "  fired:   %d\n", report.Fired)
		fmt.Fprintf(out, "  skipped: %d\n", report.Skipped)
		fmt.Fprintf(out, "  failed:  %d\n", report.Failed)
		for _, e := range report.Errors {
			fmt.Fprintf(out, "  error: %v\n", e)
		}

		if !sweepNoPublish && app.Container != nil {
			published, err := flushOutbox(ctx, app.Container.OutboxProcessor)
			if err != nil {
				return fmt.Errorf("publish events: %w", err)
			}
			if Verbose() {
				fmt.Fprintf(out, "  events published: %d\n", published)
			}
		}
		return nil
	},
}

// parseSweepAt reads an RFC 3339 instant and views it in loc, the zone rule
// times of day are defined in.
func parseSweepAt(s string, loc *time.Location) (time.Time, error) {
	at, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at (use RFC 3339): %w", err)
	}
	if loc != nil {
		at = at.In(loc)
	}
	return at, nil
}

// flushOutbox publishes pending events until a pass publishes nothing.
func flushOutbox(ctx context.Context, p *outbox.Processor) (uint64, error) {
	start := p.GetStats().PublishedCount
	last := start
	for range maxFlushPasses {
		if err := p.ProcessOnce(ctx); err != nil {
			return last - start, err
		}
		current := p.GetStats().PublishedCount
		if current == last {
			break
		}
		last = current
	}
	return last - start, nil
}

func init() {
	sweepCmd.Flags().StringVar(&sweepAt, "at", "", "sweep as of this instant (RFC 3339)")
	sweepCmd.Flags().BoolVar(&sweepNoPublish, "no-publish", false, "leave generated events in the outbox")
	rootCmd.AddCommand(sweepCmd)
}
