package notify

import (
	"fmt"

	"github.com/felixgeelhaar/tracklane/adapter/cli"
	"github.com/felixgeelhaar/tracklane/internal/notifications/application/commands"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var readCmd = &cobra.Command{
	Use:   "read [notification-id]",
	Short: "Mark a notification as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid notification ID: %w", err)
		}
		if err := app.MarkReadHandler.Handle(cmd.Context(), commands.MarkReadCommand{
			NotificationID: id,
			UserID:         app.CurrentUserID,
		}); err != nil {
			return fmt.Errorf("failed to mark notification read: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Marked read: %s\n", id)
		return nil
	},
}

var readAllCmd = &cobra.Command{
	Use:   "read-all",
	Short: "Mark every notification as read",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		marked, err := app.MarkAllReadHandler.Handle(cmd.Context(), commands.MarkAllReadCommand{UserID: app.CurrentUserID})
		if err != nil {
			return fmt.Errorf("failed to mark notifications read: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Marked %d notifications read\n", marked)
		return nil
	},
}
