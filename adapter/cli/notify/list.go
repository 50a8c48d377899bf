package notify

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/tracklane/adapter/cli"
	"github.com/felixgeelhaar/tracklane/internal/notifications/application/queries"
	"github.com/spf13/cobra"
)

var (
	unreadOnly bool
	limit      int
)

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "Show your inbox, newest first",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}

		items, err := app.ListNotificationsHandler.Handle(cmd.Context(), queries.ListNotificationsQuery{
			UserID:     app.CurrentUserID,
			UnreadOnly: unreadOnly,
			Limit:      limit,
		})
		if err != nil {
			return fmt.Errorf("failed to list notifications: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(items) == 0 {
			fmt.Fprintln(out, "Inbox is empty.")
			return nil
		}
		for _, n := range items {
			marker := "*"
			if n.Read {
				marker = " "
			}
			fmt.Fprintf(out, "%s %s  %-13s %s\n", marker, n.ID, n.Type, n.Message)
			fmt.Fprintf(out, "    %s on %s\n", n.CreatedAt.Format(time.DateTime), n.ResourceType)
		}
		return nil
	},
}

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of unread notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		count, err := app.CountUnreadHandler.Handle(cmd.Context(), queries.CountUnreadQuery{UserID: app.CurrentUserID})
		if err != nil {
			return fmt.Errorf("failed to count notifications: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), count)
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVarP(&unreadOnly, "unread", "u", false, "only unread notifications")
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum notifications to show")
}
