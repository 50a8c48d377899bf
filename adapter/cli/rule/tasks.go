package rule

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/felixgeelhaar/tracklane/adapter/cli"
	"github.com/felixgeelhaar/tracklane/internal/tasks/application/queries"
	"github.com/spf13/cobra"
)

var (
	taskStatus string
	taskLimit  int
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List tasks generated by your rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}

		tasks, err := app.ListTasksHandler.Handle(cmd.Context(), queries.ListTasksQuery{
			OwnerID: app.CurrentUserID,
			Status:  taskStatus,
			Limit:   taskLimit,
		})
		if err != nil {
			return fmt.Errorf("failed to list tasks: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(tasks) == 0 {
			fmt.Fprintln(out, "No tasks found.")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tDUE\tSTATUS")
		for _, t := range tasks {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID.String()[:8], t.Title, t.DueAt.Format(time.DateTime), t.Status)
		}
		return tw.Flush()
	},
}

func init() {
	tasksCmd.Flags().StringVar(&taskStatus, "status", "", "filter by status (open, completed)")
	tasksCmd.Flags().IntVarP(&taskLimit, "limit", "n", 20, "maximum tasks to show")
}
