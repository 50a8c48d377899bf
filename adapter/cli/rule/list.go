package rule

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/felixgeelhaar/tracklane/adapter/cli"
	"github.com/felixgeelhaar/tracklane/internal/recurrence/application/queries"
	"github.com/spf13/cobra"
)

var showAll bool

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List recurrence rules",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}

		rules, err := app.ListRulesHandler.Handle(cmd.Context(), queries.ListRulesQuery{
			OwnerID:         app.CurrentUserID,
			IncludeInactive: showAll,
		})
		if err != nil {
			return fmt.Errorf("failed to list rules: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(rules) == 0 {
			fmt.Fprintln(out, "No rules found.")
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tSCHEDULE\tNEXT\tSTATE")
		for _, r := range rules {
			state := "active"
			if !r.IsActive {
				state = "paused"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				r.ID.String()[:8],
				r.Title,
				scheduleSummary(r),
				r.NextFireAt.Format(time.DateTime),
				state,
			)
		}
		return tw.Flush()
	},
}

func scheduleSummary(r queries.RuleDTO) string {
	switch r.Frequency {
	case "weekly":
		return fmt.Sprintf("%s %s at %s", r.Frequency, formatDays(r.Days), r.Time)
	default:
		return fmt.Sprintf("%s at %s", r.Frequency, r.Time)
	}
}

func init() {
	listCmd.Flags().BoolVarP(&showAll, "all", "a", false, "include paused rules")
}
