package rule

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/tracklane/adapter/cli"
	"github.com/felixgeelhaar/tracklane/internal/recurrence/application/queries"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show [rule-id]",
	Short: "Show a recurrence rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		ruleID, err := parseRuleID(args[0])
		if err != nil {
			return err
		}

		r, err := app.GetRuleHandler.Handle(cmd.Context(), queries.GetRuleQuery{
			RuleID: ruleID,
			UserID: app.CurrentUserID,
		})
		if err != nil {
			return fmt.Errorf("failed to get rule: %w", err)
		}
		printRule(cmd, r)
		return nil
	},
}

func printRule(cmd *cobra.Command, r *queries.RuleDTO) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", r.Title)
	fmt.Fprintf(out, "  id:       %s\n", r.ID)
	if r.Description != "" {
		fmt.Fprintf(out, "  about:    %s\n", r.Description)
	}
	fmt.Fprintf(out, "  schedule: %s\n", scheduleSummary(*r))
	fmt.Fprintf(out, "  next:     %s\n", r.NextFireAt.Format(time.RFC1123))
	fmt.Fprintf(out, "  active:   %t\n", r.IsActive)
	fmt.Fprintf(out, "  fired:    %d times\n", r.FireCount)
	if r.LastFiredAt != nil {
		fmt.Fprintf(out, "  last:     %s\n", r.LastFiredAt.Format(time.RFC1123))
	}
}
