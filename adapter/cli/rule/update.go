package rule

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/tracklane/adapter/cli"
	"github.com/felixgeelhaar/tracklane/internal/recurrence/application/commands"
	"github.com/felixgeelhaar/tracklane/internal/recurrence/application/queries"
	"github.com/spf13/cobra"
)

var (
	updateTitle       string
	updateDescription string
	updateFrequency   string
	updateDays        string
	updateTime        string
)

var updateCmd = &cobra.Command{
	Use:   "update [rule-id]",
	Short: "Change a rule's title or schedule",
	Long: `Update a rule. Flags left unset keep their current value. Changing the
schedule recomputes the next fire time from now.

Examples:
  tracklane rule update 3f2a... --time 10:00
  tracklane rule update 3f2a... --frequency weekly --days mon,thu`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		ruleID, err := parseRuleID(args[0])
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		current, err := app.GetRuleHandler.Handle(ctx, queries.GetRuleQuery{RuleID: ruleID, UserID: app.CurrentUserID})
		if err != nil {
			return fmt.Errorf("failed to get rule: %w", err)
		}

		update := commands.UpdateRuleCommand{
			RuleID:      ruleID,
			UserID:      app.CurrentUserID,
			Title:       current.Title,
			Description: current.Description,
			Schedule: commands.ScheduleInput{
				Frequency: current.Frequency,
				Days:      current.Days,
				Time:      current.Time,
			},
		}
		flags := cmd.Flags()
		if flags.Changed("title") {
			update.Title = updateTitle
		}
		if flags.Changed("description") {
			update.Description = updateDescription
		}
		if flags.Changed("frequency") {
			update.Schedule.Frequency = updateFrequency
		}
		if flags.Changed("days") {
			parsed, err := parseDays(updateDays)
			if err != nil {
				return err
			}
			update.Schedule.Days = parsed
		}
		if flags.Changed("time") {
			update.Schedule.Time = updateTime
		}

		result, err := app.UpdateRuleHandler.Handle(ctx, update)
		if err != nil {
			return fmt.Errorf("failed to update rule: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Rule updated: %s\n", ruleID)
		if result.Rescheduled {
			fmt.Fprintf(out, "  next: %s\n", result.NextFireAt.Format(time.RFC1123))
		}
		return nil
	},
}

func init() {
	updateCmd.Flags().StringVar(&updateTitle, "title", "", "new title")
	updateCmd.Flags().StringVar(&updateDescription, "description", "", "new description")
	updateCmd.Flags().StringVarP(&updateFrequency, "frequency", "f", "", "daily or weekly")
	updateCmd.Flags().StringVar(&updateDays, "days", "", "weekdays for weekly rules")
	updateCmd.Flags().StringVarP(&updateTime, "time", "t", "", "time of day (HH:MM)")
}
