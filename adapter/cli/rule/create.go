package rule

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/tracklane/adapter/cli"
	"github.com/felixgeelhaar/tracklane/internal/recurrence/application/commands"
	"github.com/spf13/cobra"
)

var (
	frequency   string
	days        string
	timeOfDay   string
	description string
)

var createCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create a recurrence rule",
	Long: `Create a rule that generates a task at a fixed time of day.

Examples:
  tracklane rule create "Stand-up notes" --frequency weekly --days mon-fri --time 09:15
  tracklane rule create "Weekly review" --frequency weekly --days fri --time 16:00
  tracklane rule create "Water plants" --frequency daily --time 08:00`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}

		parsedDays, err := parseDays(days)
		if err != nil {
			return err
		}

		result, err := app.CreateRuleHandler.Handle(cmd.Context(), commands.CreateRuleCommand{
			OwnerID:     app.CurrentUserID,
			Title:       args[0],
			Description: description,
			Schedule: commands.ScheduleInput{
				Frequency: frequency,
				Days:      parsedDays,
				Time:      timeOfDay,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create rule: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Rule created: %s\n", result.RuleID)
		fmt.Fprintf(out, "  title: %s\n", args[0])
		fmt.Fprintf(out, "  next:  %s\n", result.NextFireAt.Format(time.RFC1123))
		return nil
	},
}

func init() {
	createCmd.Flags().StringVarP(&frequency, "frequency", "f", "daily", "daily or weekly")
	createCmd.Flags().StringVar(&days, "days", "", "weekdays for weekly rules (mon,wed or 1,3)")
	createCmd.Flags().StringVarP(&timeOfDay, "time", "t", "09:00", "time of day (HH:MM)")
	createCmd.Flags().StringVar(&description, "description", "", "description copied to generated tasks")
}
