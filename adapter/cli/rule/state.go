package rule

import (
	"fmt"

	"github.com/felixgeelhaar/tracklane/adapter/cli"
	"github.com/felixgeelhaar/tracklane/internal/recurrence/application/commands"
	"github.com/spf13/cobra"
)

var pauseCmd = &cobra.Command{
	Use:   "pause [rule-id]",
	Short: "Stop a rule from generating tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActive(cmd, args[0], false)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume [rule-id]",
	Short: "Resume a paused rule from its next occurrence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActive(cmd, args[0], true)
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete [rule-id]",
	Short:   "Delete a rule; tasks it generated are kept",
	Aliases: []string{"rm"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}
		ruleID, err := parseRuleID(args[0])
		if err != nil {
			return err
		}
		if err := app.DeleteRuleHandler.Handle(cmd.Context(), commands.DeleteRuleCommand{
			RuleID: ruleID,
			UserID: app.CurrentUserID,
		}); err != nil {
			return fmt.Errorf("failed to delete rule: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rule deleted: %s\n", ruleID)
		return nil
	},
}

func setActive(cmd *cobra.Command, arg string, active bool) error {
	app, err := cli.RequireApp()
	if err != nil {
		return err
	}
	ruleID, err := parseRuleID(arg)
	if err != nil {
		return err
	}
	if err := app.SetRuleActiveHandler.Handle(cmd.Context(), commands.SetRuleActiveCommand{
		RuleID: ruleID,
		UserID: app.CurrentUserID,
		Active: active,
	}); err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	verb := "paused"
	if active {
		verb = "resumed"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Rule %s: %s\n", verb, ruleID)
	return nil
}
