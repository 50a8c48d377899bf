package rule

import (
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/tracklane/internal/recurrence/domain"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// Cmd is the rule command group
var Cmd = &cobra.Command{
	Use:   "rule",
	Short: "Manage recurrence rules",
	Long:  `Create, list, pause, and delete the rules that generate recurring tasks.`,
}

func init() {
	Cmd.AddCommand(createCmd)
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(updateCmd)
	Cmd.AddCommand(pauseCmd)
	Cmd.AddCommand(resumeCmd)
	Cmd.AddCommand(deleteCmd)
	Cmd.AddCommand(tasksCmd)
}

// parseDays accepts weekday names ("mon,fri"), numbers with Sunday as 0, or
// ranges such as "mon-fri". The result is ascending.
func parseDays(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	days, err := domain.ParseWeekdays(s)
	if err != nil {
		return nil, err
	}
	return days.Indices(), nil
}

func formatDays(days []int) string {
	if len(days) == 0 {
		return "-"
	}
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = time.Weekday(d).String()[:3]
	}
	return strings.Join(names, ",")
}

func parseRuleID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid rule ID: %w", err)
	}
	return id, nil
}
