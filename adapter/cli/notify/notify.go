package notify

import (
	"github.com/spf13/cobra"
)

// Cmd is the notify command group
var Cmd = &cobra.Command{
	Use:     "notify",
	Short:   "Send and read notifications",
	Long:    `Send notifications to other users and manage your own inbox.`,
	Aliases: []string{"inbox"},
}

func init() {
	Cmd.AddCommand(sendCmd)
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(countCmd)
	Cmd.AddCommand(readCmd)
	Cmd.AddCommand(readAllCmd)
}
