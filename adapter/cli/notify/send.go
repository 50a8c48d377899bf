package notify

import (
	"fmt"

	"github.com/felixgeelhaar/tracklane/adapter/cli"
	"github.com/felixgeelhaar/tracklane/internal/notifications/application/commands"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	recipient    string
	notifyType   string
	resourceType string
	resourceID   string
	projectID    string
)

var sendCmd = &cobra.Command{
	Use:   "send [message]",
	Short: "Send a notification to another user",
	Long: `Store a notification in the recipient's inbox and push it to any
client they have connected.

Examples:
  tracklane notify send "Please review the release notes" --to 6f1c...
  tracklane notify send "Defect reassigned" --to 6f1c... --type assignment --resource defect`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireApp()
		if err != nil {
			return err
		}

		to, err := uuid.Parse(recipient)
		if err != nil {
			return fmt.Errorf("invalid --to user ID: %w", err)
		}
		send := commands.CreateNotificationCommand{
			RecipientID:  to,
			SenderID:     &app.CurrentUserID,
			Type:         notifyType,
			ResourceType: resourceType,
			Message:      args[0],
		}
		if send.ResourceID, err = optionalUUID(resourceID, "--resource-id"); err != nil {
			return err
		}
		if send.ProjectID, err = optionalUUID(projectID, "--project"); err != nil {
			return err
		}

		result, err := app.CreateNotificationHandler.Handle(cmd.Context(), send)
		if err != nil {
			return fmt.Errorf("failed to send notification: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Notification sent: %s\n", result.NotificationID)
		return nil
	},
}

func optionalUUID(s, flag string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", flag, err)
	}
	return &id, nil
}

func init() {
	sendCmd.Flags().StringVar(&recipient, "to", "", "recipient user ID")
	sendCmd.Flags().StringVar(&notifyType, "type", "mention", "assignment, comment, mention or status_change")
	sendCmd.Flags().StringVar(&resourceType, "resource", "task", "resource kind the notification points at")
	sendCmd.Flags().StringVar(&resourceID, "resource-id", "", "resource ID")
	sendCmd.Flags().StringVar(&projectID, "project", "", "project ID")
	_ = sendCmd.MarkFlagRequired("to")
}
