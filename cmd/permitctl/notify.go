package main

import (
	"context"
	"fmt"

	"github.com/linesmerrill/commute-permit-api/notifications"
	templates "github.com/linesmerrill/commute-permit-api/templates/html"
	"github.com/spf13/cobra"
)

func notifyTestCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "notify-test [email]",
		Short: "Send a test notice through the configured mail channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			to := notifications.Recipient{ID: "permitctl", Name: name, Email: args[0]}
			msg := testMessage(name)
			dispatcher := a.Email
			if dispatcher == nil {
				dispatcher = notifications.LogDispatcher{}
			}
			if err := dispatcher.Send(ctx, to, msg); err != nil {
				return fmt.Errorf("failed to send test notice: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %q to %s\n", msg.Subject, args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "Operator", "recipient display name")
	return cmd
}

func testMessage(name string) notifications.Message {
	subject := "[Commute permit] Test notice"
	body := fmt.Sprintf("%s,\nThis is a test notice from the commute permit service.\nNo action is needed.", name)
	return notifications.Message{
		Type:    "test",
		Subject: subject,
		HTML:    templates.RenderGenericEmail(subject, body),
		Text:    body,
	}
}
