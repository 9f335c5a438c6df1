package main

import (
	"context"

	"github.com/spf13/cobra"
)

func expirationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expiration",
		Short: "Inspect or run the document expiration check",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "summary",
		Short: "Print expiring and expired document counts without notifying anyone",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			summary, err := a.Monitor.Summary(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summary)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the expiration check now and send notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			ctx, cancel := context.WithTimeout(ctx, a.Config.MonitorTimeout)
			defer cancel()
			result, err := a.Monitor.Run(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	})

	return cmd
}
