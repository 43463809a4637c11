package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nutriflow/internal/api"
)

func newNotifyCommand(ctx *commandContext) *cobra.Command {
	notifyCmd := &cobra.Command{
		Use:   "notify",
		Short: "Notification utilities",
	}
	notifyCmd.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Send a test notification through the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.withClient(func(c *api.Client) error {
				return c.TestNotification(cmd.Context())
			}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	})
	return notifyCmd
}
