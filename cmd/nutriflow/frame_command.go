package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"nutriflow/internal/api"
)

func newFrameCommand(ctx *commandContext) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "frame",
		Short: "Save the camera's current frame as JPEG",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			if err := ctx.withClient(func(c *api.Client) error {
				var err error
				data, err = c.Frame(cmd.Context())
				return err
			}); err != nil {
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write frame: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bytes to %s\n", len(data), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "frame.jpg", "Destination file")
	return cmd
}
