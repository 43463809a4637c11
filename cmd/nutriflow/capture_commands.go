package main

import (
	"github.com/spf13/cobra"

	"nutriflow/internal/api"
)

func newCaptureCommand(ctx *commandContext) *cobra.Command {
	captureCmd := &cobra.Command{
		Use:   "capture",
		Short: "Drive the before/after capture cycle",
	}
	captureCmd.AddCommand(newCaptureBeforeCommand(ctx))
	captureCmd.AddCommand(newCaptureAfterCommand(ctx))
	captureCmd.AddCommand(newCaptureConfirmCommand(ctx))
	captureCmd.AddCommand(newCaptureCancelCommand(ctx))
	return captureCmd
}

func newCaptureBeforeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "before",
		Short: "Snapshot the fridge and start monitoring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.runCommand(cmd, outcomeCaptured, func(c *api.Client) (api.CommandResponse, error) {
				return c.CaptureBefore(cmd.Context())
			})
		},
	}
}

func newCaptureAfterCommand(ctx *commandContext) *cobra.Command {
	var acknowledged bool
	cmd := &cobra.Command{
		Use:   "after",
		Short: "Snapshot the fridge again and suggest meals for what was taken",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.runCommand(cmd, outcomeSuccess, func(c *api.Client) (api.CommandResponse, error) {
				return c.CaptureAfter(cmd.Context(), acknowledged)
			})
		},
	}
	cmd.Flags().BoolVar(&acknowledged, "ack", false, "Acknowledge allergy warnings up front")
	return cmd
}

func newCaptureConfirmCommand(ctx *commandContext) *cobra.Command {
	var reject bool
	cmd := &cobra.Command{
		Use:   "confirm <cycle-id>",
		Short: "Resolve a cycle waiting on allergy confirmation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			want := outcomeSuccess
			if reject {
				want = outcomeCancelled
			}
			return ctx.runCommand(cmd, want, func(c *api.Client) (api.CommandResponse, error) {
				return c.Confirm(cmd.Context(), args[0], !reject)
			})
		},
	}
	cmd.Flags().BoolVar(&reject, "reject", false, "Discard the cycle instead of requesting meals")
	return cmd
}

func newCaptureCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Abandon the current cycle and return to idle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.runCommand(cmd, outcomeCancelled, func(c *api.Client) (api.CommandResponse, error) {
				return c.Cancel(cmd.Context())
			})
		},
	}
}

const (
	outcomeCaptured  = "captured"
	outcomeSuccess   = "success"
	outcomeCancelled = "cancelled"
)

// runCommand sends a capture command and prints the envelope. Any outcome
// other than want is reported as an error so scripts see a non-zero exit.
func (c *commandContext) runCommand(cmd *cobra.Command, want string, send func(*api.Client) (api.CommandResponse, error)) error {
	var resp api.CommandResponse
	if err := c.withClient(func(client *api.Client) error {
		var err error
		resp, err = send(client)
		return err
	}); err != nil {
		return err
	}
	if c.jsonOutput() {
		if err := writeJSON(cmd, resp); err != nil {
			return err
		}
	} else {
		printCommandResponse(cmd.OutOrStdout(), resp)
	}
	if !resp.Success || resp.Outcome != want {
		return commandFailed{resp: resp}
	}
	return nil
}

type commandFailed struct {
	resp api.CommandResponse
}

func (e commandFailed) Error() string {
	if e.resp.Error != "" {
		return e.resp.Outcome + ": " + e.resp.Error
	}
	return e.resp.Outcome
}
