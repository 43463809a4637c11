package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nutriflow/internal/preflight"
)

type preflightJSON struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check directories, camera, detector, and external services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			failed := preflight.Failed(results)

			if ctx.jsonOutput() {
				out := make([]preflightJSON, 0, len(results))
				for _, r := range results {
					out = append(out, preflightJSON(r))
				}
				if err := writeJSON(cmd, out); err != nil {
					return err
				}
			} else {
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					state := "OK"
					if !r.Passed {
						state = "FAIL"
					}
					rows = append(rows, []string{r.Name, state, r.Detail})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Check", "Result", "Detail"}, rows, nil))
			}
			if failed > 0 {
				return fmt.Errorf("%d preflight check(s) failed", failed)
			}
			return nil
		},
	}
}
