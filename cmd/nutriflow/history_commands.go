package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"nutriflow/internal/api"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded cycles, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.HistoryListResponse
			if err := ctx.withClient(func(c *api.Client) error {
				var err error
				resp, err = c.History(cmd.Context(), limit)
				return err
			}); err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, resp)
			}
			out := cmd.OutOrStdout()
			if len(resp.Cycles) == 0 {
				fmt.Fprintln(out, "No cycles recorded")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Finished", "Source", "Outcome", "Taken", "Warnings"},
				historyRows(resp.Cycles),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			))
			fmt.Fprintf(out, "%d of %d cycle(s)\n", len(resp.Cycles), resp.Total)
			return nil
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum cycles to list (0 for all)")
	historyCmd.AddCommand(newHistoryShowCommand(ctx))
	return historyCmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <cycle-id>",
		Short: "Show one recorded cycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cycle api.CycleView
			if err := ctx.withClient(func(c *api.Client) error {
				var err error
				cycle, err = c.HistoryCycle(cmd.Context(), args[0])
				return err
			}); err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, cycle)
			}
			printCycle(cmd.OutOrStdout(), cycle)
			return nil
		},
	}
}

func historyRows(cycles []api.CycleView) [][]string {
	rows := make([][]string, 0, len(cycles))
	for _, c := range cycles {
		rows = append(rows, []string{
			c.ID,
			c.FinishedAt,
			c.Source,
			c.Outcome,
			takenSummary(c.TakenItems),
			strconv.Itoa(len(c.Warnings)),
		})
	}
	return rows
}

func takenSummary(items map[string]int) string {
	if len(items) == 0 {
		return "-"
	}
	rows := itemRows(items)
	parts := make([]string, 0, len(rows))
	for _, r := range rows {
		parts = append(parts, r[0]+" x"+r[1])
	}
	return strings.Join(parts, ", ")
}

func printCycle(out io.Writer, c api.CycleView) {
	colorize := shouldColorize(out)
	kind := statusOK
	if c.ErrorKind != "" {
		kind = statusError
	}
	fmt.Fprintln(out, renderStatusLine("Cycle", statusInfo, c.ID, colorize))
	fmt.Fprintln(out, renderStatusLine("Outcome", kind, c.Outcome, colorize))
	fmt.Fprintln(out, renderStatusLine("Source", statusInfo, c.Source, colorize))
	fmt.Fprintln(out, renderStatusLine("Started", statusInfo, c.StartedAt, colorize))
	fmt.Fprintln(out, renderStatusLine("Finished", statusInfo, c.FinishedAt, colorize))
	if c.ErrorKind != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, fmt.Sprintf("%s (%s)", c.ErrorMessage, c.ErrorKind), colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Before", statusInfo, strconv.Itoa(len(c.BeforeItems))+" item(s)", colorize))
	fmt.Fprintln(out, renderStatusLine("After", statusInfo, strconv.Itoa(len(c.AfterItems))+" item(s)", colorize))
	if len(c.TakenItems) > 0 {
		fmt.Fprintln(out, renderTable([]string{"Item", "Taken"}, itemRows(c.TakenItems), []columnAlignment{alignLeft, alignRight}))
	}
	for _, w := range c.Warnings {
		fmt.Fprintln(out, renderStatusLine("Allergy", statusWarn, w.Message, colorize))
	}
	if strings.TrimSpace(c.MealSuggestion) != "" {
		fmt.Fprintln(out, renderSectionHeader("Meal suggestions", colorize))
		fmt.Fprintln(out, strings.TrimSpace(c.MealSuggestion))
	}
}
