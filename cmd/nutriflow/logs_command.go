package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"nutriflow/internal/logging"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines  int
		follow bool
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print recent daemon log events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			resp, err := client.Logs(cmd.Context(), 0, 0, false)
			if err != nil {
				return ctx.wrapDialError(err)
			}
			events := resp.Events
			if lines > 0 && len(events) > lines {
				events = events[len(events)-lines:]
			}
			if err := printLogEvents(cmd, out, ctx.jsonOutput(), events); err != nil {
				return err
			}
			if !follow {
				return nil
			}

			next := resp.Next
			for {
				resp, err := client.Logs(cmd.Context(), next, 0, true)
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return ctx.wrapDialError(err)
				}
				if err := printLogEvents(cmd, out, ctx.jsonOutput(), resp.Events); err != nil {
					return err
				}
				next = resp.Next
			}
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of buffered events to print first (0 for all)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new events")
	return cmd
}

func printLogEvents(cmd *cobra.Command, out io.Writer, asJSON bool, events []logging.LogEvent) error {
	for _, evt := range events {
		if asJSON {
			if err := writeJSON(cmd, evt); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintln(out, formatLogEvent(evt))
	}
	return nil
}

func formatLogEvent(evt logging.LogEvent) string {
	var b strings.Builder
	b.WriteString(evt.Timestamp.Local().Format("15:04:05"))
	fmt.Fprintf(&b, " %-5s ", evt.Level)
	if evt.Component != "" {
		b.WriteString(evt.Component)
		if evt.CycleID != "" {
			b.WriteString(" [" + shortCycle(evt.CycleID) + "]")
		}
		b.WriteString(": ")
	}
	b.WriteString(evt.Message)
	keys := make([]string, 0, len(evt.Fields))
	for k := range evt.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(" " + k + "=" + evt.Fields[k])
	}
	return b.String()
}

func shortCycle(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
