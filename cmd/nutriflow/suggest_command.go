package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"nutriflow/internal/api"
)

func newSuggestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "suggest <item[=count]>...",
		Short:   "Request meal ideas for items without a capture cycle",
		Example: "  nutriflow suggest apple=2 milk",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := parseItems(args)
			if err != nil {
				return err
			}
			return ctx.runCommand(cmd, outcomeSuccess, func(c *api.Client) (api.CommandResponse, error) {
				return c.Suggest(cmd.Context(), items)
			})
		},
	}
}

// parseItems reads label=count pairs; a bare label counts as one. Repeated
// labels add up.
func parseItems(args []string) (map[string]int, error) {
	items := make(map[string]int, len(args))
	for _, arg := range args {
		label, rawCount, hasCount := strings.Cut(arg, "=")
		label = strings.TrimSpace(label)
		if label == "" {
			return nil, fmt.Errorf("invalid item %q: missing label", arg)
		}
		count := 1
		if hasCount {
			n, err := strconv.Atoi(strings.TrimSpace(rawCount))
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid item %q: count must be a positive integer", arg)
			}
			count = n
		}
		items[label] += count
	}
	return items, nil
}
