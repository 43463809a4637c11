package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"nutriflow/internal/api"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const statusLabelWidth = 18

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	tag := "[" + statusKindLabel(kind) + "]"
	if message != "" {
		tag += " " + message
	}
	line := fmt.Sprintf("  %-*s %s", statusLabelWidth, label+":", tag)
	if colorize {
		return statusKindColor(kind) + line + ansiReset
	}
	return line
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	default:
		return ansiBlue
	}
}

func renderSectionHeader(title string, colorize bool) string {
	line := "== " + strings.TrimSpace(title) + " =="
	if colorize {
		return ansiBlue + line + ansiReset
	}
	return line
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// printCommandResponse renders a capture command result for humans.
func printCommandResponse(out io.Writer, resp api.CommandResponse) {
	colorize := shouldColorize(out)
	kind := statusOK
	switch {
	case !resp.Success:
		kind = statusError
	case resp.Outcome == "confirmation_required" || resp.MealKind == "degraded":
		kind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Outcome", kind, resp.Outcome, colorize))
	if resp.Message != "" {
		fmt.Fprintln(out, renderStatusLine("Message", statusInfo, resp.Message, colorize))
	}
	if resp.Error != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, fmt.Sprintf("%s (%s)", resp.Error, resp.ErrorKind), colorize))
	}
	if resp.CycleID != "" {
		fmt.Fprintln(out, renderStatusLine("Cycle", statusInfo, resp.CycleID, colorize))
	}
	if len(resp.BeforeItems) > 0 && resp.Outcome == "captured" {
		fmt.Fprintln(out, renderStatusLine("Items seen", statusInfo, strconv.Itoa(len(resp.BeforeItems)), colorize))
	}

	if len(resp.TakenItems) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable([]string{"Item", "Taken"}, itemRows(resp.TakenItems), []columnAlignment{alignLeft, alignRight}))
	}
	for _, w := range resp.AllergyWarnings {
		fmt.Fprintln(out, renderStatusLine("Allergy", statusWarn, w, colorize))
	}
	if resp.Outcome == "confirmation_required" {
		fmt.Fprintf(out, "\nRun `nutriflow capture confirm %s` to request meals, or add --reject to discard.\n", resp.CycleID)
	}
	if len(resp.Meals) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderSectionHeader("Meal suggestions", colorize))
		for _, m := range resp.Meals {
			line := "- " + m.Name
			if m.Calories != "" {
				line += " (" + m.Calories + ")"
			}
			fmt.Fprintln(out, line)
			if m.Description != "" {
				fmt.Fprintln(out, "  "+m.Description)
			}
		}
	} else if strings.TrimSpace(resp.MealSuggestion) != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderSectionHeader("Meal suggestions", colorize))
		fmt.Fprintln(out, strings.TrimSpace(resp.MealSuggestion))
	}
}

func itemRows(items map[string]int) [][]string {
	labels := make([]string, 0, len(items))
	for label := range items {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	rows := make([][]string, 0, len(labels))
	for _, label := range labels {
		rows = append(rows, []string{label, strconv.Itoa(items[label])})
	}
	return rows
}
