package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"nutriflow/internal/api"
	"nutriflow/internal/profile"
)

func newProfileCommand(ctx *commandContext) *cobra.Command {
	profileCmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or change the user profile",
	}
	profileCmd.AddCommand(newProfileShowCommand(ctx))
	profileCmd.AddCommand(newProfileSetCommand(ctx))
	return profileCmd
}

func newProfileShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var p profile.UserProfile
			if err := ctx.withClient(func(c *api.Client) error {
				var err error
				p, err = c.Profile(cmd.Context())
				return err
			}); err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, p)
			}
			printProfile(cmd.OutOrStdout(), p)
			return nil
		},
	}
}

func newProfileSetCommand(ctx *commandContext) *cobra.Command {
	var (
		name      string
		age       int
		allergies []string
		preferred []string
		risks     []string
		cuisines  []string
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update profile fields; omitted flags keep their value",
		Example: "  nutriflow profile set --name Sam --allergies peanuts,dairy\n" +
			"  nutriflow profile set --allergies \"\"   # clear allergies",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			update := buildPartial(cmd, name, age, allergies, preferred, risks, cuisines)
			if update.Empty() {
				return fmt.Errorf("no profile fields given; see --help")
			}
			if err := update.Validate(); err != nil {
				return err
			}
			var p profile.UserProfile
			if err := ctx.withClient(func(c *api.Client) error {
				var err error
				p, err = c.UpdateProfile(cmd.Context(), update)
				return err
			}); err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, p)
			}
			printProfile(cmd.OutOrStdout(), p)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().IntVar(&age, "age", 0, "Age in years")
	cmd.Flags().StringSliceVar(&allergies, "allergies", nil, "Comma-separated allergens")
	cmd.Flags().StringSliceVar(&preferred, "preferred", nil, "Comma-separated preferred items")
	cmd.Flags().StringSliceVar(&risks, "risk-factors", nil, "Comma-separated health risk factors")
	cmd.Flags().StringSliceVar(&cuisines, "cuisines", nil, "Comma-separated cuisine preferences")
	return cmd
}

// buildPartial includes only flags the user set, so an explicit empty list
// clears a field.
func buildPartial(cmd *cobra.Command, name string, age int, allergies, preferred, risks, cuisines []string) profile.Partial {
	var update profile.Partial
	flags := cmd.Flags()
	if flags.Changed("name") {
		update.Name = &name
	}
	if flags.Changed("age") {
		update.Age = &age
	}
	list := func(flag string, values []string) *[]string {
		if !flags.Changed(flag) {
			return nil
		}
		cleaned := make([]string, 0, len(values))
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				cleaned = append(cleaned, v)
			}
		}
		return &cleaned
	}
	update.Allergies = list("allergies", allergies)
	update.PreferredItems = list("preferred", preferred)
	update.RiskFactors = list("risk-factors", risks)
	update.CuisinePreferences = list("cuisines", cuisines)
	return update
}

func printProfile(out io.Writer, p profile.UserProfile) {
	join := func(values []string) string {
		if len(values) == 0 {
			return "-"
		}
		return strings.Join(values, ", ")
	}
	rows := [][]string{
		{"Name", p.Name},
		{"Age", strconv.Itoa(p.Age)},
		{"Allergies", join(p.Allergies)},
		{"Preferred items", join(p.PreferredItems)},
		{"Risk factors", join(p.RiskFactors)},
		{"Cuisines", join(p.CuisinePreferences)},
	}
	fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))
}
