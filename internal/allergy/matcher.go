package allergy

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"nutriflow/internal/inventory"
	"nutriflow/internal/profile"
)

// Rule identifies which check produced a warning.
type Rule string

const (
	RuleDirect Rule = "direct"
	RuleTable  Rule = "table"
)

// Warning reports one matched reason an item may be unsafe.
type Warning struct {
	Item            string `json:"item"`
	MatchedAllergen string `json:"matched_allergen"`
	Rule            Rule   `json:"rule"`
	Message         string `json:"message"`
}

// Matcher checks taken items against a profile's allergies.
type Matcher struct {
	table Table
}

// NewMatcher returns a matcher using table for indirect matches.
func NewMatcher(table Table) *Matcher {
	return &Matcher{table: table}
}

// Check returns warnings in delta order. An item matched by both rules, or by
// several allergy terms, produces one warning per match.
func (m *Matcher) Check(delta inventory.Delta, p profile.UserProfile) []Warning {
	fold := cases.Fold()
	allergies := make([]string, 0, len(p.Allergies))
	allergySet := make(map[string]struct{}, len(p.Allergies))
	for _, a := range p.Allergies {
		folded := fold.String(strings.TrimSpace(a))
		if folded == "" {
			continue
		}
		allergies = append(allergies, folded)
		allergySet[folded] = struct{}{}
	}
	if len(allergies) == 0 {
		return nil
	}

	var warnings []Warning
	for _, entry := range delta.Entries() {
		item := fold.String(strings.TrimSpace(entry.Label))
		if item == "" {
			continue
		}

		for _, allergy := range allergies {
			if strings.Contains(item, allergy) || strings.Contains(allergy, item) {
				warnings = append(warnings, Warning{
					Item:            entry.Label,
					MatchedAllergen: allergy,
					Rule:            RuleDirect,
					Message:         fmt.Sprintf("WARNING: %s may contain %s which you're allergic to!", entry.Label, allergy),
				})
			}
		}

		for _, allergen := range m.table.Lookup(item) {
			if _, ok := allergySet[allergen]; !ok {
				continue
			}
			warnings = append(warnings, Warning{
				Item:            entry.Label,
				MatchedAllergen: allergen,
				Rule:            RuleTable,
				Message:         fmt.Sprintf("WARNING: %s contains %s which you're allergic to!", entry.Label, allergen),
			})
		}
	}
	return warnings
}

// Messages returns the warning texts in order.
func Messages(warnings []Warning) []string {
	out := make([]string, 0, len(warnings))
	for _, w := range warnings {
		out = append(out, w.Message)
	}
	return out
}
