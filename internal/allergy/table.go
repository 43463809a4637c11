package allergy

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

//go:embed allergens.yaml
var builtinTable []byte

// Table maps folded food labels to the allergen categories they may contain.
type Table struct {
	entries map[string][]string
}

// DefaultTable returns the built-in food-to-allergen table.
func DefaultTable() Table {
	table, err := ParseTable(builtinTable)
	if err != nil {
		panic(fmt.Sprintf("allergy: built-in table is invalid: %v", err))
	}
	return table
}

// LoadTable reads a YAML table from path. An empty path yields the built-in table.
func LoadTable(path string) (Table, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read allergen table: %w", err)
	}
	table, err := ParseTable(data)
	if err != nil {
		return Table{}, fmt.Errorf("allergen table %s: %w", path, err)
	}
	return table, nil
}

// ParseTable decodes a YAML mapping of food label to allergen list.
func ParseTable(data []byte) (Table, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Table{}, fmt.Errorf("parse allergen table: %w", err)
	}
	fold := cases.Fold()
	entries := make(map[string][]string, len(raw))
	for food, allergens := range raw {
		key := fold.String(strings.TrimSpace(food))
		if key == "" {
			return Table{}, fmt.Errorf("allergen table has a blank food label")
		}
		cleaned := make([]string, 0, len(allergens))
		for _, allergen := range allergens {
			if a := fold.String(strings.TrimSpace(allergen)); a != "" {
				cleaned = append(cleaned, a)
			}
		}
		if len(cleaned) == 0 {
			return Table{}, fmt.Errorf("food %q lists no allergens", food)
		}
		entries[key] = cleaned
	}
	return Table{entries: entries}, nil
}

// Lookup returns the allergens for an already folded label.
func (t Table) Lookup(foldedLabel string) []string {
	return t.entries[foldedLabel]
}

// Foods returns the table's labels sorted alphabetically.
func (t Table) Foods() []string {
	foods := make([]string, 0, len(t.entries))
	for food := range t.entries {
		foods = append(foods, food)
	}
	sort.Strings(foods)
	return foods
}

// Len is the number of food labels in the table.
func (t Table) Len() int { return len(t.entries) }
