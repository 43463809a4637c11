package meal

import (
	"regexp"
	"strings"
)

// Meal is one suggestion extracted from structured output.
type Meal struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Calories     string   `json:"calories,omitempty"`
	Ingredients  []string `json:"ingredients,omitempty"`
	Instructions []string `json:"instructions,omitempty"`
}

var (
	mealHeader   = regexp.MustCompile(`(?i)^meal\s*\d+\s*[:.)-]\s*(.*)$`)
	fieldLine    = regexp.MustCompile(`(?i)^(description|calories|ingredients|instructions)\s*:\s*(.*)$`)
	numberedStep = regexp.MustCompile(`^\d+[.)]\s*`)
)

type section int

const (
	sectionNone section = iota
	sectionIngredients
	sectionInstructions
)

// ParseMeals extracts meals from text in the MEAL n: / DESCRIPTION: /
// CALORIES: / INGREDIENTS: / INSTRUCTIONS: layout. Text without any MEAL
// header yields nil. Markdown emphasis and heading markers are ignored.
func ParseMeals(text string) []Meal {
	var meals []Meal
	var current *Meal
	sec := sectionNone

	flush := func() {
		if current != nil {
			meals = append(meals, *current)
		}
	}

	for _, raw := range strings.Split(text, "\n") {
		line := cleanLine(raw)
		if line == "" {
			continue
		}
		if m := mealHeader.FindStringSubmatch(line); m != nil {
			flush()
			current = &Meal{Name: strings.TrimSpace(m[1])}
			sec = sectionNone
			continue
		}
		if current == nil {
			continue
		}
		if m := fieldLine.FindStringSubmatch(line); m != nil {
			value := strings.TrimSpace(m[2])
			switch strings.ToLower(m[1]) {
			case "description":
				current.Description = value
				sec = sectionNone
			case "calories":
				current.Calories = value
				sec = sectionNone
			case "ingredients":
				sec = sectionIngredients
				if value != "" {
					current.Ingredients = append(current.Ingredients, splitInline(value)...)
				}
			case "instructions":
				sec = sectionInstructions
				if value != "" {
					current.Instructions = append(current.Instructions, value)
				}
			}
			continue
		}
		switch sec {
		case sectionIngredients:
			if item := strings.TrimSpace(strings.TrimLeft(line, "-•* ")); item != "" {
				current.Ingredients = append(current.Ingredients, item)
			}
		case sectionInstructions:
			step := numberedStep.ReplaceAllString(line, "")
			step = strings.TrimSpace(strings.TrimLeft(step, "-•* "))
			if step != "" {
				current.Instructions = append(current.Instructions, step)
			}
		default:
			if current.Name == "" {
				current.Name = line
			}
		}
	}
	flush()
	return meals
}

func cleanLine(raw string) string {
	line := strings.TrimSpace(raw)
	line = strings.TrimLeft(line, "#")
	line = strings.ReplaceAll(line, "**", "")
	return strings.TrimSpace(line)
}

func splitInline(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
