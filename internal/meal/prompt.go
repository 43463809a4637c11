package meal

import (
	"fmt"
	"strings"
	"time"

	"nutriflow/internal/inventory"
	"nutriflow/internal/profile"
)

// PromptOptions controls prompt construction.
type PromptOptions struct {
	MealCount  int
	Structured bool
	Now        time.Time
}

// BuildPrompt renders the generation prompt for the taken items and profile.
func BuildPrompt(delta inventory.Delta, p profile.UserProfile, opts PromptOptions) string {
	count := opts.MealCount
	if count <= 0 {
		count = defaultMealCount
	}
	allergies := listOrNone(p.Allergies)
	risks := listOrNone(p.RiskFactors)

	var b strings.Builder
	b.WriteString("You are a smart health-focused AI meal planner. ")
	fmt.Fprintf(&b, "The following food items were just taken out of the fridge: %s.\n\n", delta.ItemsText())
	fmt.Fprintf(&b, "The person has a higher risk of %s, is allergic to %s, prefers %s, and likes %s cuisines.\n\n",
		risks, allergies, listOrNone(p.PreferredItems), listOrNone(p.CuisinePreferences))
	if p.Age > 0 {
		fmt.Fprintf(&b, "They are %d years old. ", p.Age)
	}
	if name := strings.TrimSpace(p.Name); name != "" {
		fmt.Fprintf(&b, "Their name is %s.", name)
	}
	b.WriteString("\n\n")
	if !opts.Now.IsZero() {
		fmt.Fprintf(&b, "It is currently %s (%s).\n", mealPeriod(opts.Now), opts.Now.Format("15:04"))
	}
	fmt.Fprintf(&b, "Please suggest %d healthy meal %s using ONLY the ingredients taken out, tailored to these needs and to the time of day.\n\n",
		count, plural(count, "idea", "ideas"))

	if opts.Structured {
		b.WriteString("Format your response EXACTLY like this:\n\n")
		for i := 1; i <= count; i++ {
			fmt.Fprintf(&b, "MEAL %d: [Meal Name]\n", i)
			b.WriteString("DESCRIPTION: [One sentence description]\n")
			b.WriteString("CALORIES: [estimated calories per serving]\n")
			b.WriteString("INGREDIENTS:\n- [ingredient 1]\n- [ingredient 2]\n")
			b.WriteString("INSTRUCTIONS:\n1. [step 1]\n2. [step 2]\n\n")
		}
	}

	b.WriteString("Make sure to:\n")
	fmt.Fprintf(&b, "- Avoid any allergens (%s)\n", allergies)
	fmt.Fprintf(&b, "- Focus on health benefits for %s\n", risks)
	b.WriteString("- Include estimated calories per serving\n")
	b.WriteString("- Use only the ingredients that were taken out\n")
	if p.Age > 0 {
		fmt.Fprintf(&b, "- Make recipes suitable for someone who is %d years old\n", p.Age)
	}
	return b.String()
}

func mealPeriod(t time.Time) string {
	switch h := t.Hour(); {
	case h >= 5 && h < 11:
		return "breakfast time"
	case h >= 11 && h < 15:
		return "lunch time"
	case h >= 17 && h < 22:
		return "dinner time"
	default:
		return "snack time"
	}
}

func listOrNone(values []string) string {
	if len(values) == 0 {
		return "none"
	}
	return strings.Join(values, ", ")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
