package meal

import "testing"

func TestParseMeals(t *testing.T) {
	text := `Here are some ideas.

**MEAL 1: Apple Cinnamon Oats**
DESCRIPTION: Warm oats with apple.
CALORIES: 350 kcal
INGREDIENTS:
- 1 apple
- 1 cup milk
INSTRUCTIONS:
1. Dice the apple.
2. Simmer with milk.

## MEAL 2: Milk Smoothie
DESCRIPTION: Quick and cold.
CALORIES: 200
INGREDIENTS: milk, apple
INSTRUCTIONS:
- Blend everything.
`
	meals := ParseMeals(text)
	if len(meals) != 2 {
		t.Fatalf("expected 2 meals, got %d: %+v", len(meals), meals)
	}
	first := meals[0]
	if first.Name != "Apple Cinnamon Oats" || first.Description != "Warm oats with apple." || first.Calories != "350 kcal" {
		t.Fatalf("unexpected first meal: %+v", first)
	}
	if len(first.Ingredients) != 2 || first.Ingredients[1] != "1 cup milk" {
		t.Fatalf("ingredients = %#v", first.Ingredients)
	}
	if len(first.Instructions) != 2 || first.Instructions[0] != "Dice the apple." {
		t.Fatalf("instructions = %#v", first.Instructions)
	}
	second := meals[1]
	if len(second.Ingredients) != 2 || second.Ingredients[0] != "milk" {
		t.Fatalf("inline ingredients = %#v", second.Ingredients)
	}
	if len(second.Instructions) != 1 || second.Instructions[0] != "Blend everything." {
		t.Fatalf("instructions = %#v", second.Instructions)
	}
}

func TestParseMealsNameOnNextLine(t *testing.T) {
	meals := ParseMeals("MEAL 1:\nEgg Salad\nCALORIES: 150")
	if len(meals) != 1 || meals[0].Name != "Egg Salad" || meals[0].Calories != "150" {
		t.Fatalf("unexpected meals: %+v", meals)
	}
}

func TestParseMealsFreeText(t *testing.T) {
	if meals := ParseMeals("Just eat the apple."); meals != nil {
		t.Fatalf("expected nil, got %+v", meals)
	}
}
