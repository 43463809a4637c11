package history

import (
	"time"

	"nutriflow/internal/allergy"
	"nutriflow/internal/inventory"
	"nutriflow/internal/meal"
)

// Cycle is one recorded capture or manual suggestion.
type Cycle struct {
	ID           string             `json:"id"`
	Source       string             `json:"source"`
	Outcome      string             `json:"outcome"`
	StartedAt    time.Time          `json:"started_at"`
	FinishedAt   time.Time          `json:"finished_at"`
	Before       inventory.Snapshot `json:"before"`
	After        inventory.Snapshot `json:"after"`
	Taken        inventory.Delta    `json:"taken"`
	Warnings     []allergy.Warning  `json:"warnings"`
	MealKind     string             `json:"meal_kind,omitempty"`
	MealText     string             `json:"meal_text,omitempty"`
	Meals        []meal.Meal        `json:"meals,omitempty"`
	ErrorKind    string             `json:"error_kind,omitempty"`
	ErrorMessage string             `json:"error_message,omitempty"`
}

// Duration is the wall time between start and finish.
func (c Cycle) Duration() time.Duration {
	if c.StartedAt.IsZero() || c.FinishedAt.IsZero() {
		return 0
	}
	return c.FinishedAt.Sub(c.StartedAt)
}
