package capture

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nutriflow/internal/allergy"
	"nutriflow/internal/frames"
	"nutriflow/internal/inventory"
	"nutriflow/internal/meal"
	"nutriflow/internal/profile"
	"nutriflow/internal/services"
)

// Outcome tags the result of a command.
type Outcome string

const (
	OutcomeCaptured             Outcome = "captured"
	OutcomeSuccess              Outcome = "success"
	OutcomeNothingTaken         Outcome = "nothing_taken"
	OutcomeNothingToCompare     Outcome = "nothing_to_compare"
	OutcomeConfirmationRequired Outcome = "confirmation_required"
	OutcomeCancelled            Outcome = "cancelled"
	OutcomeFailed               Outcome = "failed"
)

// Terminal reports whether the outcome closes a cycle.
func (o Outcome) Terminal() bool {
	switch o {
	case OutcomeSuccess, OutcomeNothingTaken, OutcomeNothingToCompare, OutcomeCancelled:
		return true
	default:
		return false
	}
}

// Source tells where a cycle came from.
type Source string

const (
	SourceCapture Source = "capture"
	SourceManual  Source = "manual"
)

// Human status lines shown by get_status.
const (
	StatusReady            = "Ready"
	StatusMonitoring       = "Monitoring fridge - take items out when ready"
	StatusAnalyzing        = "Analyzing what was taken..."
	StatusNothingTaken     = "No items were taken from the fridge"
	StatusNothingToCompare = "Nothing to compare - capture the fridge before taking items out"
	StatusMealsReady       = "Meal suggestions with calories generated successfully!"
	StatusMealsCancelled   = "Meal generation cancelled due to allergy concerns"
	StatusAwaitingConfirm  = "Allergy warning - confirm to generate meal suggestions"
	StatusCaptureCancelled = "Capture cancelled"
	StatusPendingDiscarded = "Pending confirmation discarded by a new capture"
	StatusNoFrame          = "ERROR: No camera frame available"
	StatusDetectionFailed  = "ERROR: Item detection failed"
	StatusMealFailed       = "ERROR: Meal suggestions could not be generated"
)

func statusCapturedBefore(n int) string {
	return fmt.Sprintf("Captured full fridge: %d items detected", n)
}

func statusGenerating(delta inventory.Delta) string {
	return fmt.Sprintf("Items taken: %s - Generating meal suggestions...", strings.Join(delta.Labels(), ", "))
}

// Result is the structured answer to every command.
type Result struct {
	CycleID    string             `json:"cycle_id,omitempty"`
	Command    Command            `json:"command"`
	Source     Source             `json:"source"`
	Outcome    Outcome            `json:"outcome"`
	Message    string             `json:"message"`
	Before     inventory.Snapshot `json:"before,omitempty"`
	After      inventory.Snapshot `json:"after,omitempty"`
	Taken      inventory.Delta    `json:"taken"`
	Warnings   []allergy.Warning  `json:"warnings,omitempty"`
	Meal       *meal.Result       `json:"meal,omitempty"`
	Err        error              `json:"-"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}

// Success reports whether the command completed without error.
func (r Result) Success() bool { return r.Outcome != OutcomeFailed }

// ErrorKind is the stable error identifier, empty on success.
func (r Result) ErrorKind() string { return services.Kind(r.Err) }

// ErrorMessage is the error text, empty on success.
func (r Result) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Status is the get_status view.
type Status struct {
	State            State     `json:"state"`
	CameraActive     bool      `json:"camera_active"`
	BeforeItemsCount int       `json:"before_items_count"`
	CurrentStatus    string    `json:"current_status"`
	CycleID          string    `json:"cycle_id,omitempty"`
	MonitoringSince  time.Time `json:"monitoring_since,omitzero"`
	PendingCycleID   string    `json:"pending_cycle_id,omitempty"`
}

// AfterOptions modifies CaptureAfter.
type AfterOptions struct {
	// Acknowledged skips the allergy confirmation step.
	Acknowledged bool
}

// FrameReader exposes the shared current-frame slot.
type FrameReader interface {
	Current() *frames.Frame
	Active() bool
}

// Detector maps an image to item labels.
type Detector interface {
	Detect(ctx context.Context, image []byte) ([]string, error)
}

// AllergyChecker cross-references taken items with a profile.
type AllergyChecker interface {
	Check(delta inventory.Delta, p profile.UserProfile) []allergy.Warning
}

// MealSuggester requests meal ideas for taken items.
type MealSuggester interface {
	Suggest(ctx context.Context, delta inventory.Delta, p profile.UserProfile) meal.Result
}

// ProfileReader returns the current user profile.
type ProfileReader interface {
	Get() profile.UserProfile
}

// Phase distinguishes the two detections of a cycle.
type Phase string

const (
	PhaseBefore Phase = "before"
	PhaseAfter  Phase = "after"
)

// Observer receives cycle events. Calls are synchronous and made without any
// capture lock held.
type Observer interface {
	CycleFinished(ctx context.Context, r Result)
	StateChanged(ctx context.Context, s Status)
	DetectionFinished(phase Phase, labels int, d time.Duration, err error)
}

// NopObserver implements Observer with no-ops. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) CycleFinished(context.Context, Result)               {}
func (NopObserver) StateChanged(context.Context, Status)                {}
func (NopObserver) DetectionFinished(Phase, int, time.Duration, error) {}
