package api

import (
	"nutriflow/internal/allergy"
	"nutriflow/internal/logging"
	"nutriflow/internal/meal"
	"nutriflow/internal/profile"
)

// dateTimeFormat is used for timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// CommandResponse is the envelope returned by every capture command.
type CommandResponse struct {
	Success         bool              `json:"success"`
	Outcome         string            `json:"outcome"`
	Message         string            `json:"message,omitempty"`
	Error           string            `json:"error,omitempty"`
	ErrorKind       string            `json:"error_kind,omitempty"`
	CycleID         string            `json:"cycle_id,omitempty"`
	Source          string            `json:"source,omitempty"`
	BeforeItems     []string          `json:"before_items,omitempty"`
	AfterItems      []string          `json:"after_items,omitempty"`
	TakenItems      map[string]int    `json:"taken_items,omitempty"`
	Summary         string            `json:"summary,omitempty"`
	AllergyWarnings []string          `json:"allergy_warnings,omitempty"`
	Warnings        []allergy.Warning `json:"warnings,omitempty"`
	MealKind        string            `json:"meal_kind,omitempty"`
	MealSuggestion  string            `json:"meal_suggestion,omitempty"`
	Meals           []meal.Meal       `json:"meals,omitempty"`
	MealStatusCode  int               `json:"meal_status_code,omitempty"`
	StartedAt       string            `json:"started_at,omitempty"`
	FinishedAt      string            `json:"finished_at,omitempty"`
}

// StatusResponse is the get_status view.
type StatusResponse struct {
	State            string              `json:"state"`
	CaptureRunning   bool                `json:"capture_running"`
	CameraActive     bool                `json:"camera_active"`
	BeforeItemsCount int                 `json:"before_items_count"`
	CurrentStatus    string              `json:"current_status"`
	CycleID          string              `json:"cycle_id,omitempty"`
	MonitoringSince  string              `json:"monitoring_since,omitempty"`
	PendingCycleID   string              `json:"pending_cycle_id,omitempty"`
	UserProfile      profile.UserProfile `json:"user_profile"`
	Daemon           DaemonInfo          `json:"daemon"`
}

// DaemonInfo describes the running process.
type DaemonInfo struct {
	PID          int    `json:"pid"`
	StartedAt    string `json:"started_at"`
	LogPath      string `json:"log_path,omitempty"`
	HistoryPath  string `json:"history_path,omitempty"`
	LockFilePath string `json:"lock_file_path,omitempty"`
	MQTT         bool   `json:"mqtt"`
	Metrics      bool   `json:"metrics"`
}

// AfterRequest is the body of POST /api/capture/after.
type AfterRequest struct {
	Acknowledged bool `json:"acknowledged"`
}

// ConfirmRequest resolves a confirmation_required cycle.
type ConfirmRequest struct {
	CycleID string `json:"cycle_id"`
	Proceed bool   `json:"proceed"`
}

// SuggestRequest asks for meals for explicit items.
type SuggestRequest struct {
	Items map[string]int `json:"items"`
}

// ProfileResponse wraps the current profile.
type ProfileResponse struct {
	Success bool                `json:"success"`
	Profile profile.UserProfile `json:"profile"`
}

// CycleView is a recorded cycle in transport form.
type CycleView struct {
	ID             string            `json:"id"`
	Source         string            `json:"source"`
	Outcome        string            `json:"outcome"`
	StartedAt      string            `json:"started_at"`
	FinishedAt     string            `json:"finished_at"`
	DurationMS     int64             `json:"duration_ms"`
	BeforeItems    []string          `json:"before_items"`
	AfterItems     []string          `json:"after_items"`
	TakenItems     map[string]int    `json:"taken_items"`
	Summary        string            `json:"summary,omitempty"`
	Warnings       []allergy.Warning `json:"warnings,omitempty"`
	MealKind       string            `json:"meal_kind,omitempty"`
	MealSuggestion string            `json:"meal_suggestion,omitempty"`
	Meals          []meal.Meal       `json:"meals,omitempty"`
	ErrorKind      string            `json:"error_kind,omitempty"`
	ErrorMessage   string            `json:"error_message,omitempty"`
}

// HistoryListResponse lists recorded cycles, newest first.
type HistoryListResponse struct {
	Cycles []CycleView `json:"cycles"`
	Total  int         `json:"total"`
}

// HistoryCycleResponse wraps one recorded cycle.
type HistoryCycleResponse struct {
	Cycle CycleView `json:"cycle"`
}

// FrameResponse carries the current frame for clients that cannot consume
// image/jpeg directly.
type FrameResponse struct {
	Frame     string `json:"frame"`
	Seq       uint64 `json:"seq"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ErrorResponse is returned with 4xx/5xx codes.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// LogsResponse carries buffered daemon log events after a sequence number.
type LogsResponse struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}
