package api

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"nutriflow/internal/allergy"
	"nutriflow/internal/capture"
	"nutriflow/internal/frames"
	"nutriflow/internal/history"
	"nutriflow/internal/inventory"
	"nutriflow/internal/profile"
)

// FromResult converts a capture result into the command envelope.
func FromResult(r capture.Result) CommandResponse {
	resp := CommandResponse{
		Success:     r.Success(),
		Outcome:     string(r.Outcome),
		Message:     r.Message,
		Error:       r.ErrorMessage(),
		ErrorKind:   r.ErrorKind(),
		CycleID:     r.CycleID,
		Source:      string(r.Source),
		BeforeItems: labels(r.Before),
		AfterItems:  labels(r.After),
		Warnings:    r.Warnings,
		StartedAt:   formatTime(r.StartedAt),
		FinishedAt:  formatTime(r.FinishedAt),
	}
	if !r.Taken.Empty() {
		resp.TakenItems = r.Taken.Map()
		resp.Summary = summary(r.Taken)
	}
	if len(r.Warnings) > 0 {
		resp.AllergyWarnings = allergy.Messages(r.Warnings)
	}
	if r.Meal != nil {
		resp.MealKind = string(r.Meal.Kind)
		resp.MealSuggestion = r.Meal.Text
		resp.Meals = r.Meal.Meals
		resp.MealStatusCode = r.Meal.StatusCode
	}
	return resp
}

// FromStatus converts the capture status and current profile.
func FromStatus(s capture.Status, p profile.UserProfile) StatusResponse {
	return StatusResponse{
		State:            s.State.String(),
		CaptureRunning:   s.State == capture.StateMonitoring,
		CameraActive:     s.CameraActive,
		BeforeItemsCount: s.BeforeItemsCount,
		CurrentStatus:    s.CurrentStatus,
		CycleID:          s.CycleID,
		MonitoringSince:  formatTime(s.MonitoringSince),
		PendingCycleID:   s.PendingCycleID,
		UserProfile:      p,
	}
}

// FromCycle converts a recorded cycle.
func FromCycle(c history.Cycle) CycleView {
	view := CycleView{
		ID:             c.ID,
		Source:         c.Source,
		Outcome:        c.Outcome,
		StartedAt:      formatTime(c.StartedAt),
		FinishedAt:     formatTime(c.FinishedAt),
		DurationMS:     c.Duration().Milliseconds(),
		BeforeItems:    labels(c.Before),
		AfterItems:     labels(c.After),
		TakenItems:     c.Taken.Map(),
		Summary:        summary(c.Taken),
		Warnings:       c.Warnings,
		MealKind:       c.MealKind,
		MealSuggestion: c.MealText,
		Meals:          c.Meals,
		ErrorKind:      c.ErrorKind,
		ErrorMessage:   c.ErrorMessage,
	}
	if view.BeforeItems == nil {
		view.BeforeItems = []string{}
	}
	if view.AfterItems == nil {
		view.AfterItems = []string{}
	}
	return view
}

// FromCycles converts a list of recorded cycles.
func FromCycles(cycles []history.Cycle) []CycleView {
	out := make([]CycleView, 0, len(cycles))
	for _, c := range cycles {
		out = append(out, FromCycle(c))
	}
	return out
}

// ParseTime reads an API timestamp, returning the zero time on failure.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateTimeFormat, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

// FromFrame encodes f for the base64 frame endpoint.
func FromFrame(f *frames.Frame) FrameResponse {
	return FrameResponse{
		Frame:     base64.StdEncoding.EncodeToString(f.Data),
		Seq:       f.Seq,
		Width:     f.Width,
		Height:    f.Height,
		Timestamp: formatTime(f.Timestamp),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func labels(s inventory.Snapshot) []string {
	if len(s) == 0 {
		return nil
	}
	return append([]string(nil), s...)
}

// summary renders one "label: count" line per taken item.
func summary(d inventory.Delta) string {
	entries := d.Entries()
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(e.Label)
		b.WriteString(": ")
		b.WriteString(strconv.Itoa(e.Count))
	}
	return b.String()
}
