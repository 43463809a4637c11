package logging

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestStreamHandlerCarriesLoggerAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	logger := slog.New(newStreamHandler(slog.NewTextHandler(io.Discard, nil), hub))

	NewComponentLogger(logger, "capture").
		With(String(FieldCycleID, "c-42")).
		Info("after snapshot", Int("items", 3), String(FieldEventType, "capture.after"))

	events, next := hub.Tail(10)
	if len(events) != 1 || next != 1 {
		t.Fatalf("expected 1 event at seq 1, got %d at %d", len(events), next)
	}
	evt := events[0]
	if evt.Component != "capture" || evt.CycleID != "c-42" || evt.EventType != "capture.after" {
		t.Fatalf("well-known fields not lifted: %+v", evt)
	}
	if evt.Fields["items"] != "3" || evt.Level != "INFO" || evt.Message != "after snapshot" {
		t.Fatalf("unexpected event: %+v", evt)
	}
}

func TestStreamHandlerGroups(t *testing.T) {
	hub := NewStreamHub(10)
	logger := slog.New(newStreamHandler(slog.NewTextHandler(io.Discard, nil), hub))
	logger.WithGroup("meal").Info("request", Int("status", 200))

	events, _ := hub.Tail(1)
	if events[0].Fields["meal.status"] != "200" {
		t.Fatalf("fields = %v", events[0].Fields)
	}
}

func TestStreamHandlerRespectsLevel(t *testing.T) {
	hub := NewStreamHub(10)
	base := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn})
	logger := slog.New(newStreamHandler(base, hub))
	logger.Info("dropped")
	logger.Warn("kept")

	events, _ := hub.Tail(10)
	if len(events) != 1 || events[0].Message != "kept" {
		t.Fatalf("events = %+v", events)
	}
}

func TestStreamHubCapacity(t *testing.T) {
	hub := NewStreamHub(3)
	for range 5 {
		hub.Publish(LogEvent{Message: "x"})
	}
	events, next := hub.Tail(0)
	if len(events) != 3 || events[0].Sequence != 3 || next != 5 {
		t.Fatalf("events=%d first=%d next=%d", len(events), events[0].Sequence, next)
	}

	events, _, err := hub.Fetch(context.Background(), 4, 10, false)
	if err != nil || len(events) != 1 || events[0].Sequence != 5 {
		t.Fatalf("fetch since 4: %+v err=%v", events, err)
	}
	events, _, _ = hub.Fetch(context.Background(), 5, 10, false)
	if len(events) != 0 {
		t.Fatalf("expected nothing after latest, got %d", len(events))
	}
}

func TestStreamHubFetchWaits(t *testing.T) {
	hub := NewStreamHub(10)
	done := make(chan []LogEvent, 1)
	go func() {
		events, _, _ := hub.Fetch(context.Background(), 0, 10, true)
		done <- events
	}()
	time.Sleep(20 * time.Millisecond)
	hub.Publish(LogEvent{Message: "late"})

	select {
	case events := <-done:
		if len(events) != 1 || events[0].Message != "late" {
			t.Fatalf("events = %+v", events)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch did not wake")
	}
}

func TestStreamHubFetchCancelled(t *testing.T) {
	hub := NewStreamHub(10)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := hub.Fetch(ctx, 0, 10, true); err == nil {
		t.Fatal("expected context error")
	}
}
