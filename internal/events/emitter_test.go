package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"nutriflow/internal/allergy"
	"nutriflow/internal/capture"
	"nutriflow/internal/config"
	"nutriflow/internal/events"
	"nutriflow/internal/inventory"
	"nutriflow/internal/logging"
	"nutriflow/internal/meal"
)

type message struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeTransport struct {
	mu     sync.Mutex
	sent   []message
	err    error
	closed bool
}

func (f *fakeTransport) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, message{topic: topic, qos: qos, retained: retained, payload: payload})
	return nil
}

func (f *fakeTransport) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func newEmitter(t *testing.T, transport events.Transport) *events.Emitter {
	t.Helper()
	cfg := config.MQTT{TopicPrefix: "kitchen/fridge", QoS: 1}
	return events.New(cfg, logging.NewNop(), events.WithTransport(transport))
}

func TestCycleFinishedPublishesSummary(t *testing.T) {
	transport := &fakeTransport{}
	emitter := newEmitter(t, transport)

	taken, err := inventory.NewDelta(map[string]int{"apple": 2})
	if err != nil {
		t.Fatalf("NewDelta: %v", err)
	}
	finished := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	emitter.CycleFinished(context.Background(), capture.Result{
		CycleID:    "c1",
		Source:     capture.SourceCapture,
		Outcome:    capture.OutcomeSuccess,
		Message:    capture.StatusMealsReady,
		Taken:      taken,
		Warnings:   []allergy.Warning{{Item: "milk", Message: "careful"}},
		Meal:       &meal.Result{Kind: meal.KindSuccess},
		FinishedAt: finished,
	})

	if len(transport.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(transport.sent))
	}
	msg := transport.sent[0]
	if msg.topic != "kitchen/fridge/cycles" || msg.qos != 1 || msg.retained {
		t.Fatalf("unexpected message envelope: %+v", msg)
	}
	var event events.CycleEvent
	if err := json.Unmarshal(msg.payload, &event); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.CycleID != "c1" || event.Outcome != "success" || event.Taken["apple"] != 2 {
		t.Fatalf("unexpected event: %+v", event)
	}
	if len(event.Warnings) != 1 || event.MealKind != "success" || !event.FinishedAt.Equal(finished) {
		t.Fatalf("unexpected event detail: %+v", event)
	}
}

func TestStateChangedIsRetained(t *testing.T) {
	transport := &fakeTransport{}
	emitter := newEmitter(t, transport)
	emitter.StateChanged(context.Background(), capture.Status{State: capture.StateMonitoring, BeforeItemsCount: 3})

	if len(transport.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(transport.sent))
	}
	msg := transport.sent[0]
	if msg.topic != "kitchen/fridge/state" || !msg.retained {
		t.Fatalf("unexpected message: %+v", msg)
	}
	var status map[string]any
	if err := json.Unmarshal(msg.payload, &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status["state"] != "monitoring" {
		t.Fatalf("state = %v", status["state"])
	}
}

func TestPublishFailureCounted(t *testing.T) {
	transport := &fakeTransport{err: errors.New("not connected")}
	emitter := newEmitter(t, transport)
	emitter.StateChanged(context.Background(), capture.Status{})
	published, failures := emitter.Stats()
	if published != 0 || failures != 1 {
		t.Fatalf("stats = %d/%d", published, failures)
	}
}

func TestEmitterWithoutBrokerIsNoop(t *testing.T) {
	emitter := events.New(config.MQTT{}, logging.NewNop())
	if err := emitter.Connect(context.Background(), config.MQTT{}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if emitter.Enabled() {
		t.Fatal("emitter without broker should be disabled")
	}
	emitter.CycleFinished(context.Background(), capture.Result{})
	if published, failures := emitter.Stats(); published != 0 || failures != 0 {
		t.Fatalf("stats = %d/%d", published, failures)
	}
	emitter.Close()
}

func TestCloseReleasesTransport(t *testing.T) {
	transport := &fakeTransport{}
	emitter := newEmitter(t, transport)
	emitter.Close()
	if !transport.closed {
		t.Fatal("transport not closed")
	}
	if emitter.Enabled() {
		t.Fatal("emitter should be disabled after Close")
	}
}
