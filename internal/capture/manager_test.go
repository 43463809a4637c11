package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"nutriflow/internal/allergy"
	"nutriflow/internal/frames"
	"nutriflow/internal/inventory"
	"nutriflow/internal/meal"
	"nutriflow/internal/profile"
	"nutriflow/internal/services"
)

// fakeFrames serves a frame whose Data is a comma-separated label list.
type fakeFrames struct {
	mu    sync.Mutex
	frame *frames.Frame
	seq   uint64
}

func (f *fakeFrames) set(labels string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.frame = &frames.Frame{Seq: f.seq, Timestamp: time.Now(), Data: []byte(labels)}
}

func (f *fakeFrames) clear() {
	f.mu.Lock()
	f.frame = nil
	f.mu.Unlock()
}

func (f *fakeFrames) Current() *frames.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frame.Clone()
}

func (f *fakeFrames) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frame != nil
}

type fakeDetector struct {
	mu    sync.Mutex
	err   error
	calls []string
}

func (d *fakeDetector) Detect(_ context.Context, image []byte) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, string(image))
	if d.err != nil {
		return nil, d.err
	}
	var labels []string
	for _, label := range strings.Split(string(image), ",") {
		if label = strings.TrimSpace(label); label != "" {
			labels = append(labels, label)
		}
	}
	return labels, nil
}

type fakeMeals struct {
	mu     sync.Mutex
	result meal.Result
	calls  []string
}

func (m *fakeMeals) Suggest(_ context.Context, delta inventory.Delta, _ profile.UserProfile) meal.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, delta.ItemsText())
	return m.result
}

func (m *fakeMeals) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type recordingObserver struct {
	NopObserver
	mu         sync.Mutex
	cycles     []Result
	states     []Status
	detections []Phase
}

func (o *recordingObserver) CycleFinished(_ context.Context, r Result) {
	o.mu.Lock()
	o.cycles = append(o.cycles, r)
	o.mu.Unlock()
}

func (o *recordingObserver) finished() []Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Result(nil), o.cycles...)
}

func (o *recordingObserver) StateChanged(_ context.Context, s Status) {
	o.mu.Lock()
	o.states = append(o.states, s)
	o.mu.Unlock()
}

func (o *recordingObserver) DetectionFinished(phase Phase, _ int, _ time.Duration, _ error) {
	o.mu.Lock()
	o.detections = append(o.detections, phase)
	o.mu.Unlock()
}

type harness struct {
	manager  *Manager
	frames   *fakeFrames
	detector *fakeDetector
	meals    *fakeMeals
	observer *recordingObserver
	profiles *profile.Store
}

func newHarness(t *testing.T, cfg Config, allergies ...string) *harness {
	t.Helper()
	h := &harness{
		frames:   &fakeFrames{},
		detector: &fakeDetector{},
		meals:    &fakeMeals{result: meal.Result{Kind: meal.KindSuccess, Text: "Apple milk smoothie"}},
		observer: &recordingObserver{},
		profiles: profile.NewStore(profile.UserProfile{Name: "Test", Age: 30, Allergies: allergies}),
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	ids := 0
	h.manager = NewManager(cfg, Deps{
		Frames:   h.frames,
		Detector: h.detector,
		Allergy:  allergy.NewMatcher(allergy.DefaultTable()),
		Meals:    h.meals,
		Profiles: h.profiles,
	}, WithObserver(h.observer), WithIDGenerator(func() string {
		ids++
		return fmt.Sprintf("cycle-%d", ids)
	}))
	t.Cleanup(h.manager.Close)
	return h
}

// setAfter changes the scene and waits until the monitoring poller has
// copied it.
func (h *harness) setAfter(t *testing.T, labels string) {
	t.Helper()
	h.frames.set(labels)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		frame := h.manager.session.read().latestAfter
		if frame != nil && string(frame.Data) == labels {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("poller never picked up %q", labels)
}

func TestApplesAndMilkScenario(t *testing.T) {
	h := newHarness(t, Config{}, "lactose")
	h.frames.set("apple,apple,milk")

	before := h.manager.CaptureBefore(context.Background())
	if before.Outcome != OutcomeCaptured || before.Err != nil {
		t.Fatalf("capture before: %+v", before)
	}
	if before.Message != "Captured full fridge: 3 items detected" {
		t.Fatalf("message = %q", before.Message)
	}
	if h.manager.State() != StateMonitoring {
		t.Fatalf("state = %s", h.manager.State())
	}

	h.setAfter(t, "apple")
	after := h.manager.CaptureAfter(context.Background(), AfterOptions{})
	if after.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %s err = %v", after.Outcome, after.Err)
	}
	if got := after.Taken.Map(); len(got) != 2 || got["apple"] != 1 || got["milk"] != 1 {
		t.Fatalf("taken = %v", got)
	}
	if len(after.Warnings) != 1 || after.Warnings[0].Item != "milk" || after.Warnings[0].MatchedAllergen != "lactose" {
		t.Fatalf("warnings = %+v", after.Warnings)
	}
	if len(h.meals.calls) != 1 || h.meals.calls[0] != "1 apple, 1 milk" {
		t.Fatalf("meal calls = %v", h.meals.calls)
	}
	if after.Meal == nil || after.Meal.Text != "Apple milk smoothie" {
		t.Fatalf("meal = %+v", after.Meal)
	}
	if after.CycleID != before.CycleID {
		t.Fatalf("cycle id changed: %s -> %s", before.CycleID, after.CycleID)
	}

	status := h.manager.Status()
	if status.State != StateIdle || status.BeforeItemsCount != 0 || status.CurrentStatus != StatusMealsReady {
		t.Fatalf("status after cycle = %+v", status)
	}
	if len(h.observer.cycles) != 1 || h.observer.cycles[0].Outcome != OutcomeSuccess {
		t.Fatalf("observer cycles = %+v", h.observer.cycles)
	}
	if len(h.observer.detections) != 2 {
		t.Fatalf("detections observed = %v", h.observer.detections)
	}
}

func TestNothingTaken(t *testing.T) {
	h := newHarness(t, Config{})
	h.frames.set("egg,egg")
	h.manager.CaptureBefore(context.Background())
	result := h.manager.CaptureAfter(context.Background(), AfterOptions{})
	if result.Outcome != OutcomeNothingTaken || !result.Success() {
		t.Fatalf("result = %+v", result)
	}
	if !result.Taken.Empty() {
		t.Fatalf("taken = %v", result.Taken.Map())
	}
	if h.meals.callCount() != 0 {
		t.Fatal("meal service must not be called when nothing was taken")
	}
	if result.Message != StatusNothingTaken {
		t.Fatalf("message = %q", result.Message)
	}
}

func TestEmptyBeforeIsNothingToCompare(t *testing.T) {
	h := newHarness(t, Config{})
	h.frames.set("")
	h.manager.CaptureBefore(context.Background())
	h.setAfter(t, "milk")
	result := h.manager.CaptureAfter(context.Background(), AfterOptions{})
	if result.Outcome != OutcomeNothingToCompare {
		t.Fatalf("outcome = %s", result.Outcome)
	}
	if h.meals.callCount() != 0 {
		t.Fatal("meal service must not be called")
	}
}

func TestCaptureAfterWithoutBefore(t *testing.T) {
	h := newHarness(t, Config{})

	result := h.manager.CaptureAfter(context.Background(), AfterOptions{})
	if result.Outcome != OutcomeFailed || !errors.Is(result.Err, services.ErrNoFrameAvailable) {
		t.Fatalf("expected NoFrameAvailable, got %+v", result)
	}
	if result.ErrorKind() != "no_frame_available" {
		t.Fatalf("error kind = %q", result.ErrorKind())
	}

	h.frames.set("milk")
	result = h.manager.CaptureAfter(context.Background(), AfterOptions{})
	if result.Outcome != OutcomeNothingToCompare {
		t.Fatalf("expected nothing_to_compare from live frame, got %+v", result)
	}
	if len(result.After) != 1 || result.After[0] != "milk" {
		t.Fatalf("after = %v", result.After)
	}
}

func TestCaptureBeforeRequiresFrame(t *testing.T) {
	h := newHarness(t, Config{})
	result := h.manager.CaptureBefore(context.Background())
	if !errors.Is(result.Err, services.ErrNoFrameAvailable) {
		t.Fatalf("expected NoFrameAvailable, got %v", result.Err)
	}
	if h.manager.State() != StateIdle {
		t.Fatal("failed capture must stay idle")
	}
	if h.manager.Status().CurrentStatus != StatusNoFrame {
		t.Fatalf("status = %q", h.manager.Status().CurrentStatus)
	}
}

func TestCaptureBeforeTwiceIsInvalid(t *testing.T) {
	h := newHarness(t, Config{})
	h.frames.set("apple")
	h.manager.CaptureBefore(context.Background())
	result := h.manager.CaptureBefore(context.Background())
	if !errors.Is(result.Err, services.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", result.Err)
	}
	if h.manager.State() != StateMonitoring {
		t.Fatal("invalid command must not change state")
	}
}

func TestBeforeDetectionFailure(t *testing.T) {
	h := newHarness(t, Config{})
	h.frames.set("apple")
	h.detector.err = errors.New("model crashed")
	result := h.manager.CaptureBefore(context.Background())
	if !errors.Is(result.Err, services.ErrDetectionFailed) {
		t.Fatalf("expected ErrDetectionFailed, got %v", result.Err)
	}
	if !strings.Contains(result.Err.Error(), "model crashed") {
		t.Fatalf("cause missing: %v", result.Err)
	}
	if h.manager.State() != StateIdle {
		t.Fatal("expected idle state")
	}
}

func TestAfterDetectionFailureCanBeRetried(t *testing.T) {
	h := newHarness(t, Config{})
	h.frames.set("apple,milk")
	h.manager.CaptureBefore(context.Background())

	h.setAfter(t, "apple")
	h.detector.mu.Lock()
	h.detector.err = errors.New("timeout")
	h.detector.mu.Unlock()
	failed := h.manager.CaptureAfter(context.Background(), AfterOptions{})
	if !errors.Is(failed.Err, services.ErrDetectionFailed) {
		t.Fatalf("expected ErrDetectionFailed, got %v", failed.Err)
	}
	if status := h.manager.Status(); status.State != StateIdle || status.BeforeItemsCount != 2 {
		t.Fatalf("status after failure = %+v", status)
	}

	h.detector.mu.Lock()
	h.detector.err = nil
	h.detector.mu.Unlock()
	retried := h.manager.CaptureAfter(context.Background(), AfterOptions{})
	if retried.Outcome != OutcomeSuccess || retried.Taken.Count("milk") != 1 {
		t.Fatalf("retry = %+v", retried)
	}
	if retried.CycleID != failed.CycleID {
		t.Fatal("retry should continue the same cycle")
	}
}

func TestPollerKeepsFreshestFrame(t *testing.T) {
	h := newHarness(t, Config{})
	h.frames.set("apple,milk,cheese")
	h.manager.CaptureBefore(context.Background())

	h.frames.set("apple")
	deadline := time.Now().Add(2 * time.Second)
	for {
		frame := h.manager.session.read().latestAfter
		if frame != nil && string(frame.Data) == "apple" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("poller never copied the frame")
		}
		time.Sleep(2 * time.Millisecond)
	}
	h.frames.clear()

	result := h.manager.CaptureAfter(context.Background(), AfterOptions{})
	if result.Outcome != OutcomeSuccess {
		t.Fatalf("result = %+v", result)
	}
	if result.Taken.Count("milk") != 1 || result.Taken.Count("cheese") != 1 || result.Taken.Count("apple") != 0 {
		t.Fatalf("taken = %v", result.Taken.Map())
	}
}

func TestConfirmationFlow(t *testing.T) {
	h := newHarness(t, Config{RequireConfirmation: true}, "lactose")
	h.frames.set("milk,bread")
	h.manager.CaptureBefore(context.Background())
	h.setAfter(t, "bread")

	parked := h.manager.CaptureAfter(context.Background(), AfterOptions{})
	if parked.Outcome != OutcomeConfirmationRequired {
		t.Fatalf("outcome = %s", parked.Outcome)
	}
	if h.meals.callCount() != 0 {
		t.Fatal("meal request must wait for confirmation")
	}
	status := h.manager.Status()
	if status.PendingCycleID != parked.CycleID || status.State != StateIdle {
		t.Fatalf("status = %+v", status)
	}

	wrong := h.manager.Confirm(context.Background(), "nope", true)
	if !errors.Is(wrong.Err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", wrong.Err)
	}

	confirmed := h.manager.Confirm(context.Background(), parked.CycleID, true)
	if confirmed.Outcome != OutcomeSuccess {
		t.Fatalf("confirmed = %+v", confirmed)
	}
	if len(h.meals.calls) != 1 || h.meals.calls[0] != "1 milk" {
		t.Fatalf("meal calls = %v", h.meals.calls)
	}
	if len(confirmed.Warnings) != 1 {
		t.Fatalf("warnings = %+v", confirmed.Warnings)
	}
	if h.manager.Status().PendingCycleID != "" {
		t.Fatal("pending confirmation should be cleared")
	}
}

func TestConfirmationRejected(t *testing.T) {
	h := newHarness(t, Config{RequireConfirmation: true}, "lactose")
	h.frames.set("milk")
	h.manager.CaptureBefore(context.Background())
	h.setAfter(t, "")
	parked := h.manager.CaptureAfter(context.Background(), AfterOptions{})

	rejected := h.manager.Confirm(context.Background(), parked.CycleID, false)
	if rejected.Outcome != OutcomeCancelled || rejected.Message != StatusMealsCancelled {
		t.Fatalf("rejected = %+v", rejected)
	}
	if h.meals.callCount() != 0 {
		t.Fatal("meal service must not be called")
	}
	if len(h.observer.cycles) != 1 || h.observer.cycles[0].Outcome != OutcomeCancelled {
		t.Fatalf("observer cycles = %+v", h.observer.cycles)
	}
}

func TestNewCaptureDiscardsPendingConfirmation(t *testing.T) {
	h := newHarness(t, Config{RequireConfirmation: true}, "lactose")
	h.frames.set("milk,bread")
	h.manager.CaptureBefore(context.Background())
	h.setAfter(t, "bread")
	parked := h.manager.CaptureAfter(context.Background(), AfterOptions{})
	if parked.Outcome != OutcomeConfirmationRequired {
		t.Fatalf("outcome = %s", parked.Outcome)
	}

	h.frames.set("bread")
	next := h.manager.CaptureBefore(context.Background())
	if next.Outcome != OutcomeCaptured {
		t.Fatalf("capture before = %+v", next)
	}

	cycles := h.observer.finished()
	if len(cycles) != 1 {
		t.Fatalf("observer cycles = %+v", cycles)
	}
	dropped := cycles[0]
	if dropped.CycleID != parked.CycleID || dropped.Outcome != OutcomeCancelled || dropped.Message != StatusPendingDiscarded {
		t.Fatalf("dropped cycle = %+v", dropped)
	}
	if dropped.Taken.Count("milk") != 1 || len(dropped.Warnings) != 1 {
		t.Fatalf("dropped cycle lost its data: %+v", dropped)
	}
	if h.manager.Status().PendingCycleID != "" {
		t.Fatal("pending confirmation should be cleared")
	}
	if h.meals.callCount() != 0 {
		t.Fatal("meal service must not be called")
	}
}

func TestAcknowledgedSkipsConfirmation(t *testing.T) {
	h := newHarness(t, Config{RequireConfirmation: true}, "lactose")
	h.frames.set("milk")
	h.manager.CaptureBefore(context.Background())
	h.setAfter(t, "")
	result := h.manager.CaptureAfter(context.Background(), AfterOptions{Acknowledged: true})
	if result.Outcome != OutcomeSuccess || len(result.Warnings) != 1 {
		t.Fatalf("result = %+v", result)
	}
}

func TestDuplicateWarningsKept(t *testing.T) {
	h := newHarness(t, Config{}, "peanuts")
	h.frames.set("peanut")
	h.manager.CaptureBefore(context.Background())
	h.setAfter(t, "")
	result := h.manager.CaptureAfter(context.Background(), AfterOptions{})
	if len(result.Warnings) != 2 {
		t.Fatalf("expected direct and table warnings, got %+v", result.Warnings)
	}
}

func TestMealFailureSurfaced(t *testing.T) {
	h := newHarness(t, Config{})
	h.meals.result = meal.Result{
		Kind: meal.KindUnreachable,
		Err:  services.Wrap(services.ErrMealServiceUnreachable, "meal", "generate", "", errors.New("connection refused")),
	}
	h.frames.set("apple")
	h.manager.CaptureBefore(context.Background())
	h.setAfter(t, "")
	result := h.manager.CaptureAfter(context.Background(), AfterOptions{})
	if result.Outcome != OutcomeFailed || result.Success() {
		t.Fatalf("result = %+v", result)
	}
	if result.ErrorKind() != "meal_service_unreachable" || !strings.Contains(result.ErrorMessage(), "connection refused") {
		t.Fatalf("error = %s %q", result.ErrorKind(), result.ErrorMessage())
	}
	if result.Taken.Count("apple") != 1 {
		t.Fatal("diff should still be reported")
	}
	if status := h.manager.Status(); status.BeforeItemsCount != 0 || status.CurrentStatus != StatusMealFailed {
		t.Fatalf("status = %+v", status)
	}
}

func TestDegradedMealIsSuccess(t *testing.T) {
	h := newHarness(t, Config{})
	h.meals.result = meal.Result{Kind: meal.KindDegraded, Text: meal.NothingReturned}
	h.frames.set("apple")
	h.manager.CaptureBefore(context.Background())
	h.setAfter(t, "")
	result := h.manager.CaptureAfter(context.Background(), AfterOptions{})
	if result.Outcome != OutcomeSuccess || result.Meal.Text != meal.NothingReturned {
		t.Fatalf("result = %+v", result)
	}
}

func TestCancelMonitoring(t *testing.T) {
	h := newHarness(t, Config{})
	h.frames.set("apple")
	before := h.manager.CaptureBefore(context.Background())
	result := h.manager.Cancel(context.Background())
	if result.Outcome != OutcomeCancelled || result.CycleID != before.CycleID {
		t.Fatalf("cancel = %+v", result)
	}
	status := h.manager.Status()
	if status.State != StateIdle || status.BeforeItemsCount != 0 || status.CurrentStatus != StatusCaptureCancelled {
		t.Fatalf("status = %+v", status)
	}
	if after := h.manager.CaptureAfter(context.Background(), AfterOptions{}); after.Outcome != OutcomeNothingToCompare {
		t.Fatalf("after cancel = %s", after.Outcome)
	}
}

func TestStatusWhileMonitoring(t *testing.T) {
	h := newHarness(t, Config{})
	h.frames.set("apple,milk")
	h.manager.CaptureBefore(context.Background())
	status := h.manager.Status()
	if status.State != StateMonitoring || status.BeforeItemsCount != 2 || !status.CameraActive {
		t.Fatalf("status = %+v", status)
	}
	if status.CurrentStatus != StatusMonitoring || status.MonitoringSince.IsZero() {
		t.Fatalf("status = %+v", status)
	}
}

func TestManualSuggest(t *testing.T) {
	h := newHarness(t, Config{RequireConfirmation: true}, "gluten")
	delta, err := inventory.NewDelta(map[string]int{"bread": 2})
	if err != nil {
		t.Fatalf("NewDelta: %v", err)
	}
	result := h.manager.Suggest(context.Background(), delta)
	if result.Outcome != OutcomeSuccess || result.Source != SourceManual {
		t.Fatalf("result = %+v", result)
	}
	if len(result.Warnings) != 1 || h.meals.calls[0] != "2 bread" {
		t.Fatalf("warnings=%+v calls=%v", result.Warnings, h.meals.calls)
	}
	if h.manager.State() != StateIdle {
		t.Fatal("manual suggestion must not touch capture state")
	}

	empty := h.manager.Suggest(context.Background(), inventory.Delta{})
	if empty.Outcome != OutcomeNothingTaken || h.meals.callCount() != 1 {
		t.Fatalf("empty suggest = %+v", empty)
	}
}

func TestConcurrentStatusDuringCommands(t *testing.T) {
	h := newHarness(t, Config{})
	h.frames.set("apple,milk")
	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_ = h.manager.Status()
			}
		}
	}()
	for i := 0; i < 20; i++ {
		h.manager.CaptureBefore(context.Background())
		h.manager.CaptureAfter(context.Background(), AfterOptions{})
	}
	close(stop)
	wg.Wait()
	if h.manager.State() != StateIdle {
		t.Fatal("expected idle after cycles")
	}
}
