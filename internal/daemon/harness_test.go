package daemon

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"nutriflow/internal/allergy"
	"nutriflow/internal/capture"
	"nutriflow/internal/config"
	"nutriflow/internal/frames"
	"nutriflow/internal/inventory"
	"nutriflow/internal/logging"
	"nutriflow/internal/meal"
	"nutriflow/internal/metrics"
	"nutriflow/internal/notifications"
	"nutriflow/internal/profile"
	"nutriflow/internal/testsupport"
)

// sceneFrames serves a frame whose Data lists the visible labels.
type sceneFrames struct {
	mu    sync.Mutex
	frame *frames.Frame
	seq   uint64
}

func (f *sceneFrames) show(labels string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.frame = &frames.Frame{Seq: f.seq, Timestamp: time.Now(), Width: 4, Height: 4, Data: []byte(labels)}
}

func (f *sceneFrames) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (f *sceneFrames) Current() *frames.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frame.Clone()
}

func (f *sceneFrames) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frame != nil
}

type labelDetector struct{}

func (labelDetector) Detect(_ context.Context, image []byte) ([]string, error) {
	var labels []string
	for _, label := range strings.Split(string(image), ",") {
		if label = strings.TrimSpace(label); label != "" {
			labels = append(labels, label)
		}
	}
	return labels, nil
}

type cannedMeals struct {
	result meal.Result
}

func (m cannedMeals) Suggest(context.Context, inventory.Delta, profile.UserProfile) meal.Result {
	return m.result
}

type testDaemon struct {
	daemon   *Daemon
	cfg      *config.Config
	frames   *sceneFrames
	manager  *capture.Manager
	profiles *profile.Store
	handler  http.Handler
}

func newTestDaemon(t *testing.T, opts ...testsupport.ConfigOption) *testDaemon {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	hub := logging.NewStreamHub(64)
	logger, err := logging.New(logging.Options{Level: "debug", Writer: io.Discard, Stream: hub})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	store := testsupport.MustOpenHistory(t, cfg)
	scene := &sceneFrames{}
	profiles := profile.NewStore(profile.UserProfile{Name: "Sam", Age: 34, Allergies: []string{"dairy"}})
	collector := metrics.New(false)
	notifier := NewNotifier(notifications.NewService(cfg.Notifications), logger)

	manager := capture.NewManager(capture.Config{
		PollInterval:        cfg.AfterPollInterval(),
		RequireConfirmation: cfg.Capture.RequireAllergyConfirmation,
	}, capture.Deps{
		Frames:   scene,
		Detector: labelDetector{},
		Allergy:  allergy.NewMatcher(allergy.DefaultTable()),
		Meals:    cannedMeals{result: meal.Result{Kind: meal.KindSuccess, Text: "Apple milk smoothie"}},
		Profiles: profiles,
		Logger:   logger,
	},
		capture.WithObserver(NewHistoryRecorder(store, logger)),
		capture.WithObserver(notifier),
		capture.WithObserver(collector),
	)
	t.Cleanup(manager.Close)

	d, err := New(cfg, Deps{
		Frames:   scene,
		Capture:  manager,
		Profiles: profiles,
		History:  store,
		Metrics:  collector,
		Notifier: notifier,
		LogHub:   hub,
	}, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	return &testDaemon{
		daemon:   d,
		cfg:      cfg,
		frames:   scene,
		manager:  manager,
		profiles: profiles,
		handler:  d.server.handler(),
	}
}

func (td *testDaemon) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if td.cfg.API.Token != "" {
		req.Header.Set("Authorization", "Bearer "+td.cfg.API.Token)
	}
	w := httptest.NewRecorder()
	td.handler.ServeHTTP(w, req)
	return w
}

// waitForPoll gives the monitoring poller time to copy the current frame.
func (td *testDaemon) waitForPoll() {
	time.Sleep(10 * td.cfg.AfterPollInterval())
}
