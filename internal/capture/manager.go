package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"nutriflow/internal/logging"
	"nutriflow/internal/services"
)

const defaultPollInterval = 500 * time.Millisecond

// Config holds the capture tunables.
type Config struct {
	// PollInterval is how often the monitoring poller copies the current frame.
	PollInterval time.Duration
	// RequireConfirmation parks cycles with allergy warnings until Confirm.
	RequireConfirmation bool
}

// Deps are the collaborators used by Manager.
type Deps struct {
	Frames   FrameReader
	Detector Detector
	Allergy  AllergyChecker
	Meals    MealSuggester
	Profiles ProfileReader
	Logger   *slog.Logger
}

// Manager coordinates capture commands over a single Session.
type Manager struct {
	cfg      Config
	frames   FrameReader
	detector Detector
	allergy  AllergyChecker
	meals    MealSuggester
	profiles ProfileReader
	logger   *slog.Logger

	observers []Observer
	now       func() time.Time
	newID     func() string

	// cmdMu serializes commands. It may be held across detection and the meal
	// request; session.mu never is.
	cmdMu   sync.Mutex
	session *Session
	pollers sync.WaitGroup
}

// Option customizes a Manager.
type Option func(*Manager)

// WithObserver adds an observer notified of cycle and state events.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observers = append(m.observers, o)
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator overrides cycle id generation.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// NewManager builds a Manager in the idle state.
func NewManager(cfg Config, deps Deps, opts ...Option) *Manager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:      cfg,
		frames:   deps.Frames,
		detector: deps.Detector,
		allergy:  deps.Allergy,
		meals:    deps.Meals,
		profiles: deps.Profiles,
		logger:   logging.NewComponentLogger(logger, "capture"),
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
		session:  newSession(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CaptureBefore detects the full fridge and starts monitoring.
func (m *Manager) CaptureBefore(ctx context.Context) Result {
	m.cmdMu.Lock()
	defer m.cmdMu.Unlock()

	started := m.now()
	result := Result{Command: CommandCaptureBefore, Source: SourceCapture, StartedAt: started}
	snap := m.session.read()
	if _, err := Next(snap.state, CommandCaptureBefore); err != nil {
		return m.fail(result, err, "A capture is already in progress")
	}

	cycleID := m.newID()
	result.CycleID = cycleID
	ctx = services.WithCycleID(services.WithCommand(ctx, string(CommandCaptureBefore)), cycleID)
	logger := logging.WithContext(ctx, m.logger)

	frame := m.frames.Current()
	if frame == nil {
		m.session.setStatus(StatusNoFrame)
		return m.fail(result, services.Wrap(services.ErrNoFrameAvailable, "capture", "capture_before", "camera has not produced a frame", nil), StatusNoFrame)
	}
	labels, err := m.detect(ctx, PhaseBefore, frame.Data)
	if err != nil {
		m.session.setStatus(StatusDetectionFailed)
		logging.WarnWithContext(logger, "before detection failed", "capture.detection_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the detector command or service"),
			logging.String(logging.FieldImpact, "capture did not start"),
		)
		return m.fail(result, err, StatusDetectionFailed)
	}

	stop, stopped, dropped := m.session.beginMonitoring(cycleID, started, labels, StatusMonitoring)
	m.pollers.Add(1)
	go m.poll(stop, stopped)
	if dropped != nil {
		m.discardPending(ctx, dropped)
	}

	logger.Info("before snapshot captured",
		logging.Int("items", len(labels)),
		logging.Strings("labels", labels),
		logging.Int64("frame_seq", int64(frame.Seq)),
	)
	result.Outcome = OutcomeCaptured
	result.Before = labels
	result.Message = statusCapturedBefore(len(labels))
	result.FinishedAt = m.now()
	m.stateChanged(ctx)
	return result
}

// poll copies the current frame into the session until stop closes or the
// session leaves monitoring.
func (m *Manager) poll(stop <-chan struct{}, stopped chan<- struct{}) {
	defer m.pollers.Done()
	defer close(stopped)
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		if !m.session.setLatestAfter(m.frames.Current()) {
			return
		}
	}
}

// Cancel abandons the monitoring window or a pending confirmation.
func (m *Manager) Cancel(ctx context.Context) Result {
	m.cmdMu.Lock()
	defer m.cmdMu.Unlock()

	snap := m.session.read()
	result := Result{
		Command:   CommandCancel,
		Source:    SourceCapture,
		CycleID:   snap.cycleID,
		Before:    snap.before,
		StartedAt: m.now(),
	}
	if _, err := Next(snap.state, CommandCancel); err != nil {
		return m.fail(result, err, "Nothing to cancel")
	}
	if stopped := m.session.endMonitoring(); stopped != nil {
		<-stopped
	}
	if p := m.session.takePending(""); p != nil && result.CycleID == "" {
		result.CycleID = p.cycleID
		result.Before = p.before
		result.After = p.after
		result.Taken = p.taken
		result.Warnings = p.warnings
		result.StartedAt = p.startedAt
	}
	m.session.reset(StatusCaptureCancelled, true)

	result.Outcome = OutcomeCancelled
	result.Message = StatusCaptureCancelled
	result.FinishedAt = m.now()
	if result.CycleID != "" {
		ctx = services.WithCycleID(ctx, result.CycleID)
		logging.WithContext(ctx, m.logger).Info("capture cancelled")
		m.cycleFinished(ctx, result)
	}
	m.stateChanged(ctx)
	return result
}

// Close stops a running poller and waits for it.
func (m *Manager) Close() {
	if stopped := m.session.endMonitoring(); stopped != nil {
		<-stopped
	}
	m.pollers.Wait()
}

func (m *Manager) detect(ctx context.Context, phase Phase, image []byte) ([]string, error) {
	start := m.now()
	labels, err := m.detector.Detect(ctx, image)
	elapsed := m.now().Sub(start)
	if err != nil && !errors.Is(err, services.ErrDetectionFailed) {
		err = services.Wrap(services.ErrDetectionFailed, "capture", string(phase)+" detection", "", err)
	}
	for _, o := range m.observers {
		o.DetectionFinished(phase, len(labels), elapsed, err)
	}
	return labels, err
}

func (m *Manager) fail(result Result, err error, message string) Result {
	result.Outcome = OutcomeFailed
	result.Err = err
	result.Message = message
	result.FinishedAt = m.now()
	return result
}

// discardPending closes out a cycle that was still waiting on confirmation
// when a new capture started. It is recorded as cancelled.
func (m *Manager) discardPending(ctx context.Context, p *pending) {
	ctx = services.WithCycleID(services.WithCommand(ctx, string(CommandCancel)), p.cycleID)
	logging.WithContext(ctx, m.logger).Info("pending confirmation discarded by new capture")
	m.cycleFinished(ctx, Result{
		CycleID:    p.cycleID,
		Command:    CommandCancel,
		Source:     SourceCapture,
		Outcome:    OutcomeCancelled,
		Message:    StatusPendingDiscarded,
		Before:     p.before,
		After:      p.after,
		Taken:      p.taken,
		Warnings:   p.warnings,
		StartedAt:  p.startedAt,
		FinishedAt: m.now(),
	})
}

func (m *Manager) cycleFinished(ctx context.Context, r Result) {
	for _, o := range m.observers {
		o.CycleFinished(ctx, r)
	}
}

func (m *Manager) stateChanged(ctx context.Context) {
	if len(m.observers) == 0 {
		return
	}
	status := m.Status()
	for _, o := range m.observers {
		o.StateChanged(ctx, status)
	}
}
