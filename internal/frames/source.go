package frames

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"nutriflow/internal/logging"
)

const (
	readErrorBackoff  = 250 * time.Millisecond
	readErrorLogEvery = 30 * time.Second
)

// Source runs the acquisition loop for one Device and holds the newest frame.
type Source struct {
	device  Device
	logger  *slog.Logger
	onFrame func(Frame)

	mu      sync.Mutex
	current *Frame
	running bool
	seq     uint64
}

// SourceOption customizes a Source.
type SourceOption func(*Source)

// WithLogger sets the logger used for acquisition errors.
func WithLogger(logger *slog.Logger) SourceOption {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithFrameHook registers fn to be called after each stored frame.
func WithFrameHook(fn func(Frame)) SourceOption {
	return func(s *Source) { s.onFrame = fn }
}

// NewSource wraps an opened device.
func NewSource(device Device, opts ...SourceOption) *Source {
	s := &Source{device: device, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "frames")
	return s
}

// Run acquires frames until ctx is cancelled. Read failures keep the previous
// frame and are retried after a short pause.
func (s *Source) Run(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	var lastLogged time.Time
	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		frame, err := s.device.ReadFrame(ctx)
		switch {
		case err == nil:
			failures = 0
			s.store(frame)
		case errors.Is(err, ErrNoFrame):
		case ctx.Err() != nil:
			return nil
		default:
			failures++
			if time.Since(lastLogged) >= readErrorLogEvery {
				lastLogged = time.Now()
				logging.WarnWithContext(s.logger, "frame read failed", "frames.read_failed",
					logging.Error(err),
					logging.Int("consecutive_failures", failures),
					logging.String(logging.FieldErrorHint, "check the camera connection or frames directory"),
					logging.String(logging.FieldImpact, "captures use the last good frame"),
				)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(readErrorBackoff):
			}
		}
	}
}

func (s *Source) store(frame Frame) {
	if frame.Timestamp.IsZero() {
		frame.Timestamp = time.Now()
	}
	s.mu.Lock()
	s.seq++
	frame.Seq = s.seq
	s.current = &frame
	s.mu.Unlock()

	if s.onFrame != nil {
		s.onFrame(frame)
	}
}

// Current returns a copy of the newest frame, or nil before the first one.
func (s *Source) Current() *Frame {
	s.mu.Lock()
	frame := s.current
	s.mu.Unlock()
	return frame.Clone()
}

// Active reports whether the loop is running and has produced a frame.
func (s *Source) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && s.current != nil
}

// Close releases the device.
func (s *Source) Close() error {
	if s.device == nil {
		return nil
	}
	return s.device.Close()
}
