package capture

import (
	"sync"
	"time"

	"nutriflow/internal/allergy"
	"nutriflow/internal/frames"
	"nutriflow/internal/inventory"
	"nutriflow/internal/profile"
)

// pending is a finished diff waiting for the user to confirm or reject the
// meal request.
type pending struct {
	cycleID   string
	startedAt time.Time
	before    inventory.Snapshot
	after     inventory.Snapshot
	taken     inventory.Delta
	warnings  []allergy.Warning
	profile   profile.UserProfile
}

// Session is the shared capture state. Every field is read and written under
// mu, and only for copy-in or copy-out.
type Session struct {
	mu sync.Mutex

	state       State
	cycleID     string
	startedAt   time.Time
	before      inventory.Snapshot
	hasBefore   bool
	latestAfter *frames.Frame
	status      string

	stop     chan struct{}
	stopped  chan struct{}
	awaiting *pending
}

func newSession() *Session {
	return &Session{status: StatusReady}
}

// snapshot is a consistent copy of the session taken under the lock.
type snapshot struct {
	state       State
	cycleID     string
	startedAt   time.Time
	before      inventory.Snapshot
	hasBefore   bool
	latestAfter *frames.Frame
	status      string
	pendingID   string
}

func (s *Session) read() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := snapshot{
		state:       s.state,
		cycleID:     s.cycleID,
		startedAt:   s.startedAt,
		before:      append(inventory.Snapshot(nil), s.before...),
		hasBefore:   s.hasBefore,
		latestAfter: s.latestAfter,
		status:      s.status,
	}
	if s.awaiting != nil {
		snap.pendingID = s.awaiting.cycleID
	}
	return snap
}

func (s *Session) setStatus(status string) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// setLatestAfter stores frame only while monitoring. It reports whether the
// poller should keep running.
func (s *Session) setLatestAfter(frame *frames.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateMonitoring {
		return false
	}
	if frame != nil {
		s.latestAfter = frame
	}
	return true
}

func (s *Session) monitoring() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateMonitoring
}

// beginMonitoring records the before snapshot and installs the poller
// channels. Any pending confirmation is discarded and returned.
func (s *Session) beginMonitoring(cycleID string, startedAt time.Time, before inventory.Snapshot, status string) (chan struct{}, chan struct{}, *pending) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := s.awaiting
	s.state = StateMonitoring
	s.cycleID = cycleID
	s.startedAt = startedAt
	s.before = append(inventory.Snapshot(nil), before...)
	s.hasBefore = true
	s.latestAfter = nil
	s.awaiting = nil
	s.status = status
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	return s.stop, s.stopped, dropped
}

// endMonitoring flips the state to idle and signals the poller. The returned
// channel closes once the poller has exited; it is nil when no poller ran.
func (s *Session) endMonitoring() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateIdle
	if s.stop == nil {
		return nil
	}
	close(s.stop)
	stopped := s.stopped
	s.stop = nil
	s.stopped = nil
	return stopped
}

func (s *Session) park(p *pending) {
	s.mu.Lock()
	s.awaiting = p
	s.mu.Unlock()
}

// takePending removes and returns the pending confirmation when its id
// matches cycleID. An empty cycleID matches any pending confirmation.
func (s *Session) takePending(cycleID string) *pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.awaiting == nil {
		return nil
	}
	if cycleID != "" && s.awaiting.cycleID != cycleID {
		return nil
	}
	p := s.awaiting
	s.awaiting = nil
	return p
}

// reset clears the cycle data after a completed or cancelled cycle. The
// pending confirmation is kept unless dropPending is set.
func (s *Session) reset(status string, dropPending bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycleID = ""
	s.startedAt = time.Time{}
	s.before = nil
	s.hasBefore = false
	s.latestAfter = nil
	s.status = status
	if dropPending {
		s.awaiting = nil
	}
}
