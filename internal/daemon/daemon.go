package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"nutriflow/internal/api"
	"nutriflow/internal/capture"
	"nutriflow/internal/config"
	"nutriflow/internal/events"
	"nutriflow/internal/frames"
	"nutriflow/internal/history"
	"nutriflow/internal/logging"
	"nutriflow/internal/metrics"
	"nutriflow/internal/notifications"
	"nutriflow/internal/profile"
)

const historyPruneInterval = 24 * time.Hour

// FrameSource is the acquisition loop plus its current-frame slot.
type FrameSource interface {
	Run(ctx context.Context) error
	Current() *frames.Frame
	Active() bool
}

// Deps are the components the daemon serves. Metrics, Emitter, Notifier, and
// LogHub are optional.
type Deps struct {
	Frames   FrameSource
	Capture  *capture.Manager
	Profiles *profile.Store
	History  *history.Store
	Metrics  *metrics.Collector
	Emitter  *events.Emitter
	Notifier *Notifier
	LogHub   *logging.StreamHub
	LogPath  string
}

// Daemon serves the capture pipeline and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	deps   Deps

	lockPath string
	lock     *flock.Flock

	startedAt time.Time
	running   atomic.Bool
	server    *apiServer
	monitor   *netlinkMonitor

	mu   sync.Mutex
	addr net.Addr
}

// New validates deps and acquires the daemon lock.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Frames == nil || deps.Capture == nil || deps.Profiles == nil || deps.History == nil {
		return nil, errors.New("daemon requires config, frame source, capture manager, profile store, and history store")
	}
	lockPath := cfg.LockPath()
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another nutriflow daemon instance is already running (lock %s)", lockPath)
	}

	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		deps:      deps,
		lockPath:  lockPath,
		lock:      lock,
		startedAt: time.Now(),
	}
	d.server = newAPIServer(d, logger)
	d.monitor = newNetlinkMonitor(cfg, logger, d.cameraChanged)
	return d, nil
}

// Run serves until ctx is cancelled or a component fails.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	defer d.running.Store(false)

	listener, err := net.Listen("tcp", d.cfg.API.Bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	d.mu.Lock()
	d.addr = listener.Addr()
	d.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.deps.Frames.Run(gctx)
	})
	g.Go(func() error {
		return d.server.serve(gctx, listener)
	})
	g.Go(func() error {
		return d.monitor.Run(gctx)
	})
	g.Go(func() error {
		d.maintainHistory(gctx)
		return nil
	})

	d.logger.Info("nutriflow daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("address", listener.Addr().String()),
		logging.String("lock", d.lockPath),
		logging.Int("pid", os.Getpid()),
	)
	err = g.Wait()
	d.deps.Capture.Close()
	d.logger.Info("nutriflow daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
	return err
}

// Addr is the API listener address once Run has started listening.
func (d *Daemon) Addr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addr
}

// Running reports whether Run is active.
func (d *Daemon) Running() bool { return d.running.Load() }

// Close waits for in-flight notifications and releases the lock. The
// caller owns the history store and frame device.
func (d *Daemon) Close() error {
	if d.deps.Notifier != nil {
		d.deps.Notifier.Wait()
	}
	if d.deps.Emitter != nil {
		d.deps.Emitter.Close()
	}
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon.unlock_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
			logging.String(logging.FieldImpact, "next start may report a running instance"),
		)
		return err
	}
	return nil
}

// Info describes the running process for the status endpoint.
func (d *Daemon) Info() api.DaemonInfo {
	info := api.DaemonInfo{
		PID:          os.Getpid(),
		StartedAt:    d.startedAt.UTC().Format(time.RFC3339),
		LogPath:      d.deps.LogPath,
		HistoryPath:  d.deps.History.Path(),
		LockFilePath: d.lockPath,
		Metrics:      d.deps.Metrics != nil,
	}
	if d.deps.Emitter != nil {
		info.MQTT = d.deps.Emitter.Enabled()
	}
	return info
}

// TestNotification sends a test message through the configured notifier.
func (d *Daemon) TestNotification(ctx context.Context) error {
	if d.deps.Notifier == nil {
		return errors.New("notifications are not configured")
	}
	return d.deps.Notifier.service.Publish(ctx, notifications.EventTest, nil)
}

func (d *Daemon) cameraChanged(_ context.Context, _ string, present bool) {
	if d.deps.Metrics != nil {
		d.deps.Metrics.SetCameraActive(present)
	}
}

func (d *Daemon) maintainHistory(ctx context.Context) {
	days := d.cfg.History.RetentionDays
	if days <= 0 {
		return
	}
	prune := func() {
		cutoff := time.Now().AddDate(0, 0, -days)
		removed, err := d.deps.History.Prune(ctx, cutoff)
		if err != nil {
			if ctx.Err() == nil {
				logging.WarnWithContext(d.logger, "history prune failed", "history.prune_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check paths.history_db permissions"),
					logging.String(logging.FieldImpact, "old cycles stay in the history database"),
				)
			}
			return
		}
		if removed > 0 {
			d.logger.Info("history pruned", logging.Int64("removed", removed), logging.Int("retention_days", days))
		}
	}

	prune()
	ticker := time.NewTicker(historyPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
