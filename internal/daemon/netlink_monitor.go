package daemon

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"nutriflow/internal/config"
	"nutriflow/internal/logging"
)

// cameraHandler is told when the configured camera appears or disappears.
type cameraHandler func(ctx context.Context, device string, present bool)

// netlinkMonitor listens for udev netlink events on the video4linux
// subsystem and reports hotplug of the configured camera.
type netlinkMonitor struct {
	logger  *slog.Logger
	handler cameraHandler
	device  string

	mu      sync.Mutex
	running bool
}

// newNetlinkMonitor returns nil unless the camera is a real device.
func newNetlinkMonitor(cfg *config.Config, logger *slog.Logger, handler cameraHandler) *netlinkMonitor {
	if cfg == nil || cfg.Camera.Backend != config.CameraBackendGStreamer {
		return nil
	}
	device := strings.TrimSpace(cfg.Camera.Device)
	if device == "" {
		return nil
	}
	return &netlinkMonitor{
		logger:  logging.NewComponentLogger(logger, "camera-monitor"),
		handler: handler,
		device:  device,
	}
}

// Run listens until ctx is done. A netlink connection failure is logged and
// treated as a clean exit.
func (m *netlinkMonitor) Run(ctx context.Context) error {
	if m == nil {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(m.logger, "failed to connect to netlink socket; camera hotplug not tracked", "camera.netlink_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
			logging.String(logging.FieldImpact, "camera unplug and replug are not reported"),
		)
		return nil
	}
	defer conn.Close()

	m.setRunning(true)
	defer m.setRunning(false)

	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, m.buildMatcher())
	defer close(monitorQuit)

	m.logger.Info("camera monitor started",
		logging.String(logging.FieldEventType, "camera_monitor_started"),
		logging.String("device", m.device),
	)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("camera monitor stopped", logging.String(logging.FieldEventType, "camera_monitor_stopped"))
			return nil
		case uevent := <-queue:
			m.handleEvent(ctx, uevent)
		case err := <-errs:
			logging.WarnWithContext(m.logger, "netlink monitor error", "camera.netlink_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "camera hotplug events may be missed"),
			)
		}
	}
}

func (m *netlinkMonitor) setRunning(v bool) {
	m.mu.Lock()
	m.running = v
	m.mu.Unlock()
}

// Running reports whether the monitor is listening.
func (m *netlinkMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// buildMatcher matches SUBSYSTEM=video4linux with ACTION add or remove.
func (m *netlinkMonitor) buildMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "video4linux",
		},
	})
	return rules
}

func (m *netlinkMonitor) handleEvent(ctx context.Context, uevent netlink.UEvent) {
	devname := extractDeviceName(uevent)
	if devname == "" {
		m.logger.Debug("ignoring event without device name",
			logging.String("action", string(uevent.Action)),
			logging.String("kobj", uevent.KObj),
		)
		return
	}
	if devname != m.device {
		m.logger.Debug("ignoring event for non-configured device",
			logging.String("device", devname),
			logging.String("configured_device", m.device),
		)
		return
	}

	present := uevent.Action == netlink.ADD
	if present {
		m.logger.Info("camera connected",
			logging.String(logging.FieldEventType, "camera_connected"),
			logging.String("device", devname),
		)
	} else {
		logging.WarnWithContext(m.logger, "camera disconnected", "camera.disconnected",
			logging.String("device", devname),
			logging.String(logging.FieldErrorHint, "reconnect the camera and restart the daemon"),
			logging.String(logging.FieldImpact, "captures use the last good frame"),
		)
	}
	if m.handler != nil {
		m.handler(ctx, devname, present)
	}
}

// extractDeviceName gets the device path from a uevent.
func extractDeviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		if !strings.HasPrefix(devname, "/") {
			devname = "/dev/" + devname
		}
		return devname
	}

	// DEVPATH looks like /devices/pci.../video4linux/video0
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return "/dev/" + parts[len(parts)-1]
}
