package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nutriflow/internal/config"
)

// CameraProbe is a snapshot of the configured camera.
type CameraProbe struct {
	Backend  string
	Detected bool
	Device   string
	Card     string
	Frames   int
}

// ProbeCamera inspects the camera without opening it. For V4L2 devices the
// card name comes from sysfs.
func ProbeCamera(cfg config.Camera) CameraProbe {
	probe := CameraProbe{Backend: cfg.Backend}
	if cfg.Backend == config.CameraBackendFile {
		probe.Device = cfg.FramesDir
		probe.Frames = countImages(cfg.FramesDir)
		probe.Detected = probe.Frames > 0
		return probe
	}

	device := strings.TrimSpace(cfg.Device)
	if device == "" {
		device = "/dev/video0"
	}
	probe.Device = device
	info, err := os.Stat(device)
	if err != nil || info.Mode()&os.ModeCharDevice == 0 {
		return probe
	}
	probe.Detected = true
	sysName := filepath.Join("/sys/class/video4linux", filepath.Base(device), "name")
	if data, err := os.ReadFile(sysName); err == nil {
		probe.Card = strings.TrimSpace(string(data))
	}
	return probe
}

// Detail renders a display-friendly summary for status UIs.
func (p CameraProbe) Detail() string {
	if p.Backend == config.CameraBackendFile {
		return fmt.Sprintf("%d image(s) in %s", p.Frames, p.Device)
	}
	if !p.Detected {
		return fmt.Sprintf("No camera at %s", p.Device)
	}
	if p.Card != "" {
		return fmt.Sprintf("%s on %s", p.Card, p.Device)
	}
	return p.Device
}

func countImages(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png", ".webp":
			n++
		}
	}
	return n
}
