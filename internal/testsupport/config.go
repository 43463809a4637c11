package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nutriflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The camera reads from a frames directory and outbound services point at
// unroutable addresses until overridden.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.HistoryDB = filepath.Join(base, "state", "history.db")
	cfgVal.Camera.Backend = config.CameraBackendFile
	cfgVal.Camera.FramesDir = filepath.Join(base, "frames")
	cfgVal.Camera.FPS = 50
	cfgVal.Meal.URL = "http://127.0.0.1:1/api/generate"
	cfgVal.Meal.TimeoutSeconds = 2
	cfgVal.Capture.AfterPollIntervalMS = 10
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.Notifications.Topic = ""
	cfgVal.Metrics.Enabled = false

	if err := os.MkdirAll(cfgVal.Camera.FramesDir, 0o755); err != nil {
		t.Fatalf("mkdir frames dir: %v", err)
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithMealURL points the meal client at url.
func WithMealURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Meal.URL = url
	}
}

// WithAPIToken enables bearer authentication on the API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.Token = token
	}
}

// WithConfirmation toggles allergy confirmation.
func WithConfirmation(required bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Capture.RequireAllergyConfirmation = required
	}
}

// WithStubDetector writes a detector script that answers every request with
// labels and configures the command backend to run it.
func WithStubDetector(labels ...string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		quoted := make([]string, len(labels))
		for i, label := range labels {
			quoted[i] = fmt.Sprintf("%q", label)
		}
		script := fmt.Sprintf("#!/bin/sh\nwhile read -r line; do\n  echo '{\"labels\":[%s]}'\ndone\n", strings.Join(quoted, ","))
		target := filepath.Join(binDir, "nutriflow-detect")
		if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
			b.t.Fatalf("write stub detector: %v", err)
		}
		b.cfg.Detector.Backend = config.DetectorBackendCommand
		b.cfg.Detector.Command = target
		b.cfg.Detector.Args = nil
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
