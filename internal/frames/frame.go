package frames

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"nutriflow/internal/config"
	"nutriflow/internal/services"
)

// ErrNoFrame is returned by a Device when no new frame is ready yet.
var ErrNoFrame = errors.New("no new frame")

// Frame is one JPEG-encoded camera image.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Data      []byte
}

// Clone returns a deep copy of f.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	clone := *f
	clone.Data = append([]byte(nil), f.Data...)
	return &clone
}

// Device is a frame producer. ReadFrame blocks for at most about one frame
// interval and returns ErrNoFrame when nothing new arrived.
type Device interface {
	ReadFrame(ctx context.Context) (Frame, error)
	Close() error
}

// Open constructs the device selected by cfg.Backend. A device that cannot be
// opened yields an error marked services.ErrDeviceUnavailable.
func Open(cfg config.Camera, logger *slog.Logger) (Device, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case config.CameraBackendFile:
		device, err := OpenFileDevice(cfg)
		if err != nil {
			return nil, err
		}
		return device, nil
	case config.CameraBackendGStreamer, "":
		return OpenGStreamerDevice(cfg, logger)
	default:
		return nil, services.Wrap(services.ErrDeviceUnavailable, "frames", "open", fmt.Sprintf("unsupported camera backend %q", cfg.Backend), nil)
	}
}
