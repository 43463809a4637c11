//go:build !gst

package frames

import (
	"log/slog"

	"nutriflow/internal/config"
	"nutriflow/internal/services"
)

// OpenGStreamerDevice reports the camera as unavailable in builds without the
// gst tag.
func OpenGStreamerDevice(cfg config.Camera, _ *slog.Logger) (Device, error) {
	return nil, services.Wrap(services.ErrDeviceUnavailable, "frames", "open gstreamer device",
		"binary built without gstreamer support (rebuild with -tags gst or set camera.backend = \"file\")", nil)
}
