//go:build gst

package frames

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"nutriflow/internal/config"
	"nutriflow/internal/logging"
	"nutriflow/internal/services"
)

const gstReadTimeout = time.Second

var gstInitOnce sync.Once

// GStreamerDevice reads JPEG frames from a V4L2 camera through
// v4l2src ! videoconvert ! videoscale ! capsfilter ! jpegenc ! appsink.
type GStreamerDevice struct {
	pipeline *gst.Pipeline
	frames   chan Frame
	width    int
	height   int
	dropped  atomic.Uint64
	logger   *slog.Logger
	closed   atomic.Bool
}

// OpenGStreamerDevice builds and starts the capture pipeline for cfg.Device.
func OpenGStreamerDevice(cfg config.Camera, logger *slog.Logger) (Device, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if _, err := os.Stat(cfg.Device); err != nil {
		return nil, services.Wrap(services.ErrDeviceUnavailable, "frames", "open gstreamer device", cfg.Device, err)
	}
	gstInitOnce.Do(func() { gst.Init(nil) })

	d := &GStreamerDevice{
		frames: make(chan Frame, 1),
		width:  cfg.Width,
		height: cfg.Height,
		logger: logging.NewComponentLogger(logger, "frames"),
	}
	if err := d.build(cfg); err != nil {
		return nil, services.Wrap(services.ErrDeviceUnavailable, "frames", "build pipeline", cfg.Device, err)
	}
	if err := d.pipeline.SetState(gst.StatePlaying); err != nil {
		d.pipeline.SetState(gst.StateNull)
		return nil, services.Wrap(services.ErrDeviceUnavailable, "frames", "start pipeline", cfg.Device, err)
	}
	d.logger.Info("camera pipeline started",
		logging.String("device", cfg.Device),
		logging.Int("width", cfg.Width),
		logging.Int("height", cfg.Height),
		logging.Int("fps", cfg.FPS),
	)
	return d, nil
}

func (d *GStreamerDevice) build(cfg config.Camera) error {
	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}
	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return fmt.Errorf("create v4l2src: %w", err)
	}
	src.SetProperty("device", cfg.Device)

	convert, err := gst.NewElement("videoconvert")
	if err != nil {
		return fmt.Errorf("create videoconvert: %w", err)
	}
	scale, err := gst.NewElement("videoscale")
	if err != nil {
		return fmt.Errorf("create videoscale: %w", err)
	}
	rate, err := gst.NewElement("videorate")
	if err != nil {
		return fmt.Errorf("create videorate: %w", err)
	}
	rate.SetProperty("drop-only", true)

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return fmt.Errorf("create capsfilter: %w", err)
	}
	caps := fmt.Sprintf("video/x-raw,width=%d,height=%d", cfg.Width, cfg.Height)
	if cfg.FPS > 0 {
		caps += fmt.Sprintf(",framerate=%d/1", cfg.FPS)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(caps))

	encoder, err := gst.NewElement("jpegenc")
	if err != nil {
		return fmt.Errorf("create jpegenc: %w", err)
	}
	if cfg.JPEGQuality > 0 {
		encoder.SetProperty("quality", cfg.JPEGQuality)
	}

	sink, err := app.NewAppSink()
	if err != nil {
		return fmt.Errorf("create appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1)
	sink.SetProperty("drop", true)
	sink.SetCallbacks(&app.SinkCallbacks{NewSampleFunc: d.onSample})

	if err := pipeline.AddMany(src, convert, scale, rate, capsfilter, encoder, sink.Element); err != nil {
		return fmt.Errorf("add elements: %w", err)
	}
	if err := gst.ElementLinkMany(src, convert, scale, rate, capsfilter, encoder, sink.Element); err != nil {
		return fmt.Errorf("link elements: %w", err)
	}
	d.pipeline = pipeline
	return nil
}

func (d *GStreamerDevice) onSample(sink *app.Sink) gst.FlowReturn {
	if d.closed.Load() {
		return gst.FlowEOS
	}
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}
	mapped := buffer.Map(gst.MapRead)
	data := mapped.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		return gst.FlowOK
	}
	frameData := make([]byte, len(data))
	copy(frameData, data)
	buffer.Unmap()

	frame := Frame{Timestamp: time.Now(), Width: d.width, Height: d.height, Data: frameData}
	// Keep only the newest frame.
	select {
	case d.frames <- frame:
	default:
		select {
		case <-d.frames:
			d.dropped.Add(1)
		default:
		}
		select {
		case d.frames <- frame:
		default:
		}
	}
	return gst.FlowOK
}

// ReadFrame waits up to one second for the next frame. Pipeline errors posted
// on the bus are returned as read errors.
func (d *GStreamerDevice) ReadFrame(ctx context.Context) (Frame, error) {
	timer := time.NewTimer(gstReadTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case frame := <-d.frames:
		return frame, nil
	case <-timer.C:
	}
	if err := d.busError(); err != nil {
		return Frame{}, err
	}
	return Frame{}, ErrNoFrame
}

func (d *GStreamerDevice) busError() error {
	bus := d.pipeline.GetPipelineBus()
	for {
		msg := bus.TimedPop(0)
		if msg == nil {
			return nil
		}
		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			return fmt.Errorf("gstreamer: %s (%s)", gerr.Error(), gerr.DebugString())
		case gst.MessageEOS:
			return fmt.Errorf("gstreamer: end of stream")
		}
	}
}

// Close stops the pipeline.
func (d *GStreamerDevice) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	if d.dropped.Load() > 0 {
		d.logger.Debug("camera pipeline stopped", logging.Int64("dropped_frames", int64(d.dropped.Load())))
	}
	return d.pipeline.SetState(gst.StateNull)
}
