package frames

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"nutriflow/internal/config"
	"nutriflow/internal/imaging"
	"nutriflow/internal/services"
)

// FileDevice replays still images from a directory at a fixed rate. Files are
// re-read on every frame so replacing an image on disk changes the scene.
type FileDevice struct {
	dir      string
	interval time.Duration
	opts     imaging.Options
	next     int
	lastRead time.Time
}

// OpenFileDevice validates cfg.FramesDir and returns a device cycling its
// JPEG, PNG and WebP files in name order.
func OpenFileDevice(cfg config.Camera) (*FileDevice, error) {
	dir := strings.TrimSpace(cfg.FramesDir)
	if dir == "" {
		return nil, services.Wrap(services.ErrDeviceUnavailable, "frames", "open file device", "camera.frames_dir is not set", nil)
	}
	files, err := listImages(dir)
	if err != nil {
		return nil, services.Wrap(services.ErrDeviceUnavailable, "frames", "open file device", dir, err)
	}
	if len(files) == 0 {
		return nil, services.Wrap(services.ErrDeviceUnavailable, "frames", "open file device", fmt.Sprintf("no images in %s", dir), nil)
	}
	fps := cfg.FPS
	if fps <= 0 {
		fps = 1
	}
	return &FileDevice{
		dir:      dir,
		interval: time.Second / time.Duration(fps),
		opts:     imaging.Options{MaxWidth: cfg.Width, MaxHeight: cfg.Height, Quality: cfg.JPEGQuality},
	}, nil
}

// ReadFrame waits for the next frame slot and loads the next image.
func (d *FileDevice) ReadFrame(ctx context.Context) (Frame, error) {
	if wait := d.interval - time.Since(d.lastRead); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Frame{}, ctx.Err()
		case <-timer.C:
		}
	}
	d.lastRead = time.Now()

	files, err := listImages(d.dir)
	if err != nil {
		return Frame{}, fmt.Errorf("list frames: %w", err)
	}
	if len(files) == 0 {
		return Frame{}, ErrNoFrame
	}
	path := files[d.next%len(files)]
	d.next = (d.next + 1) % len(files)

	data, err := os.ReadFile(path)
	if err != nil {
		return Frame{}, fmt.Errorf("read frame %s: %w", filepath.Base(path), err)
	}
	converted, err := imaging.ToJPEG(data, d.opts)
	if err != nil {
		return Frame{}, fmt.Errorf("convert frame %s: %w", filepath.Base(path), err)
	}
	return Frame{
		Timestamp: d.lastRead,
		Width:     converted.Width,
		Height:    converted.Height,
		Data:      converted.Data,
	}, nil
}

// Close is a no-op.
func (d *FileDevice) Close() error { return nil }

func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png", ".webp":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
