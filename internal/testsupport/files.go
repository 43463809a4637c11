package testsupport

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
)

// JPEG encodes a solid w x h image.
func JPEG(t testing.TB, w, h int) []byte {
	t.Helper()

	if w <= 0 {
		w = 1
	}
	if h <= 0 {
		h = 1
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fill := color.RGBA{R: 0x42, G: 0x80, B: 0xc0, A: 0xff}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// WriteJPEG writes a solid w x h JPEG to path, creating parent directories.
func WriteJPEG(t testing.TB, path string, w, h int) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, JPEG(t, w, h), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
