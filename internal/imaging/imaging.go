package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultQuality is used when a caller passes a non-positive quality.
const DefaultQuality = 80

// ErrEmpty is returned for zero-length input.
var ErrEmpty = errors.New("empty image data")

// Options bounds the output of ToJPEG. Zero limits mean unbounded.
type Options struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
}

// Result is a JPEG-encoded image with its final dimensions.
type Result struct {
	Data    []byte
	Width   int
	Height  int
	Resized bool
}

// ToJPEG decodes data (JPEG, PNG or WebP), downscales it to fit the limits
// preserving aspect ratio, and returns JPEG bytes. JPEG input that already fits
// is returned unchanged.
func ToJPEG(data []byte, opts Options) (Result, error) {
	if len(data) == 0 {
		return Result{}, ErrEmpty
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("decode image: %w", err)
	}
	bounds := img.Bounds()
	width, height := Fit(bounds.Dx(), bounds.Dy(), opts.MaxWidth, opts.MaxHeight)
	resized := width != bounds.Dx() || height != bounds.Dy()
	if !resized && format == "jpeg" {
		return Result{Data: data, Width: width, Height: height}, nil
	}
	if resized {
		img = Resize(img, width, height)
	}
	encoded, err := EncodeJPEG(img, opts.Quality)
	if err != nil {
		return Result{}, err
	}
	return Result{Data: encoded, Width: width, Height: height, Resized: resized}, nil
}

// Fit returns dimensions no larger than maxWidth x maxHeight with the same
// aspect ratio. Neither dimension drops below one pixel.
func Fit(width, height, maxWidth, maxHeight int) (int, int) {
	w, h := float64(width), float64(height)
	if maxWidth > 0 && w > float64(maxWidth) {
		h = h * float64(maxWidth) / w
		w = float64(maxWidth)
	}
	if maxHeight > 0 && h > float64(maxHeight) {
		w = w * float64(maxHeight) / h
		h = float64(maxHeight)
	}
	return max(int(w), 1), max(int(h), 1)
}

// Resize scales img to exactly width x height.
func Resize(img image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// EncodeJPEG encodes img at quality (1-100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeConfig reports the dimensions of encoded image data.
func DecodeConfig(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("decode image config: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
