package detector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"nutriflow/internal/config"
	"nutriflow/internal/imaging"
	"nutriflow/internal/services"
)

const defaultTimeout = 20 * time.Second

// Detector maps an image to item labels.
type Detector interface {
	Detect(ctx context.Context, image []byte) ([]string, error)
	Close() error
}

// New builds the backend selected by cfg.Backend.
func New(cfg config.Detector, logger *slog.Logger) (Detector, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case config.DetectorBackendCommand, "":
		return NewCommand(cfg, logger), nil
	case config.DetectorBackendHTTP:
		return NewHTTP(cfg), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "detector", "new", fmt.Sprintf("unsupported detector backend %q", cfg.Backend), nil)
	}
}

func timeoutFor(cfg config.Detector) time.Duration {
	if cfg.TimeoutSeconds > 0 {
		return time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return defaultTimeout
}

func prepare(image []byte, opts imaging.Options) ([]byte, error) {
	if opts.MaxWidth <= 0 && opts.MaxHeight <= 0 {
		return image, nil
	}
	result, err := imaging.ToJPEG(image, opts)
	if err != nil {
		return nil, failed("prepare image", err)
	}
	return result.Data, nil
}

// normalizeLabels lowercases and trims labels, dropping blanks.
func normalizeLabels(raw []string) []string {
	labels := make([]string, 0, len(raw))
	for _, label := range raw {
		if trimmed := strings.ToLower(strings.TrimSpace(label)); trimmed != "" {
			labels = append(labels, trimmed)
		}
	}
	return labels
}

func failed(op string, err error) error {
	return services.Wrap(services.ErrDetectionFailed, "detector", op, "", err)
}
