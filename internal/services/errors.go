package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDeviceUnavailable      = errors.New("device unavailable")
	ErrNoFrameAvailable       = errors.New("no frame available")
	ErrDetectionFailed        = errors.New("detection failed")
	ErrMealServiceUnreachable = errors.New("meal service unreachable")
	ErrMealServiceError       = errors.New("meal service error")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrValidation             = errors.New("validation error")
	ErrConfiguration          = errors.New("configuration error")
	ErrNotFound               = errors.New("not found")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker so callers can classify it with errors.Is. The marker
// should be one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrValidation
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns the stable identifier reported to API and CLI callers for err.
// Unknown errors map to "internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDeviceUnavailable):
		return "device_unavailable"
	case errors.Is(err, ErrNoFrameAvailable):
		return "no_frame_available"
	case errors.Is(err, ErrDetectionFailed):
		return "detection_failed"
	case errors.Is(err, ErrMealServiceUnreachable):
		return "meal_service_unreachable"
	case errors.Is(err, ErrMealServiceError):
		return "meal_service_error"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}

// Retryable reports whether re-issuing the same command may succeed.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrNoFrameAvailable),
		errors.Is(err, ErrDetectionFailed),
		errors.Is(err, ErrMealServiceUnreachable),
		errors.Is(err, ErrMealServiceError):
		return true
	default:
		return false
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
