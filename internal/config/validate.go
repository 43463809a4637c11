package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCamera(); err != nil {
		return err
	}
	if err := c.validateDetector(); err != nil {
		return err
	}
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateMeal(); err != nil {
		return err
	}
	if err := c.validateProfile(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.History.RetentionDays < 0 {
		return errors.New("history.retention_days must not be negative")
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateMQTT()
}

func (c *Config) validateCamera() error {
	switch c.Camera.Backend {
	case CameraBackendGStreamer:
		if c.Camera.Device == "" {
			return errors.New("camera.device must be set for the gstreamer backend")
		}
	case CameraBackendFile:
		if c.Camera.FramesDir == "" {
			return errors.New("camera.frames_dir must be set for the file backend")
		}
	default:
		return fmt.Errorf("camera.backend: unsupported value %q (want %q or %q)", c.Camera.Backend, CameraBackendGStreamer, CameraBackendFile)
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return errors.New("camera.width and camera.height must be positive")
	}
	if c.Camera.FPS <= 0 {
		return errors.New("camera.fps must be positive")
	}
	if c.Camera.JPEGQuality < 1 || c.Camera.JPEGQuality > 100 {
		return errors.New("camera.jpeg_quality must be between 1 and 100")
	}
	return nil
}

func (c *Config) validateDetector() error {
	switch c.Detector.Backend {
	case DetectorBackendCommand:
		if c.Detector.Command == "" {
			return errors.New("detector.command must be set for the command backend")
		}
	case DetectorBackendHTTP:
		if err := validateURL("detector.url", c.Detector.URL); err != nil {
			return err
		}
	default:
		return fmt.Errorf("detector.backend: unsupported value %q (want %q or %q)", c.Detector.Backend, DetectorBackendCommand, DetectorBackendHTTP)
	}
	if c.Detector.TimeoutSeconds <= 0 {
		return errors.New("detector.timeout_seconds must be positive")
	}
	if c.Detector.MaxWidth <= 0 || c.Detector.MaxHeight <= 0 {
		return errors.New("detector.max_width and detector.max_height must be positive")
	}
	return nil
}

func (c *Config) validateCapture() error {
	if c.Capture.AfterPollIntervalMS <= 0 {
		return errors.New("capture.after_poll_interval_ms must be positive")
	}
	return nil
}

func (c *Config) validateMeal() error {
	if err := validateURL("meal.url", c.Meal.URL); err != nil {
		return err
	}
	if c.Meal.TimeoutSeconds <= 0 {
		return errors.New("meal.timeout_seconds must be positive")
	}
	if c.Meal.MealCount <= 0 {
		return errors.New("meal.meal_count must be positive")
	}
	return nil
}

func (c *Config) validateProfile() error {
	if c.Profile.Age < 0 {
		return errors.New("profile.age must not be negative")
	}
	return nil
}

func (c *Config) validateAPI() error {
	if !strings.Contains(c.API.Bind, ":") {
		return fmt.Errorf("api.bind must be host:port, got %q", c.API.Bind)
	}
	if c.API.FeedFPS <= 0 {
		return errors.New("api.feed_fps must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must not be negative")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout_seconds must be positive")
	}
	if c.Notifications.Topic != "" {
		return validateURL("notifications.ntfy_url", c.Notifications.NtfyURL)
	}
	return nil
}

func (c *Config) validateMQTT() error {
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return errors.New("mqtt.qos must be 0, 1, or 2")
	}
	return nil
}

func validateURL(key, value string) error {
	if value == "" {
		return fmt.Errorf("%s must be set", key)
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", key, value)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host, got %q", key, value)
	}
	return nil
}
