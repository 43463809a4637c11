package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeCamera(); err != nil {
		return err
	}
	c.normalizeDetector()
	c.normalizeMeal()
	c.normalizeProfile()
	if err := c.normalizeAllergens(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeLogging()
	c.normalizeNotifications()
	c.normalizeMQTT()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.HistoryDB) == "" {
		c.Paths.HistoryDB = filepath.Join(c.Paths.StateDir, "history.db")
	}
	if c.Paths.HistoryDB, err = expandPath(strings.TrimSpace(c.Paths.HistoryDB)); err != nil {
		return fmt.Errorf("paths.history_db: %w", err)
	}
	return nil
}

func (c *Config) normalizeCamera() error {
	c.Camera.Backend = strings.ToLower(strings.TrimSpace(c.Camera.Backend))
	if c.Camera.Backend == "" {
		c.Camera.Backend = defaultCameraBackend
	}
	c.Camera.Device = strings.TrimSpace(c.Camera.Device)
	if c.Camera.Device == "" {
		c.Camera.Device = defaultCameraDevice
	}
	if strings.TrimSpace(c.Camera.FramesDir) != "" {
		expanded, err := expandPath(strings.TrimSpace(c.Camera.FramesDir))
		if err != nil {
			return fmt.Errorf("camera.frames_dir: %w", err)
		}
		c.Camera.FramesDir = expanded
	}
	if c.Camera.JPEGQuality == 0 {
		c.Camera.JPEGQuality = defaultJPEGQuality
	}
	return nil
}

func (c *Config) normalizeDetector() {
	c.Detector.Backend = strings.ToLower(strings.TrimSpace(c.Detector.Backend))
	if c.Detector.Backend == "" {
		c.Detector.Backend = defaultDetectorBackend
	}
	c.Detector.Command = strings.TrimSpace(c.Detector.Command)
	c.Detector.URL = strings.TrimSpace(c.Detector.URL)
	c.Detector.APIKey = strings.TrimSpace(c.Detector.APIKey)
	if c.Detector.APIKey == "" {
		if value, ok := os.LookupEnv("ROBOFLOW_API_KEY"); ok {
			c.Detector.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeMeal() {
	c.Meal.URL = strings.TrimSpace(c.Meal.URL)
	if value, ok := os.LookupEnv("NUTRIFLOW_MEAL_URL"); ok && c.Meal.URL == defaultMealURL {
		c.Meal.URL = strings.TrimSpace(value)
	}
	if c.Meal.URL == "" {
		c.Meal.URL = defaultMealURL
	}
	c.Meal.Model = strings.TrimSpace(c.Meal.Model)
	if value, ok := os.LookupEnv("NUTRIFLOW_MEAL_MODEL"); ok && c.Meal.Model == defaultMealModel {
		c.Meal.Model = strings.TrimSpace(value)
	}
	if c.Meal.Model == "" {
		c.Meal.Model = defaultMealModel
	}
}

func (c *Config) normalizeProfile() {
	c.Profile.Name = strings.TrimSpace(c.Profile.Name)
	c.Profile.Allergies = trimList(c.Profile.Allergies)
	c.Profile.PreferredItems = trimList(c.Profile.PreferredItems)
	c.Profile.RiskFactors = trimList(c.Profile.RiskFactors)
	c.Profile.CuisinePreferences = trimList(c.Profile.CuisinePreferences)
}

func (c *Config) normalizeAllergens() error {
	path := strings.TrimSpace(c.Allergens.TablePath)
	if path == "" {
		c.Allergens.TablePath = ""
		return nil
	}
	expanded, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("allergens.table_path: %w", err)
	}
	c.Allergens.TablePath = expanded
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		if value, ok := os.LookupEnv("NUTRIFLOW_API_TOKEN"); ok {
			c.API.Token = strings.TrimSpace(value)
		}
	}
	if c.API.FeedFPS == 0 {
		c.API.FeedFPS = defaultFeedFPS
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyURL = strings.TrimRight(strings.TrimSpace(c.Notifications.NtfyURL), "/")
	if c.Notifications.NtfyURL == "" {
		c.Notifications.NtfyURL = defaultNtfyURL
	}
	c.Notifications.Topic = strings.TrimSpace(c.Notifications.Topic)
	if c.Notifications.Topic == "" {
		if value, ok := os.LookupEnv("NTFY_TOPIC"); ok {
			c.Notifications.Topic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout == 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeMQTT() {
	c.MQTT.Broker = strings.TrimSpace(c.MQTT.Broker)
	c.MQTT.ClientID = strings.TrimSpace(c.MQTT.ClientID)
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = defaultMQTTClientID
	}
	c.MQTT.TopicPrefix = strings.Trim(strings.TrimSpace(c.MQTT.TopicPrefix), "/")
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = defaultMQTTTopicPrefix
	}
}

func trimList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
