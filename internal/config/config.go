package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// EnvConfigPath names the environment variable consulted when no --config flag is given.
const EnvConfigPath = "NUTRIFLOW_CONFIG"

type Paths struct {
	StateDir  string `toml:"state_dir"`
	LogDir    string `toml:"log_dir"`
	HistoryDB string `toml:"history_db"`
}

type Camera struct {
	Backend     string `toml:"backend"`
	Device      string `toml:"device"`
	FramesDir   string `toml:"frames_dir"`
	Width       int    `toml:"width"`
	Height      int    `toml:"height"`
	FPS         int    `toml:"fps"`
	JPEGQuality int    `toml:"jpeg_quality"`
}

type Detector struct {
	Backend        string   `toml:"backend"`
	Command        string   `toml:"command"`
	Args           []string `toml:"args"`
	URL            string   `toml:"url"`
	APIKey         string   `toml:"api_key"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	MaxWidth       int      `toml:"max_width"`
	MaxHeight      int      `toml:"max_height"`
}

type Capture struct {
	AfterPollIntervalMS        int  `toml:"after_poll_interval_ms"`
	RequireAllergyConfirmation bool `toml:"require_allergy_confirmation"`
}

type Meal struct {
	URL            string `toml:"url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MealCount      int    `toml:"meal_count"`
	Structured     bool   `toml:"structured"`
}

type Profile struct {
	Name               string   `toml:"name"`
	Age                int      `toml:"age"`
	Allergies          []string `toml:"allergies"`
	PreferredItems     []string `toml:"preferred_items"`
	RiskFactors        []string `toml:"risk_factors"`
	CuisinePreferences []string `toml:"cuisine_preferences"`
}

type Allergens struct {
	TablePath string `toml:"table_path"`
}

type API struct {
	Bind    string `toml:"bind"`
	Token   string `toml:"token"`
	FeedFPS int    `toml:"feed_fps"`
}

type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

type Notifications struct {
	NtfyURL        string `toml:"ntfy_url"`
	Topic          string `toml:"topic"`
	RequestTimeout int    `toml:"request_timeout_seconds"`
	AllergyWarning bool   `toml:"allergy_warning"`
	MealReady      bool   `toml:"meal_ready"`
	MealFailed     bool   `toml:"meal_failed"`
}

type MQTT struct {
	Broker      string `toml:"broker"`
	ClientID    string `toml:"client_id"`
	TopicPrefix string `toml:"topic_prefix"`
	QoS         int    `toml:"qos"`
}

type History struct {
	RetentionDays int `toml:"retention_days"`
}

type Metrics struct {
	Enabled bool `toml:"enabled"`
}

// Config is the fully resolved daemon and CLI configuration.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Camera        Camera        `toml:"camera"`
	Detector      Detector      `toml:"detector"`
	Capture       Capture       `toml:"capture"`
	Meal          Meal          `toml:"meal"`
	Profile       Profile       `toml:"profile"`
	Allergens     Allergens     `toml:"allergens"`
	API           API           `toml:"api"`
	Logging       Logging       `toml:"logging"`
	History       History       `toml:"history"`
	Notifications Notifications `toml:"notifications"`
	MQTT          MQTT          `toml:"mqtt"`
	Metrics       Metrics       `toml:"metrics"`
}

func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load reads the configuration file at path (or the default locations), applies
// defaults and environment fallbacks, and validates the result. It returns the
// resolved path and whether a file existed there.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if strings.TrimSpace(path) == "" {
		if value, ok := os.LookupEnv(EnvConfigPath); ok {
			path = strings.TrimSpace(value)
		}
	}
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("nutriflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, filepath.Dir(c.Paths.HistoryDB)} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath is the daemon's single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "nutriflow.lock")
}

// AfterPollInterval is how often the monitoring poller refreshes the after-frame.
func (c *Config) AfterPollInterval() time.Duration {
	return time.Duration(c.Capture.AfterPollIntervalMS) * time.Millisecond
}

// FrameInterval is the pacing between frames for devices that do not block on hardware.
func (c *Config) FrameInterval() time.Duration {
	if c.Camera.FPS <= 0 {
		return time.Second / defaultCameraFPS
	}
	return time.Second / time.Duration(c.Camera.FPS)
}

// APIBaseURL is the URL CLI commands use to reach the daemon.
func (c *Config) APIBaseURL() string {
	bind := c.API.Bind
	if strings.HasPrefix(bind, ":") {
		bind = "127.0.0.1" + bind
	}
	if strings.HasPrefix(bind, "0.0.0.0:") {
		bind = "127.0.0.1:" + strings.TrimPrefix(bind, "0.0.0.0:")
	}
	return "http://" + bind
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath resolves ~ and relative segments to an absolute path.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes the commented sample configuration to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
