package config

const (
	defaultConfigPath           = "~/.config/nutriflow/config.toml"
	defaultStateDir             = "~/.local/share/nutriflow"
	defaultCameraBackend        = "gstreamer"
	defaultCameraDevice         = "/dev/video0"
	defaultCameraWidth          = 640
	defaultCameraHeight         = 480
	defaultCameraFPS            = 30
	defaultJPEGQuality          = 80
	defaultDetectorBackend      = "command"
	defaultDetectorCommand      = "nutriflow-detect"
	defaultDetectorTimeout      = 20
	defaultDetectorMaxDimension = 1280
	defaultAfterPollIntervalMS  = 500
	defaultMealURL              = "http://localhost:11434/api/generate"
	defaultMealModel            = "llama3"
	defaultMealTimeoutSeconds   = 30
	defaultMealCount            = 3
	defaultAPIBind              = "127.0.0.1:8420"
	defaultFeedFPS              = 15
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 14
	defaultHistoryRetentionDays = 90
	defaultNtfyURL              = "https://ntfy.sh"
	defaultNotifyTimeout        = 10
	defaultMQTTTopicPrefix      = "nutriflow"
	defaultMQTTClientID         = "nutriflow"
	defaultMQTTQoS              = 1
)

const (
	CameraBackendFile      = "file"
	CameraBackendGStreamer = "gstreamer"

	DetectorBackendCommand = "command"
	DetectorBackendHTTP    = "http"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
		},
		Camera: Camera{
			Backend:     defaultCameraBackend,
			Device:      defaultCameraDevice,
			Width:       defaultCameraWidth,
			Height:      defaultCameraHeight,
			FPS:         defaultCameraFPS,
			JPEGQuality: defaultJPEGQuality,
		},
		Detector: Detector{
			Backend:        defaultDetectorBackend,
			Command:        defaultDetectorCommand,
			TimeoutSeconds: defaultDetectorTimeout,
			MaxWidth:       defaultDetectorMaxDimension,
			MaxHeight:      defaultDetectorMaxDimension,
		},
		Capture: Capture{
			AfterPollIntervalMS:        defaultAfterPollIntervalMS,
			RequireAllergyConfirmation: true,
		},
		Meal: Meal{
			URL:            defaultMealURL,
			Model:          defaultMealModel,
			TimeoutSeconds: defaultMealTimeoutSeconds,
			MealCount:      defaultMealCount,
			Structured:     true,
		},
		Profile: Profile{
			Name:               "John",
			Age:                30,
			Allergies:          []string{"peanuts", "lactose"},
			PreferredItems:     []string{"low-carb", "high-protein", "vegetables"},
			RiskFactors:        []string{"heart disease", "diabetes"},
			CuisinePreferences: []string{"Italian", "Mexican", "Indian"},
		},
		API: API{
			Bind:    defaultAPIBind,
			FeedFPS: defaultFeedFPS,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		History: History{
			RetentionDays: defaultHistoryRetentionDays,
		},
		Notifications: Notifications{
			NtfyURL:        defaultNtfyURL,
			RequestTimeout: defaultNotifyTimeout,
			AllergyWarning: true,
			MealReady:      true,
			MealFailed:     true,
		},
		MQTT: MQTT{
			ClientID:    defaultMQTTClientID,
			TopicPrefix: defaultMQTTTopicPrefix,
			QoS:         defaultMQTTQoS,
		},
		Metrics: Metrics{
			Enabled: true,
		},
	}
}
