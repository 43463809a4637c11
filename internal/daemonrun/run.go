package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"nutriflow/internal/allergy"
	"nutriflow/internal/capture"
	"nutriflow/internal/config"
	"nutriflow/internal/daemon"
	"nutriflow/internal/detector"
	"nutriflow/internal/events"
	"nutriflow/internal/frames"
	"nutriflow/internal/history"
	"nutriflow/internal/logging"
	"nutriflow/internal/meal"
	"nutriflow/internal/metrics"
	"nutriflow/internal/notifications"
	"nutriflow/internal/profile"
	"nutriflow/internal/services"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the nutriflow daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("nutriflow-%s.log", runID))
	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logHub := logging.NewStreamHub(4096)
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
		Stream:           logHub,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update nutriflow.log link: %v\n", err)
	}
	logging.PruneRunLogs(logger, cfg.Paths.LogDir, "nutriflow-*.log", logPath, cfg.Logging.RetentionDays)

	device, err := frames.Open(cfg.Camera, logger)
	if err != nil {
		logging.ErrorWithContext(logger, "camera unavailable", "camera.open_failed",
			logging.Error(err),
			logging.String("backend", cfg.Camera.Backend),
			logging.String(logging.FieldErrorHint, "check camera.device or camera.frames_dir"),
			logging.String(logging.FieldImpact, "daemon cannot start"),
		)
		return err
	}

	var collector *metrics.Collector
	sourceOpts := []frames.SourceOption{frames.WithLogger(logger)}
	if cfg.Metrics.Enabled {
		collector = metrics.New(true)
		sourceOpts = append(sourceOpts, frames.WithFrameHook(collector.ObserveFrame))
	}
	source := frames.NewSource(device, sourceOpts...)
	defer source.Close()

	det, err := detector.New(cfg.Detector, logger)
	if err != nil {
		return err
	}
	defer det.Close()

	table, err := loadAllergenTable(cfg.Allergens.TablePath)
	if err != nil {
		return err
	}

	store, err := history.Open(cfg.Paths.HistoryDB)
	if err != nil {
		logger.Error("open history store", logging.Error(err))
		return err
	}
	defer store.Close()

	profiles := profile.NewStore(profile.FromConfig(cfg.Profile))
	mealClient := meal.NewClient(meal.Config{
		URL:            cfg.Meal.URL,
		Model:          cfg.Meal.Model,
		TimeoutSeconds: cfg.Meal.TimeoutSeconds,
		MealCount:      cfg.Meal.MealCount,
		Structured:     cfg.Meal.Structured,
	})

	notifier := daemon.NewNotifier(notifications.NewService(cfg.Notifications), logger)
	emitter := events.New(cfg.MQTT, logger)
	if err := emitter.Connect(signalCtx, cfg.MQTT); err != nil {
		logging.WarnWithContext(logger, "mqtt connect failed", "events.connect_failed",
			logging.Error(err),
			logging.String("broker", cfg.MQTT.Broker),
			logging.String(logging.FieldErrorHint, "check mqtt.broker"),
			logging.String(logging.FieldImpact, "cycle events not published"),
		)
	}

	managerOpts := []capture.Option{
		capture.WithObserver(daemon.NewHistoryRecorder(store, logger)),
		capture.WithObserver(notifier),
	}
	if emitter.Enabled() {
		managerOpts = append(managerOpts, capture.WithObserver(emitter))
	}
	if collector != nil {
		managerOpts = append(managerOpts, capture.WithObserver(collector))
	}
	manager := capture.NewManager(capture.Config{
		PollInterval:        cfg.AfterPollInterval(),
		RequireConfirmation: cfg.Capture.RequireAllergyConfirmation,
	}, capture.Deps{
		Frames:   source,
		Detector: det,
		Allergy:  allergy.NewMatcher(table),
		Meals:    mealClient,
		Profiles: profiles,
		Logger:   logger,
	}, managerOpts...)

	d, err := daemon.New(cfg, daemon.Deps{
		Frames:   source,
		Capture:  manager,
		Profiles: profiles,
		History:  store,
		Metrics:  collector,
		Emitter:  emitter,
		Notifier: notifier,
		LogHub:   logHub,
		LogPath:  logPath,
	}, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	logger.Info("component snapshot",
		logging.String(logging.FieldEventType, "component_snapshot"),
		logging.String("camera_backend", cfg.Camera.Backend),
		logging.String("detector_backend", cfg.Detector.Backend),
		logging.String("meal_url", cfg.Meal.URL),
		logging.Bool("confirmation_required", cfg.Capture.RequireAllergyConfirmation),
		logging.Bool("notifications", strings.TrimSpace(cfg.Notifications.Topic) != ""),
		logging.Bool("mqtt", emitter.Enabled()),
		logging.Bool("metrics", collector != nil),
	)

	if err := d.Run(signalCtx); err != nil && !errors.Is(err, context.Canceled) {
		logging.ErrorWithContext(logger, "daemon stopped with error", "daemon.run_failed",
			logging.Error(err),
			logging.String("error_kind", services.Kind(err)),
			logging.String(logging.FieldErrorHint, "see preceding log lines"),
		)
		return err
	}
	logger.Info("nutriflow daemon shutting down")
	return nil
}

func loadAllergenTable(path string) (allergy.Table, error) {
	if strings.TrimSpace(path) == "" {
		return allergy.DefaultTable(), nil
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return allergy.Table{}, err
	}
	return allergy.LoadTable(expanded)
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "nutriflow.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}
