package preflight

import (
	"context"
	"strings"

	"nutriflow/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckCamera(cfg.Camera),
		CheckDetector(ctx, cfg.Detector),
		CheckMealService(ctx, cfg.Meal.URL, cfg.Meal.Model),
	}
	if strings.TrimSpace(cfg.Notifications.Topic) != "" {
		results = append(results, CheckNtfy(ctx, cfg.Notifications.NtfyURL))
	}
	if strings.TrimSpace(cfg.MQTT.Broker) != "" {
		results = append(results, CheckMQTT(ctx, cfg.MQTT.Broker))
	}
	return results
}

// Failed counts results that did not pass.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.Passed {
			n++
		}
	}
	return n
}
