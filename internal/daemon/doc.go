// Package daemon runs the long-lived NutriFlow process.
//
// It owns the single-instance flock, runs the frame source, HTTP API, camera
// hotplug monitor, and history maintenance under one errgroup, and adapts
// capture cycle events to the history store and phone notifications.
//
// Keep orchestration here: capture semantics live in internal/capture and
// wire types in internal/api.
package daemon
