// Package logging assembles the structured slog loggers used by the daemon
// and CLI.
//
// It owns the console and JSON handlers, level and output plumbing, log file
// retention, and context helpers that tag lines with capture cycle IDs,
// command names, and correlation IDs. Warnings should go through
// WarnWithContext so they always carry event_type, error_hint, and impact.
package logging
