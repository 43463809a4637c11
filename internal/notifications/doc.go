// Package notifications pushes capture events to a phone via ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers never need to check whether notifications are enabled. Delivery is
// rate limited to keep a burst of cycles from flooding the topic.
package notifications
