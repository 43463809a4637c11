// Package config loads, normalizes, and validates NutriFlow configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// ROBOFLOW_API_KEY and NUTRIFLOW_API_TOKEN. The Config type centralizes every
// knob the daemon and CLI need: camera and detector backends, the capture poll
// interval, the meal service endpoint, the seed user profile, and the optional
// notification, MQTT, and metrics integrations.
package config
