// Package api defines the HTTP wire types shared by the daemon and the CLI,
// converters from internal models, and a small client for the daemon API.
//
// Command endpoints answer with a CommandResponse envelope carrying an
// explicit success flag, an outcome tag, and either a payload or an error
// description with a stable error_kind. Recognised outcomes are always HTTP
// 200; only malformed requests, authentication failures, and unknown routes
// use 4xx codes.
//
// JSON keys use snake_case to stay compatible with existing fridge
// dashboards that read taken_items, allergy_warnings, and meal_suggestion.
package api
