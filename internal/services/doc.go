// Package services defines the error taxonomy and context helpers shared by the
// capture pipeline, its external integrations, and the daemon API.
//
// Components tag failures with one of the exported markers through Wrap so the
// command surface can report a stable error kind (Kind) without knowing which
// component produced the error. Context helpers stamp cycle identifiers,
// command names, and correlation IDs for structured logging.
package services
