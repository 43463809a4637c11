// Package capture runs the before/after snapshot workflow.
//
// Manager owns one Session. CaptureBefore detects the full fridge and starts
// a poller that keeps the freshest frame while the user takes items out.
// CaptureAfter stops the poller, detects again, diffs the two snapshots,
// checks allergies and asks the meal service for suggestions. When allergy
// warnings need confirmation the cycle parks as pending until Confirm.
//
// Every command returns a Result with an Outcome rather than an error, so the
// HTTP and CLI shells can render it without knowing internal error types.
package capture
