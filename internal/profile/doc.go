// Package profile holds the user's dietary profile in memory.
//
// The Store is shared between the command surface and the capture pipeline.
// Readers always receive a deep copy and updates merge field by field, so no
// caller can observe a partially applied update.
package profile
