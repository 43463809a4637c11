// Package history persists finished capture cycles in SQLite so past
// suggestions can be listed and reopened from the CLI and API.
package history
