// Package preflight checks the filesystem paths and external services the
// nutriflow daemon depends on.
//
// The CLI "preflight" command runs RunAll and prints a table. The "status"
// command uses ProbeCamera and the individual checks to describe the
// environment when the daemon is not reachable.
//
// Optional integrations are skipped when they are not configured.
package preflight
