// Command nutriflow runs the fridge capture daemon and talks to it over its
// HTTP API.
//
// "nutriflow daemon" starts the long-running process. The remaining commands
// (capture, status, profile, suggest, history, frame, notify) are thin
// clients of the daemon. "config" and "preflight" work without a daemon.
package main
