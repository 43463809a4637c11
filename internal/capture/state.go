package capture

import (
	"fmt"

	"nutriflow/internal/services"
)

// State is the persistent capture state. Analysis happens synchronously inside
// CaptureAfter and never appears as a state.
type State int

const (
	StateIdle State = iota
	StateMonitoring
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMonitoring:
		return "monitoring"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = StateIdle
	case "monitoring":
		*s = StateMonitoring
	default:
		return fmt.Errorf("unknown capture state %q", text)
	}
	return nil
}

// Command names an operation on the command surface.
type Command string

const (
	CommandCaptureBefore Command = "capture_before"
	CommandCaptureAfter  Command = "capture_after"
	CommandConfirm       Command = "confirm"
	CommandCancel        Command = "cancel"
	// CommandSuggest is the manual suggestion path; it never changes state.
	CommandSuggest Command = "suggest"
)

// transitions lists every legal (state, command) pair and its target state.
// capture_after from idle is accepted so a late or repeated call reports the
// best available data instead of failing.
var transitions = map[State]map[Command]State{
	StateIdle: {
		CommandCaptureBefore: StateMonitoring,
		CommandCaptureAfter:  StateIdle,
		CommandConfirm:       StateIdle,
		CommandCancel:        StateIdle,
	},
	StateMonitoring: {
		CommandCaptureAfter: StateIdle,
		CommandCancel:       StateIdle,
	},
}

// Next returns the state reached by applying cmd in from, or an
// ErrInvalidTransition error.
func Next(from State, cmd Command) (State, error) {
	if to, ok := transitions[from][cmd]; ok {
		return to, nil
	}
	return from, services.Wrap(services.ErrInvalidTransition, "capture", string(cmd),
		fmt.Sprintf("not allowed while %s", from), nil)
}

// Allowed reports whether cmd is legal in state s.
func Allowed(s State, cmd Command) bool {
	_, ok := transitions[s][cmd]
	return ok
}
