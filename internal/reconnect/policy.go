// Package reconnect decides what to do when a session's connection closes.
package reconnect

import "github.com/matheus3301/wpphub/internal/conn"

// Action is the outcome of a close decision.
type Action int

const (
	Noop Action = iota
	Retry
	Destroy
	DestroyAndWipe
)

func (a Action) String() string {
	switch a {
	case Retry:
		return "retry"
	case Destroy:
		return "destroy"
	case DestroyAndWipe:
		return "destroy_and_wipe"
	default:
		return "noop"
	}
}

// Signal is what the driver knows when a close event arrives.
type Signal struct {
	Reason        conn.Reason
	StopRequested bool
}

// Decide maps a close signal to an action. Only a logout is terminal; an
// operator stop suppresses every retry; everything else is retried.
func Decide(s Signal) Action {
	switch {
	case s.Reason == conn.ReasonLoggedOut:
		return DestroyAndWipe
	case s.StopRequested:
		return Noop
	case s.Reason == conn.ReasonRestartRequired:
		return Retry
	case s.Reason == conn.ReasonConnectionReplaced:
		return Destroy
	default:
		return Retry
	}
}

// Immediate reports whether a retry for this reason should skip the backoff delay.
func Immediate(r conn.Reason) bool {
	return r == conn.ReasonRestartRequired
}
