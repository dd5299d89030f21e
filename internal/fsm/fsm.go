// Package fsm defines the connection lifecycle of a controller session.
package fsm

import "fmt"

type State string

type Event string

const (
	StateDisconnected State = "disconnected"
	StateConnected    State = "connected"
)

const (
	EventOpen  Event = "open"
	EventClose Event = "close"
	EventDrop  Event = "drop"
)

// Transition returns the state reached from current on event.
// Close is accepted from every known state so callers may close repeatedly.
func Transition(current State, event Event) (State, error) {
	switch current {
	case StateDisconnected:
		switch event {
		case EventOpen:
			return StateConnected, nil
		case EventClose:
			return StateDisconnected, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateConnected:
		switch event {
		case EventClose, EventDrop:
			return StateDisconnected, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
