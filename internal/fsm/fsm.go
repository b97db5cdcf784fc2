package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle      State = "idle"
	StateStarting  State = "starting"
	StateListening State = "listening"
	StateBackoff   State = "backoff"
	StateFailed    State = "failed"
)

const (
	EventStart     Event = "start"
	EventArmed     Event = "armed"
	EventUtterance Event = "utterance"
	EventError     Event = "error"
	EventRetry     Event = "retry"
	EventStop      Event = "stop"
	EventCancel    Event = "cancel"
	EventFail      Event = "fail"
	EventReset     Event = "reset"
)

// Transition returns the state reached from current on event.
// Fail, stop, and cancel are accepted from every known state.
func Transition(current State, event Event) (State, error) {
	if !known(current) {
		return current, fmt.Errorf("unknown state %q", current)
	}

	switch event {
	case EventFail:
		return StateFailed, nil
	case EventStop, EventCancel:
		return StateIdle, nil
	}

	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateStarting, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateStarting:
		switch event {
		case EventArmed:
			return StateListening, nil
		case EventError:
			return StateBackoff, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateListening:
		switch event {
		case EventUtterance:
			return StateStarting, nil
		case EventError:
			return StateBackoff, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateBackoff:
		switch event {
		case EventRetry:
			return StateStarting, nil
		case EventError:
			return StateBackoff, nil
		default:
			return current, invalidTransition(current, event)
		}
	default: // StateFailed
		switch event {
		case EventReset:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	}
}

// Active reports whether a session is requested in state s.
func Active(s State) bool {
	return s == StateStarting || s == StateListening || s == StateBackoff
}

func known(s State) bool {
	switch s {
	case StateIdle, StateStarting, StateListening, StateBackoff, StateFailed:
		return true
	default:
		return false
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
