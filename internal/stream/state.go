package stream

import "fmt"

// State is the connection state machine:
//
//	Disconnected → Connecting → Open → (AuthPending | Subscribed) → Closed
//
// AuthPending exists only when credentials are configured. Closed is
// terminal; a new attempt needs a new Manager.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateAuthPending
	StateSubscribed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateAuthPending:
		return "auth_pending"
	case StateSubscribed:
		return "subscribed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Active reports whether frames are being consumed in this state.
func (s State) Active() bool {
	return s == StateAuthPending || s == StateSubscribed
}
