package stream

import (
	"errors"
	"fmt"
)

// ErrAlreadyStarted: Open was called on a Manager that left Disconnected.
var ErrAlreadyStarted = errors.New("stream: manager already started")

// ErrNotOpen: Run was called before a successful Open.
var ErrNotOpen = errors.New("stream: connection is not open")

// ProtocolError is an error frame reported by the exchange.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("stream: exchange error: %s", e.Message)
}

// AuthError: the authenticated subscription could not be built or sent.
// Public subscriptions stay active.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("stream: auth failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ConnectionError ends a connection instance: dial, write or read failure,
// or a close initiated by the peer.
type ConnectionError struct {
	Op     string // dial | subscribe | auth | read
	Code   int    // websocket close code, 0 if none
	Reason string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("stream: %s: closed with code %d (%s): %v", e.Op, e.Code, e.Reason, e.Err)
	}
	return fmt.Sprintf("stream: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
