package stream

import "context"

// Conn is one established socket. Close must be idempotent and must
// unblock a pending ReadFrame.
type Conn interface {
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteFrame(ctx context.Context, data []byte) error
	Close(code int, reason string) error
}

// Dialer opens a new Conn.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Throttler paces REST-bound calls. The socket path never waits on it.
type Throttler interface {
	Wait(ctx context.Context) error
}
