// Package codec decodes Poloniex push-API frames into typed messages and
// encodes outbound subscription requests.
package codec

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Reserved channel ids.
const (
	ChannelAccount   = 1000
	ChannelTicker    = 1002
	ChannelHeartbeat = 1010
)

// Kind discriminates decoded message families.
type Kind int

const (
	KindEmpty Kind = iota
	KindError
	KindAccount
	KindTicker
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindError:
		return "error"
	case KindAccount:
		return "account"
	case KindTicker:
		return "ticker"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Account-notification statuses. Only AccountAuthenticated has a meaning;
// AccountNotice marks frames whose second element is not a number.
const (
	AccountAuthenticated = 1
	AccountNotice        = -1
)

// TickerUpdate is one best bid/ask record resolved to a configured symbol.
type TickerUpdate struct {
	Symbol string
	Bid    decimal.Decimal
	Ask    decimal.Decimal
}

// Message is a decoded inbound frame. Only the fields of its Kind are set.
type Message struct {
	Kind Kind

	// KindError
	ErrorText string

	// KindAccount
	AccountStatus int

	// KindTicker; Updates is empty for heartbeat-only frames.
	Sequence int64
	Updates  []TickerUpdate
}

var (
	// ErrUnknownChannel: the frame references a channel that is not in
	// the configured symbol table.
	ErrUnknownChannel = errors.New("codec: unknown channel")
	// ErrUnknownFamily: the leading discriminator is not recognised.
	ErrUnknownFamily = errors.New("codec: unknown message family")
	// ErrMalformed: the frame is not valid JSON or has the wrong shape.
	ErrMalformed = errors.New("codec: malformed frame")
)

const maxFrameInError = 256

// DecodeError describes a frame that could not be turned into a Message.
type DecodeError struct {
	Reason string
	Frame  string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("codec: %s: %v (frame=%q)", e.Reason, e.Err, e.Frame)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErr(raw []byte, reason string, err error) *DecodeError {
	frame := raw
	if len(frame) > maxFrameInError {
		frame = frame[:maxFrameInError]
	}
	return &DecodeError{Reason: reason, Frame: string(frame), Err: err}
}
