package codec

import (
	"encoding/json"
	"fmt"
)

// CommandSubscribe is the only command this client sends.
const CommandSubscribe = "subscribe"

// SubscribeRequest is an outbound subscription. Channel is either a
// symbol name or a reserved numeric channel. The auth fields are set only
// for the authenticated subscription on ChannelAccount.
type SubscribeRequest struct {
	Command string      `json:"command"`
	Channel interface{} `json:"channel"`
	Key     string      `json:"key,omitempty"`
	Payload string      `json:"payload,omitempty"`
	Sign    string      `json:"sign,omitempty"`
}

// NewSubscribe returns a plain subscribe request for a symbol.
func NewSubscribe(symbol string) SubscribeRequest {
	return SubscribeRequest{Command: CommandSubscribe, Channel: symbol}
}

// NewAuthSubscribe returns the signed subscription on the account channel.
func NewAuthSubscribe(key, payload, sign string) SubscribeRequest {
	return SubscribeRequest{
		Command: CommandSubscribe,
		Channel: ChannelAccount,
		Key:     key,
		Payload: payload,
		Sign:    sign,
	}
}

// Encode serialises a request to a text frame.
func Encode(req SubscribeRequest) ([]byte, error) {
	if req.Command == "" {
		return nil, fmt.Errorf("codec: empty command")
	}
	if req.Channel == nil {
		return nil, fmt.Errorf("codec: empty channel")
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("codec: encode %s: %w", req.Command, err)
	}
	return b, nil
}
