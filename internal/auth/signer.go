// Package auth builds the signed subscription that opens the private
// account channel.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/YaganovValera/quote-feed/internal/codec"
)

const nonceSize = 16

var (
	ErrEmptyKey    = errors.New("auth: empty api key")
	ErrEmptySecret = errors.New("auth: empty api secret")
)

// Credentials: API key pair. Auth is attempted only when both are set.
type Credentials struct {
	Key    string `mapstructure:"key"`
	Secret string `mapstructure:"secret"`
}

// Present reports whether both key and secret are non-empty.
func (c Credentials) Present() bool { return c.Key != "" && c.Secret != "" }

// Signer produces authenticated subscribe requests with a fresh nonce
// each time.
type Signer struct {
	creds   Credentials
	entropy io.Reader
}

// NewSigner validates creds and returns a Signer backed by crypto/rand.
func NewSigner(creds Credentials) (*Signer, error) {
	if creds.Key == "" {
		return nil, ErrEmptyKey
	}
	if creds.Secret == "" {
		return nil, ErrEmptySecret
	}
	return &Signer{creds: creds, entropy: rand.Reader}, nil
}

// BuildAuthRequest returns {channel:1000, key, payload:"nonce=<b64>", sign}.
func (s *Signer) BuildAuthRequest() (codec.SubscribeRequest, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(s.entropy, nonce); err != nil {
		return codec.SubscribeRequest{}, fmt.Errorf("auth: nonce: %w", err)
	}
	payload := "nonce=" + base64.StdEncoding.EncodeToString(nonce)

	sign, err := Sign(s.creds.Secret, payload)
	if err != nil {
		return codec.SubscribeRequest{}, err
	}
	return codec.NewAuthSubscribe(s.creds.Key, payload, sign), nil
}

// Sign returns hex(HMAC-SHA512(secret, payload)).
func Sign(secret, payload string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil)), nil
}
