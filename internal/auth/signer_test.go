package auth

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/YaganovValera/quote-feed/internal/codec"
)

func TestCredentials_Present(t *testing.T) {
	cases := []struct {
		creds Credentials
		want  bool
	}{
		{Credentials{}, false},
		{Credentials{Key: "k"}, false},
		{Credentials{Secret: "s"}, false},
		{Credentials{Key: "k", Secret: "s"}, true},
	}
	for _, c := range cases {
		if got := c.creds.Present(); got != c.want {
			t.Errorf("%+v.Present() = %v; want %v", c.creds, got, c.want)
		}
	}
}

func TestNewSigner_Validation(t *testing.T) {
	if _, err := NewSigner(Credentials{Secret: "s"}); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("expected ErrEmptyKey, got %v", err)
	}
	if _, err := NewSigner(Credentials{Key: "k"}); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("expected ErrEmptySecret, got %v", err)
	}
}

func TestBuildAuthRequest_FreshNonce(t *testing.T) {
	s, err := NewSigner(Credentials{Key: "k", Secret: "s"})
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	a, err := s.BuildAuthRequest()
	if err != nil {
		t.Fatalf("BuildAuthRequest: %v", err)
	}
	b, err := s.BuildAuthRequest()
	if err != nil {
		t.Fatalf("BuildAuthRequest: %v", err)
	}

	if a.Sign == b.Sign || a.Payload == b.Payload {
		t.Error("two requests must not share nonce or signature")
	}
	for _, req := range []codec.SubscribeRequest{a, b} {
		if len(req.Sign) != 128 {
			t.Errorf("sign length = %d; want 128", len(req.Sign))
		}
		if _, err := hex.DecodeString(req.Sign); err != nil {
			t.Errorf("sign is not hex: %v", err)
		}
		if !strings.HasPrefix(req.Payload, "nonce=") {
			t.Errorf("payload = %q", req.Payload)
		}
		if req.Channel != codec.ChannelAccount || req.Key != "k" || req.Command != codec.CommandSubscribe {
			t.Errorf("unexpected request %+v", req)
		}
		want, _ := Sign("s", req.Payload)
		if req.Sign != want {
			t.Error("signature does not match payload")
		}
	}
}

func TestBuildAuthRequest_DeterministicEntropy(t *testing.T) {
	s := &Signer{
		creds:   Credentials{Key: "k", Secret: "s"},
		entropy: bytes.NewReader(make([]byte, nonceSize)),
	}
	req, err := s.BuildAuthRequest()
	if err != nil {
		t.Fatalf("BuildAuthRequest: %v", err)
	}
	if req.Payload != "nonce=AAAAAAAAAAAAAAAAAAAAAA==" {
		t.Errorf("payload = %q", req.Payload)
	}

	// exhausted entropy source
	if _, err := s.BuildAuthRequest(); err == nil {
		t.Error("expected nonce error when entropy is exhausted")
	}
}

func TestSign_KnownVector(t *testing.T) {
	// RFC 4231 test case 2.
	got, err := Sign("Jefe", "what do ya want for nothing?")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	want := "164b7a7bfcf819e2e395fbe73b56e0a387bd64222e831fd610270cd7ea250554" +
		"9758bf75c05a994a6d034f65f8f0e6fdcaeab1a34d4a6b4b636e070a38bce737"
	if got != want {
		t.Errorf("Sign = %s", got)
	}
	if _, err := Sign("", "x"); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("expected ErrEmptySecret, got %v", err)
	}
}
