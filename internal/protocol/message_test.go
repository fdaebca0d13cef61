package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestMessageValidate(t *testing.T) {
	cases := []struct {
		name string
		msg  Message
		want error
	}{
		{"request ok", NewRequest("r1", "system.ping", json.RawMessage(`{}`)), nil},
		{"request without payload ok", NewRequest("r1", "system.ping", nil), nil},
		{"notification ok", NewNotification("n1", "host.ready", nil), nil},
		{"result ok", NewResult("r1", json.RawMessage(`1`)), nil},
		{"nil result is null", NewResult("r1", nil), nil},
		{"failure ok", NewFailure("r1", "NO_HANDLER", "no handler"), nil},
		{"unknown kind", Message{ID: "x", Kind: "event"}, ErrUnknownKind},
		{"missing id", Message{Kind: KindRequest, Operation: "op"}, ErrMissingID},
		{"request missing operation", Message{ID: "x", Kind: KindRequest}, ErrMissingTarget},
		{"notification missing name", Message{ID: "x", Kind: KindNotification}, ErrMissingTarget},
		{"response with neither", Message{ID: "x", Kind: KindResponse}, ErrAmbiguousReply},
		{
			"response with both",
			Message{ID: "x", Kind: KindResponse, Payload: json.RawMessage(`1`), Error: &ErrorInfo{Code: "X"}},
			ErrAmbiguousReply,
		},
		{
			"response error without code",
			Message{ID: "x", Kind: KindResponse, Error: &ErrorInfo{Message: "boom"}},
			ErrInvalidMessage,
		},
		{
			"request carrying error",
			Message{ID: "x", Kind: KindRequest, Operation: "op", Error: &ErrorInfo{Code: "X"}},
			ErrInvalidMessage,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateInboundFillsOmittedResult(t *testing.T) {
	msg, err := Message{ID: "r1", Kind: KindResponse}.ValidateInbound()
	if err != nil {
		t.Fatalf("bare response: %v", err)
	}
	if string(msg.Payload) != "null" {
		t.Fatalf("payload=%s want null", msg.Payload)
	}
	if err := (Message{ID: "r1", Kind: KindResponse}).Validate(); !errors.Is(err, ErrAmbiguousReply) {
		t.Fatalf("outbound bare response must stay invalid, got %v", err)
	}

	both := Message{ID: "x", Kind: KindResponse, Payload: json.RawMessage(`1`), Error: &ErrorInfo{Code: "X"}}
	if _, err := both.ValidateInbound(); !errors.Is(err, ErrAmbiguousReply) {
		t.Fatalf("expected ErrAmbiguousReply, got %v", err)
	}
	failure, err := NewFailure("r2", "X", "y").ValidateInbound()
	if err != nil || failure.Payload != nil {
		t.Fatalf("failure changed: %+v err=%v", failure, err)
	}
}

func TestMessageTarget(t *testing.T) {
	if got := NewRequest("1", "op", nil).Target(); got != "op" {
		t.Fatalf("request target=%q", got)
	}
	if got := NewNotification("1", "evt", nil).Target(); got != "evt" {
		t.Fatalf("notification target=%q", got)
	}
	if got := NewResult("1", nil).Target(); got != "" {
		t.Fatalf("response target=%q", got)
	}
	if !NewFailure("1", "X", "y").Failed() {
		t.Fatalf("expected failure")
	}
	if NewResult("1", nil).Failed() {
		t.Fatalf("result should not be failed")
	}
}
