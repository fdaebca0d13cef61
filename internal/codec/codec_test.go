package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/danmuck/bridgectl/internal/protocol"
	"github.com/danmuck/bridgectl/internal/testutil/testlog"
)

func allCodecs(t *testing.T) []Codec {
	t.Helper()
	zj, err := NewZstd(JSON{})
	if err != nil {
		t.Fatalf("zstd json: %v", err)
	}
	zf, err := NewZstd(NewFrame())
	if err != nil {
		t.Fatalf("zstd frame: %v", err)
	}
	t.Cleanup(func() {
		_ = zj.Close()
		_ = zf.Close()
	})
	return []Codec{JSON{}, NewFrame(), zj, zf}
}

func sampleMessages() []protocol.Message {
	req := protocol.NewRequest("req-1", "system.echo", json.RawMessage(`{"text":"hi"}`))
	req.TimestampMS = 1700000000000
	return []protocol.Message{
		req,
		protocol.NewRequest("req-2", "system.ping", nil),
		protocol.NewResult("req-1", json.RawMessage(`{"text":"hi"}`)),
		protocol.NewResult("req-3", nil),
		protocol.NewFailure("req-4", "HANDLER_ERROR", "boom"),
		protocol.NewNotification("evt-1", "host.ready", json.RawMessage(`[1,2,3]`)),
	}
}

func TestRoundTripPreservesKindTargetAndPayload(t *testing.T) {
	testlog.Start(t)
	for _, c := range allCodecs(t) {
		for _, in := range sampleMessages() {
			raw, err := c.Encode(in)
			if err != nil {
				t.Fatalf("%s encode %s: %v", c.Name(), in.ID, err)
			}
			out, err := c.Decode(raw)
			if err != nil {
				t.Fatalf("%s decode %s: %v", c.Name(), in.ID, err)
			}
			if out.ID != in.ID || out.Kind != in.Kind || out.Target() != in.Target() {
				t.Fatalf("%s mismatch: got=%+v want=%+v", c.Name(), out, in)
			}
			if !bytes.Equal(out.Payload, in.Payload) {
				t.Fatalf("%s payload mismatch: got=%s want=%s", c.Name(), out.Payload, in.Payload)
			}
			if (out.Error == nil) != (in.Error == nil) {
				t.Fatalf("%s error presence mismatch", c.Name())
			}
			if in.Error != nil && (*out.Error != *in.Error) {
				t.Fatalf("%s error mismatch: got=%+v want=%+v", c.Name(), out.Error, in.Error)
			}
			if out.TimestampMS != in.TimestampMS {
				t.Fatalf("%s timestamp mismatch: got=%d want=%d", c.Name(), out.TimestampMS, in.TimestampMS)
			}
		}
	}
}

func TestJSONWireShape(t *testing.T) {
	raw, err := JSON{}.Encode(protocol.NewFailure("r1", "NO_HANDLER", "missing"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"id":"r1","kind":"response","error":{"message":"missing","code":"NO_HANDLER"}}`
	if raw != want {
		t.Fatalf("unexpected wire shape:\n got=%s\nwant=%s", raw, want)
	}
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	testlog.Start(t)
	inputs := []string{
		"",
		"not json",
		"null",
		`[1,2]`,
		`{"id":"x","kind":"event"}`,
		`{"kind":"request","operation":"op"}`,
		`{"id":"x","kind":"response","payload":1,"error":{"code":"X","message":"y"}}`,
	}
	for _, raw := range inputs {
		if _, err := (JSON{}).Decode(raw); err == nil {
			t.Fatalf("json decode %q: expected error", raw)
		}
	}
	for _, c := range allCodecs(t)[1:] {
		if _, err := c.Decode("!!not base64!!"); !errors.Is(err, protocol.ErrInvalidMessage) {
			t.Fatalf("%s: expected ErrInvalidMessage, got %v", c.Name(), err)
		}
		junk := base64.StdEncoding.EncodeToString([]byte("short"))
		if _, err := c.Decode(junk); err == nil {
			t.Fatalf("%s: expected error for junk frame", c.Name())
		}
	}
}

func TestDecodeAcceptsBareResponse(t *testing.T) {
	msg, err := JSON{}.Decode(`{"id":"r1","kind":"response"}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Failed() || string(msg.Payload) != "null" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestEncodeRejectsInvalidMessages(t *testing.T) {
	for _, c := range allCodecs(t) {
		if _, err := c.Encode(protocol.Message{ID: "x", Kind: protocol.KindResponse}); !errors.Is(err, protocol.ErrAmbiguousReply) {
			t.Fatalf("%s: expected ErrAmbiguousReply, got %v", c.Name(), err)
		}
	}
	bad := protocol.NewRequest("x", "op", json.RawMessage(`{broken`))
	if _, err := (JSON{}).Encode(bad); err == nil {
		t.Fatalf("expected json encode error for invalid raw payload")
	}
}

func TestTextSafeOutput(t *testing.T) {
	for _, c := range allCodecs(t) {
		raw, err := c.Encode(protocol.NewNotification("n1", "host.ready", json.RawMessage(`"line\nbreak"`)))
		if err != nil {
			t.Fatalf("%s encode: %v", c.Name(), err)
		}
		if strings.ContainsRune(raw, '\n') {
			t.Fatalf("%s output contains raw newline", c.Name())
		}
	}
}

func TestByName(t *testing.T) {
	for name, want := range map[string]string{
		"":           "json",
		"JSON":       "json",
		"frame":      "frame",
		"zstd":       "zstd+json",
		"zstd+frame": "zstd+frame",
	} {
		c, err := ByName(name)
		if err != nil {
			t.Fatalf("ByName(%q): %v", name, err)
		}
		if c.Name() != want {
			t.Fatalf("ByName(%q) = %s want %s", name, c.Name(), want)
		}
	}
	if _, err := ByName("xml"); !errors.Is(err, ErrUnknownCodec) {
		t.Fatalf("expected ErrUnknownCodec, got %v", err)
	}
}
