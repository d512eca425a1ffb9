package envelope

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/wirerpc/internal/protocol"
	"github.com/fxamacker/cbor/v2"
)

func TestOutboundRequestSurvivesEachCodec(t *testing.T) {
	for _, c := range []Codec{CBOR(), JSON()} {
		out := Outbound{Request: &Request{
			Control: &Control{Token: "abc123-1", ResponseExpected: true},
			Method:  "echo",
			Payload: []byte("ping"),
		}}
		body, err := EncodeOutbound(c, out)
		if err != nil {
			t.Fatalf("%s encode: %v", c.Name(), err)
		}
		got, err := DecodeOutbound(c, body)
		if err != nil {
			t.Fatalf("%s decode: %v", c.Name(), err)
		}
		if got.Kind() != KindRequest {
			t.Fatalf("%s kind=%s", c.Name(), got.Kind())
		}
		if got.Request.Token() != "abc123-1" || !got.Request.Control.ResponseExpected {
			t.Fatalf("%s control mismatch: %+v", c.Name(), got.Request.Control)
		}
		if got.Request.Method != "echo" || !bytes.Equal(got.Request.Payload, []byte("ping")) {
			t.Fatalf("%s request mismatch: %+v", c.Name(), got.Request)
		}
	}
}

func TestDecodeInboundVariants(t *testing.T) {
	c := CBOR()
	body, err := EncodeInbound(c, Inbound{Response: &Response{
		Control: &Control{Token: "t1"},
		Payload: []byte("pong"),
	}})
	if err != nil {
		t.Fatalf("encode response: %v", err)
	}
	in, err := DecodeInbound(c, body)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if in.Kind() != KindResponse || in.Response.Token() != "t1" {
		t.Fatalf("unexpected inbound: kind=%s resp=%+v", in.Kind(), in.Response)
	}

	body, err = EncodeInbound(c, Inbound{Notice: &Notice{Topic: "run.status"}})
	if err != nil {
		t.Fatalf("encode notice: %v", err)
	}
	in, err = DecodeInbound(c, body)
	if err != nil || in.Kind() != KindNotice {
		t.Fatalf("expected notice, got kind=%s err=%v", in.Kind(), err)
	}
}

func TestDecodeInboundUnrecognizedVariantIsUnknown(t *testing.T) {
	// Key 9 stands in for a variant this build does not know about.
	body, err := cbor.Marshal(map[int]any{9: map[int]any{1: "future"}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	in, err := DecodeInbound(CBOR(), body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if in.Kind() != KindUnknown {
		t.Fatalf("expected unknown kind, got %s", in.Kind())
	}
}

func TestDecodeInboundRejectsGarbageAndAmbiguity(t *testing.T) {
	_, err := DecodeInbound(CBOR(), []byte{0xFF, 0x00, 0x13})
	if !protocol.IsProtocolError(err) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	_, err = DecodeInbound(JSON(), []byte(`{"response":{},"notice":{}}`))
	if !errors.Is(err, ErrAmbiguousEnvelope) {
		t.Fatalf("expected ErrAmbiguousEnvelope, got %v", err)
	}
	if _, err := EncodeOutbound(CBOR(), Outbound{}); !errors.Is(err, ErrNilEnvelope) {
		t.Fatalf("expected ErrNilEnvelope, got %v", err)
	}
}

func TestLookupCodec(t *testing.T) {
	if c, err := Lookup(""); err != nil || c.Name() != CodecCBOR {
		t.Fatalf("default codec: %v %v", c, err)
	}
	if c, err := Lookup(" JSON "); err != nil || c.Name() != CodecJSON {
		t.Fatalf("json codec: %v %v", c, err)
	}
	if _, err := Lookup("msgpack"); !errors.Is(err, ErrUnknownCodec) {
		t.Fatalf("expected ErrUnknownCodec, got %v", err)
	}
}
