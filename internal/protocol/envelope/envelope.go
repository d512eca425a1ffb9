// Package envelope defines the tagged unions carried inside frames and the
// payload codecs that turn them into frame bodies.
package envelope

import (
	"errors"
	"fmt"

	"github.com/danmuck/wirerpc/internal/protocol"
)

var (
	ErrAmbiguousEnvelope = fmt.Errorf("envelope: more than one variant populated: %w", protocol.ErrProtocol)
	ErrNilEnvelope       = errors.New("envelope: nil payload")
)

// Kind names the populated variant of an envelope.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindRequest
	KindResponse
	KindNotice
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindNotice:
		return "notice"
	default:
		return "unknown"
	}
}

// Control is the correlation metadata attached to requests and responses.
type Control struct {
	Token            string `cbor:"1,keyasint,omitempty" json:"token,omitempty"`
	ResponseExpected bool   `cbor:"2,keyasint,omitempty" json:"response_expected,omitempty"`
}

// Request is the client->peer payload.
type Request struct {
	Control *Control `cbor:"1,keyasint,omitempty" json:"control,omitempty"`
	Method  string   `cbor:"2,keyasint,omitempty" json:"method,omitempty"`
	Payload []byte   `cbor:"3,keyasint,omitempty" json:"payload,omitempty"`
}

// Token returns the correlation token or "" when no control is attached.
func (r *Request) Token() string {
	if r == nil || r.Control == nil {
		return ""
	}
	return r.Control.Token
}

// Response is the peer->client answer to one Request.
type Response struct {
	Control *Control `cbor:"1,keyasint,omitempty" json:"control,omitempty"`
	Payload []byte   `cbor:"2,keyasint,omitempty" json:"payload,omitempty"`
	Error   string   `cbor:"3,keyasint,omitempty" json:"error,omitempty"`
}

func (r *Response) Token() string {
	if r == nil || r.Control == nil {
		return ""
	}
	return r.Control.Token
}

// Notice is a peer-initiated message that answers no request.
type Notice struct {
	Topic   string `cbor:"1,keyasint,omitempty" json:"topic,omitempty"`
	Payload []byte `cbor:"2,keyasint,omitempty" json:"payload,omitempty"`
}

// Outbound is the client->peer union. Request is the only variant.
type Outbound struct {
	Request *Request `cbor:"1,keyasint,omitempty" json:"request,omitempty"`
}

func (o Outbound) Kind() Kind {
	if o.Request != nil {
		return KindRequest
	}
	return KindUnknown
}

// Inbound is the peer->client union. Variants added by newer peers decode as KindUnknown.
type Inbound struct {
	Response *Response `cbor:"1,keyasint,omitempty" json:"response,omitempty"`
	Notice   *Notice   `cbor:"2,keyasint,omitempty" json:"notice,omitempty"`
}

func (in Inbound) Kind() Kind {
	switch {
	case in.Response != nil && in.Notice != nil:
		return KindUnknown
	case in.Response != nil:
		return KindResponse
	case in.Notice != nil:
		return KindNotice
	default:
		return KindUnknown
	}
}

func (in Inbound) validate() error {
	if in.Response != nil && in.Notice != nil {
		return ErrAmbiguousEnvelope
	}
	return nil
}

// EncodeOutbound marshals one outbound envelope into a frame body.
func EncodeOutbound(c Codec, out Outbound) ([]byte, error) {
	if out.Request == nil {
		return nil, ErrNilEnvelope
	}
	b, err := c.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("envelope: encode outbound (%s): %w", c.Name(), err)
	}
	return b, nil
}

// DecodeOutbound is the peer-side inverse of EncodeOutbound.
func DecodeOutbound(c Codec, body []byte) (Outbound, error) {
	var out Outbound
	if err := c.Unmarshal(body, &out); err != nil {
		return Outbound{}, fmt.Errorf("%w: decode outbound (%s): %w", protocol.ErrProtocol, c.Name(), err)
	}
	return out, nil
}

// EncodeInbound marshals one inbound envelope into a frame body.
func EncodeInbound(c Codec, in Inbound) ([]byte, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	b, err := c.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("envelope: encode inbound (%s): %w", c.Name(), err)
	}
	return b, nil
}

// DecodeInbound decodes a frame body into an inbound envelope. Any failure is a protocol error.
func DecodeInbound(c Codec, body []byte) (Inbound, error) {
	var in Inbound
	if err := c.Unmarshal(body, &in); err != nil {
		return Inbound{}, fmt.Errorf("%w: decode inbound (%s): %w", protocol.ErrProtocol, c.Name(), err)
	}
	if err := in.validate(); err != nil {
		return Inbound{}, err
	}
	return in, nil
}
