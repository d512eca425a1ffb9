package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/danmuck/wirerpc/internal/protocol"
)

const (
	// Magic is the sentinel byte that opens every frame.
	Magic byte = 'W'
	// HeaderLen is magic (1) + little-endian body length (4).
	HeaderLen = 5

	preallocLimit = 64 * 1024
)

var (
	ErrBadMagic         = fmt.Errorf("frame: bad magic: %w", protocol.ErrProtocol)
	ErrPayloadTooLarge  = fmt.Errorf("frame: payload too large: %w", protocol.ErrProtocol)
	ErrConnectionClosed = fmt.Errorf("frame: %w", protocol.ErrConnectionClosed)
)

// Header is the fixed wire header.
type Header struct {
	Magic  byte
	Length uint32
}

// Limits constrains frame decode memory use.
type Limits struct {
	// MaxPayloadBytes rejects longer bodies on read. Zero leaves only the 32-bit bound.
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 64 * 1024 * 1024,
	}
}

// Encode returns magic, length, and body as one contiguous buffer.
func Encode(body []byte) ([]byte, error) {
	if uint64(len(body)) > math.MaxUint32 {
		return nil, ErrPayloadTooLarge
	}
	buf := make([]byte, HeaderLen+len(body))
	buf[0] = Magic
	binary.LittleEndian.PutUint32(buf[1:HeaderLen], uint32(len(body)))
	copy(buf[HeaderLen:], body)
	return buf, nil
}

// WriteFrame writes one frame with a single Write call.
func WriteFrame(w io.Writer, body []byte) error {
	buf, err := Encode(body)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// ReadHeader reads the magic byte, validates it, and only then reads the length.
func ReadHeader(r io.Reader) (Header, error) {
	var magic [1]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return Header{}, closedOr(err)
	}
	if magic[0] != Magic {
		return Header{}, fmt.Errorf("%w: got=0x%02x want=0x%02x", ErrBadMagic, magic[0], Magic)
	}
	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return Header{}, closedOr(err)
	}
	return Header{
		Magic:  magic[0],
		Length: binary.LittleEndian.Uint32(length[:]),
	}, nil
}

// ReadBody reads exactly length bytes. Bodies above preallocLimit are buffered
// as they arrive, so a header alone never commits the full length in memory.
func ReadBody(r io.Reader, length uint32, limits Limits) ([]byte, error) {
	if limits.MaxPayloadBytes > 0 && length > limits.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: length=%d max=%d", ErrPayloadTooLarge, length, limits.MaxPayloadBytes)
	}
	if length <= preallocLimit {
		body := make([]byte, length)
		if length == 0 {
			return body, nil
		}
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, closedOr(err)
		}
		return body, nil
	}

	var buf bytes.Buffer
	buf.Grow(preallocLimit)
	if _, err := io.CopyN(&buf, r, int64(length)); err != nil {
		return nil, closedOr(err)
	}
	return buf.Bytes(), nil
}

// ReadFrame reads one complete frame and returns its body.
func ReadFrame(r io.Reader, limits Limits) ([]byte, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	return ReadBody(r, h.Length, limits)
}

func closedOr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrConnectionClosed
	}
	return err
}
