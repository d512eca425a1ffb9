package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"runtime"
	"testing"

	"github.com/danmuck/wirerpc/internal/protocol"
)

func TestReadWriteFrameRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		[]byte("ping"),
		bytes.Repeat([]byte{0xAB}, 70000),
	}
	for _, body := range cases {
		var buf bytes.Buffer
		if err := WriteFrame(&buf, body); err != nil {
			t.Fatalf("write frame: %v", err)
		}
		if buf.Len() != HeaderLen+len(body) {
			t.Fatalf("unexpected frame size=%d body=%d", buf.Len(), len(body))
		}
		out, err := ReadFrame(&buf, DefaultLimits())
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if !bytes.Equal(out, body) {
			t.Fatalf("body mismatch len=%d want=%d", len(out), len(body))
		}
	}
}

func TestEncodeLayoutIsLittleEndian(t *testing.T) {
	buf, err := Encode([]byte{1, 2, 3})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []byte{'W', 3, 0, 0, 0, 1, 2, 3}
	if !bytes.Equal(buf, want) {
		t.Fatalf("layout mismatch: got=%v want=%v", buf, want)
	}
}

func TestReadHeaderBadMagicDoesNotConsumeLength(t *testing.T) {
	r := bytes.NewReader([]byte{'X', 0xFF, 0xFF, 0xFF, 0xFF})
	_, err := ReadHeader(r)
	if !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
	if !protocol.IsProtocolError(err) {
		t.Fatalf("bad magic must classify as protocol error: %v", err)
	}
	if r.Len() != 4 {
		t.Fatalf("length bytes were consumed: remaining=%d", r.Len())
	}
}

func TestReadHeaderEOFIsConnectionClosed(t *testing.T) {
	_, err := ReadHeader(bytes.NewReader(nil))
	if !errors.Is(err, ErrConnectionClosed) || !protocol.IsConnectionClosed(err) {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}
	_, err = ReadHeader(bytes.NewReader([]byte{'W', 1, 0}))
	if !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed for short length, got %v", err)
	}
}

func TestReadBodyShortReadIsConnectionClosed(t *testing.T) {
	hdr := make([]byte, HeaderLen)
	hdr[0] = Magic
	binary.LittleEndian.PutUint32(hdr[1:], 10)
	r := io.MultiReader(bytes.NewReader(hdr), bytes.NewReader([]byte("short")))
	_, err := ReadFrame(r, DefaultLimits())
	if !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestReadBodyRespectsLimit(t *testing.T) {
	_, err := ReadBody(bytes.NewReader(make([]byte, 32)), 32, Limits{MaxPayloadBytes: 16})
	if !errors.Is(err, ErrPayloadTooLarge) || !protocol.IsProtocolError(err) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	body, err := ReadBody(bytes.NewReader(make([]byte, 32)), 32, Limits{})
	if err != nil || len(body) != 32 {
		t.Fatalf("unbounded read failed: len=%d err=%v", len(body), err)
	}
}

func TestReadBodyUnboundedHeaderDoesNotPreallocate(t *testing.T) {
	const claimed = 512 << 20
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	_, err := ReadBody(bytes.NewReader([]byte("only a few bytes")), claimed, Limits{})
	runtime.ReadMemStats(&after)
	if !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}
	if grew := after.TotalAlloc - before.TotalAlloc; grew > 8<<20 {
		t.Fatalf("read of a truncated %d-byte body allocated %d bytes", claimed, grew)
	}
}

func TestReadHeaderPropagatesTransportErrors(t *testing.T) {
	boom := errors.New("boom")
	_, err := ReadHeader(errReader{err: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }
