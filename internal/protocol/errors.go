package protocol

import "errors"

var (
	// ErrProtocol marks a desynchronized or undecodable stream: bad magic, oversized
	// length, or a body the payload codec rejects. Readers cannot safely continue.
	ErrProtocol = errors.New("protocol: protocol error")
	// ErrConnectionClosed marks a peer close or truncated read at a frame boundary or mid-frame.
	ErrConnectionClosed = errors.New("protocol: connection closed")
)

// IsProtocolError reports whether err belongs to the fatal protocol class.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrProtocol)
}

// IsConnectionClosed reports whether err signals a closed stream.
func IsConnectionClosed(err error) bool {
	return errors.Is(err, ErrConnectionClosed)
}
