package rpc

import (
	"errors"

	"github.com/danmuck/wirerpc/internal/mailbox"
)

var (
	// ErrSend wraps an I/O failure while writing or flushing a frame.
	ErrSend = errors.New("rpc: send failed")
	// ErrDuplicateToken is a mailbox collision on register.
	ErrDuplicateToken = mailbox.ErrDuplicateToken
	// ErrChannelClosed is returned to a caller whose mailbox closed before a response arrived.
	ErrChannelClosed = errors.New("rpc: response channel closed")
	// ErrConnectionLost wraps the cause when the dispatch loop stops on its own.
	ErrConnectionLost = errors.New("rpc: connection lost")
	// ErrClosed is returned for operations on a closed connection.
	ErrClosed = errors.New("rpc: connection closed")

	ErrNilRequest      = errors.New("rpc: nil request")
	ErrAddressRequired = errors.New("rpc: address required")
)
