package rpc

import (
	"errors"
	"fmt"

	"github.com/danmuck/wirerpc/internal/observability"
	"github.com/danmuck/wirerpc/internal/protocol"
	"github.com/danmuck/wirerpc/internal/protocol/envelope"
	"github.com/danmuck/wirerpc/internal/protocol/frame"
)

// dispatch is the only reader of the stream. Malformed messages are dropped;
// framing and stream failures end the loop and the connection.
func (c *Conn) dispatch() {
	defer c.wg.Done()
	c.log.Debug().Str("codec", c.codec.Name()).Msg("rpc.Conn dispatch started")
	for {
		body, err := frame.ReadFrame(c.reader, c.cfg.Limits)
		if err != nil {
			c.stop(err)
			return
		}
		observability.RecordFrame(c.cfg.Name, "in", len(body))

		in, err := envelope.DecodeInbound(c.codec, body)
		if err != nil {
			c.stop(err)
			return
		}
		c.route(in)
	}
}

func (c *Conn) route(in envelope.Inbound) {
	kind := in.Kind()
	observability.RecordInbound(c.cfg.Name, kind.String())

	switch kind {
	case envelope.KindResponse:
		resp := in.Response
		if resp.Control == nil {
			c.log.Warn().Msg("rpc.Conn response without control dropped")
			return
		}
		token := resp.Control.Token
		if !c.mailboxes.Deliver(token, resp) {
			observability.RecordUnmatched(c.cfg.Name)
			c.log.Warn().Str("token", token).Msg("rpc.Conn unmatched response dropped")
			return
		}
		c.log.Debug().Str("token", token).Msg("rpc.Conn response delivered")
	default:
		if c.fallback != nil {
			c.fallback(in)
			return
		}
		c.log.Info().Str("kind", kind.String()).Msg("rpc.Conn unhandled inbound envelope")
	}
}

// stop records the cause, closes the stream, and fails every pending call. Safe from any goroutine.
func (c *Conn) stop(cause error) {
	c.stopOnce.Do(func() {
		reason, err := c.classify(cause)
		c.errMu.Lock()
		c.err = err
		c.errMu.Unlock()

		event := c.log.Warn()
		if reason == "closed" || reason == "eof" {
			event = c.log.Info()
		}
		event.Str("reason", reason).Err(cause).Int("pending", c.mailboxes.Len()).Msg("rpc.Conn dispatch stopped")
		observability.RecordDispatchStop(c.cfg.Name, reason)

		_ = c.closeStream()
		c.mailboxes.Close()
		close(c.done)
	})
}

func (c *Conn) classify(cause error) (string, error) {
	switch {
	case c.closing.Load():
		return "closed", ErrClosed
	case errors.Is(cause, ErrSend):
		return "send", fmt.Errorf("%w: %w", ErrConnectionLost, cause)
	case protocol.IsConnectionClosed(cause):
		return "eof", fmt.Errorf("%w: %w", ErrConnectionLost, cause)
	case protocol.IsProtocolError(cause):
		return "protocol", fmt.Errorf("%w: %w", ErrConnectionLost, cause)
	default:
		return "io", fmt.Errorf("%w: %w", ErrConnectionLost, cause)
	}
}
