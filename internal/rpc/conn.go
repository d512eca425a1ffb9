package rpc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/wirerpc/internal/mailbox"
	"github.com/danmuck/wirerpc/internal/observability"
	"github.com/danmuck/wirerpc/internal/protocol/envelope"
	"github.com/danmuck/wirerpc/internal/protocol/frame"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const writeBufferSize = 16 * 1024

var ErrNilStream = errors.New("rpc: nil stream")

type options struct {
	logger   *zerolog.Logger
	tokens   TokenSource
	fallback func(envelope.Inbound)
}

type Option func(*options)

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = &l }
}

func WithTokenSource(ts TokenSource) Option {
	return func(o *options) { o.tokens = ts }
}

// WithFallback receives inbound envelopes that are not responses. It runs on
// the dispatch goroutine, so it must not block or call Close.
func WithFallback(fn func(envelope.Inbound)) Option {
	return func(o *options) { o.fallback = fn }
}

func resolveOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		l := log.Logger
		o.logger = &l
	}
	if o.tokens == nil {
		o.tokens = NewTokenSource()
	}
	return o
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// sentWriter counts bytes that reached the stream during the current write.
type sentWriter struct {
	w io.Writer
	n int
}

func (s *sentWriter) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	s.n += n
	return n, err
}

// Conn multiplexes request/response calls over one duplex stream.
type Conn struct {
	cfg    Config
	stream io.ReadWriteCloser
	reader *bufio.Reader

	wmu    sync.Mutex
	sent   *sentWriter
	writer *bufio.Writer

	codec     envelope.Codec
	mailboxes *mailbox.Registry
	tokens    TokenSource
	fallback  func(envelope.Inbound)
	log       zerolog.Logger

	closing    atomic.Bool
	streamOnce sync.Once
	streamErr  error
	stopOnce   sync.Once
	done       chan struct{}
	errMu      sync.Mutex
	err        error
	wg         sync.WaitGroup
}

// New takes ownership of an open stream and starts its dispatch loop.
func New(stream io.ReadWriteCloser, cfg Config, opts ...Option) (*Conn, error) {
	if stream == nil {
		return nil, ErrNilStream
	}
	cfg = cfg.WithDefaults()
	codec, err := envelope.Lookup(cfg.Codec)
	if err != nil {
		return nil, err
	}
	o := resolveOptions(opts)
	sent := &sentWriter{w: stream}

	c := &Conn{
		cfg:       cfg,
		stream:    stream,
		reader:    bufio.NewReader(stream),
		sent:      sent,
		writer:    bufio.NewWriterSize(sent, writeBufferSize),
		codec:     codec,
		mailboxes: mailbox.New(),
		tokens:    o.tokens,
		fallback:  o.fallback,
		log:       o.logger.With().Str("component", "rpc").Str("conn", cfg.Name).Logger(),
		done:      make(chan struct{}),
	}
	c.wg.Add(1)
	go c.dispatch()
	return c, nil
}

func (c *Conn) Name() string { return c.cfg.Name }

// Done is closed once the dispatch loop has stopped.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns why the dispatch loop stopped, or nil while it runs.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Pending returns the number of calls awaiting a response.
func (c *Conn) Pending() int { return c.mailboxes.Len() }

// Close closes the stream and waits for the dispatch loop to exit.
func (c *Conn) Close() error {
	c.closing.Store(true)
	err := c.closeStream()
	c.wg.Wait()
	return err
}

// Send writes one envelope without waiting for any reply.
func (c *Conn) Send(ctx context.Context, out envelope.Outbound) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.stopped() {
		return c.closedErr()
	}
	body, err := envelope.EncodeOutbound(c.codec, out)
	if err != nil {
		return err
	}
	buf, err := frame.Encode(body)
	if err != nil {
		return err
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.setWriteDeadline(ctx); err != nil {
		return fmt.Errorf("%w: set write deadline: %w", ErrSend, err)
	}
	c.sent.n = 0
	if _, err := c.writer.Write(buf); err != nil {
		return c.failWrite(err)
	}
	if err := c.writer.Flush(); err != nil {
		return c.failWrite(err)
	}
	observability.RecordFrame(c.cfg.Name, "out", len(body))
	return nil
}

// SendAndReceive stamps req with a fresh token, sends it, and blocks for the
// matching response. The caller's request is not modified.
func (c *Conn) SendAndReceive(ctx context.Context, req *envelope.Request) (*envelope.Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	start := time.Now()
	resp, err := c.call(ctx, req)
	observability.RecordCall(c.cfg.Name, req.Method, callOutcome(err), time.Since(start))
	return resp, err
}

func (c *Conn) call(ctx context.Context, req *envelope.Request) (*envelope.Response, error) {
	token := c.tokens.Next()
	stamped := *req
	stamped.Control = &envelope.Control{Token: token, ResponseExpected: true}

	ch, err := c.mailboxes.Register(token)
	if err != nil {
		if errors.Is(err, mailbox.ErrClosed) {
			return nil, c.closedErr()
		}
		return nil, fmt.Errorf("rpc: register token=%q: %w", token, err)
	}
	observability.AddPending(c.cfg.Name, 1)
	defer observability.AddPending(c.cfg.Name, -1)

	if c.cfg.RequestTimeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
			defer cancel()
		}
	}

	if err := c.Send(ctx, envelope.Outbound{Request: &stamped}); err != nil {
		c.mailboxes.Remove(token)
		return nil, err
	}
	c.log.Debug().Str("token", token).Str("method", req.Method).Msg("rpc.Conn awaiting response")

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("%w: token=%q: %w", ErrChannelClosed, token, c.closedErr())
		}
		return resp, nil
	case <-ctx.Done():
		if !c.mailboxes.Remove(token) {
			// The dispatch loop claimed the slot first; its send may already be buffered.
			select {
			case resp, ok := <-ch:
				if ok {
					return resp, nil
				}
			default:
			}
		}
		return nil, fmt.Errorf("rpc: await response token=%q: %w", token, ctx.Err())
	}
}

func (c *Conn) setWriteDeadline(ctx context.Context) error {
	wd, ok := c.stream.(writeDeadliner)
	if !ok {
		return nil
	}
	var deadline time.Time
	if c.cfg.WriteTimeout > 0 {
		deadline = time.Now().Add(c.cfg.WriteTimeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (deadline.IsZero() || ctxDeadline.Before(deadline)) {
		deadline = ctxDeadline
	}
	return wd.SetWriteDeadline(deadline)
}

// failWrite runs under wmu. If no byte of the frame reached the stream the
// buffered frame is discarded and the connection stays usable. Otherwise the
// peer's reader is mid-frame and the connection is stopped.
func (c *Conn) failWrite(err error) error {
	err = fmt.Errorf("%w: %w", ErrSend, err)
	if c.sent.n == 0 {
		c.writer.Reset(c.sent)
		return err
	}
	c.stop(err)
	return err
}

func (c *Conn) closeStream() error {
	c.streamOnce.Do(func() {
		c.streamErr = c.stream.Close()
	})
	return c.streamErr
}

func (c *Conn) stopped() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) closedErr() error {
	err := c.Err()
	if err == nil || errors.Is(err, ErrClosed) {
		return ErrClosed
	}
	return fmt.Errorf("%w: %w", ErrClosed, err)
}

func callOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrChannelClosed), errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, ErrSend):
		return "send_error"
	default:
		return "error"
	}
}
