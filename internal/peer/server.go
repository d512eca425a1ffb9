// Package peer is the answering side of the framed correlation transport:
// it reads outbound envelopes, runs handlers, and writes responses that echo
// each request's correlation token.
package peer

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/danmuck/wirerpc/internal/observability"
	"github.com/danmuck/wirerpc/internal/protocol"
	"github.com/danmuck/wirerpc/internal/protocol/envelope"
	"github.com/danmuck/wirerpc/internal/protocol/frame"
	"github.com/rs/zerolog"
)

var ErrHandlerRequired = errors.New("peer: handler required")

type Server struct {
	cfg     Config
	handler Handler
	codec   envelope.Codec
	log     zerolog.Logger

	mu       sync.Mutex
	sessions map[*Session]struct{}
	serving  bool
	wg       sync.WaitGroup
}

func NewServer(cfg Config, h Handler, logger zerolog.Logger) (*Server, error) {
	if h == nil {
		return nil, ErrHandlerRequired
	}
	cfg = cfg.WithDefaults()
	codec, err := envelope.Lookup(cfg.Codec)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:      cfg,
		handler:  h,
		codec:    codec,
		log:      logger.With().Str("component", "peer").Str("node", cfg.Name).Logger(),
		sessions: make(map[*Session]struct{}),
	}, nil
}

// Serve accepts streams until ctx is done or ln closes, then waits for open sessions.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	s.setServing(true)
	defer s.setServing(false)
	s.log.Info().Str("addr", ln.Addr().String()).Msg("peer.Server listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			cancel()
			s.wg.Wait()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.ServeConn(ctx, conn); err != nil {
				s.log.Warn().Str("remote", conn.RemoteAddr().String()).Err(err).Msg("peer.Server session ended")
			}
		}()
	}
}

// ServeConn runs one session on stream until the client closes it or ctx ends.
// A clean client close returns nil.
func (s *Server) ServeConn(ctx context.Context, stream io.ReadWriteCloser) error {
	sess := &Session{
		server: s,
		stream: stream,
		reader: bufio.NewReader(stream),
		writer: bufio.NewWriter(stream),
	}
	s.track(sess, true)
	defer s.track(sess, false)

	stop := context.AfterFunc(ctx, func() { _ = stream.Close() })
	defer stop()
	return sess.run(ctx)
}

// Broadcast pushes n to every open session and returns how many accepted it.
func (s *Server) Broadcast(ctx context.Context, n envelope.Notice) int {
	s.mu.Lock()
	targets := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		targets = append(targets, sess)
	}
	s.mu.Unlock()

	sent := 0
	for _, sess := range targets {
		if err := sess.Notify(ctx, n); err != nil {
			s.log.Debug().Err(err).Str("topic", n.Topic).Msg("peer.Server notice not delivered")
			continue
		}
		sent++
	}
	return sent
}

func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serving
}

func (s *Server) Details() map[string]any {
	return map[string]any{
		"sessions": s.Sessions(),
		"codec":    s.codec.Name(),
	}
}

func (s *Server) setServing(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serving = v
}

func (s *Server) track(sess *Session, open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if open {
		s.sessions[sess] = struct{}{}
		return
	}
	delete(s.sessions, sess)
}

// Session is one accepted client stream.
type Session struct {
	server *Server
	stream io.ReadWriteCloser
	reader *bufio.Reader

	wmu    sync.Mutex
	writer *bufio.Writer

	handlers sync.WaitGroup
}

// Notify pushes a notice to the client.
func (sess *Session) Notify(ctx context.Context, n envelope.Notice) error {
	return sess.write(ctx, envelope.Inbound{Notice: &n})
}

func (sess *Session) run(ctx context.Context) error {
	s := sess.server
	defer func() {
		sess.handlers.Wait()
		_ = sess.stream.Close()
	}()

	for {
		body, err := frame.ReadFrame(sess.reader, s.cfg.Limits)
		if err != nil {
			if protocol.IsConnectionClosed(err) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		observability.RecordFrame(s.cfg.Name, "in", len(body))

		out, err := envelope.DecodeOutbound(s.codec, body)
		if err != nil {
			return err
		}
		if out.Kind() != envelope.KindRequest {
			s.log.Info().Str("kind", out.Kind().String()).Msg("peer.Session unhandled outbound envelope")
			continue
		}

		req := out.Request
		sess.handlers.Add(1)
		go func() {
			defer sess.handlers.Done()
			sess.handle(ctx, req)
		}()
	}
}

func (sess *Session) handle(ctx context.Context, req *envelope.Request) {
	s := sess.server
	payload, err := s.handler.ServeRequest(ctx, req)
	observability.RecordPeerRequest(s.cfg.Name, req.Method, err == nil)
	if req.Control == nil || !req.Control.ResponseExpected {
		if err != nil {
			s.log.Warn().Str("method", req.Method).Err(err).Msg("peer.Session fire-and-forget request failed")
		}
		return
	}

	resp := &envelope.Response{
		Control: &envelope.Control{Token: req.Control.Token},
		Payload: payload,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	if werr := sess.write(ctx, envelope.Inbound{Response: resp}); werr != nil {
		s.log.Debug().Str("token", req.Control.Token).Err(werr).Msg("peer.Session response not written")
	}
}

func (sess *Session) write(ctx context.Context, in envelope.Inbound) error {
	s := sess.server
	body, err := envelope.EncodeInbound(s.codec, in)
	if err != nil {
		return err
	}
	buf, err := frame.Encode(body)
	if err != nil {
		return err
	}

	sess.wmu.Lock()
	defer sess.wmu.Unlock()
	if wd, ok := sess.stream.(interface{ SetWriteDeadline(time.Time) error }); ok && s.cfg.WriteTimeout > 0 {
		deadline := time.Now().Add(s.cfg.WriteTimeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		if err := wd.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}
	if _, err := sess.writer.Write(buf); err != nil {
		return err
	}
	if err := sess.writer.Flush(); err != nil {
		return err
	}
	observability.RecordFrame(s.cfg.Name, "out", len(body))
	return nil
}
