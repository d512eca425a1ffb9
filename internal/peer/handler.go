package peer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/wirerpc/internal/protocol/envelope"
)

var ErrUnknownMethod = errors.New("peer: unknown method")

// Handler answers one request. The returned bytes become the response payload;
// a non-nil error becomes the response error text.
type Handler interface {
	ServeRequest(ctx context.Context, req *envelope.Request) ([]byte, error)
}

type HandlerFunc func(ctx context.Context, req *envelope.Request) ([]byte, error)

func (f HandlerFunc) ServeRequest(ctx context.Context, req *envelope.Request) ([]byte, error) {
	return f(ctx, req)
}

// Mux routes requests by method name.
type Mux struct {
	mu     sync.RWMutex
	routes map[string]Handler
}

func NewMux() *Mux {
	return &Mux{routes: make(map[string]Handler)}
}

func (m *Mux) Handle(method string, h Handler) {
	key := strings.TrimSpace(method)
	if key == "" || h == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[key] = h
}

func (m *Mux) HandleFunc(method string, fn func(ctx context.Context, req *envelope.Request) ([]byte, error)) {
	m.Handle(method, HandlerFunc(fn))
}

func (m *Mux) Methods() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.routes))
	for method := range m.routes {
		out = append(out, method)
	}
	sort.Strings(out)
	return out
}

func (m *Mux) ServeRequest(ctx context.Context, req *envelope.Request) ([]byte, error) {
	m.mu.RLock()
	h, ok := m.routes[strings.TrimSpace(req.Method)]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, req.Method)
	}
	return h.ServeRequest(ctx, req)
}

// Echo returns the request payload unchanged.
func Echo(_ context.Context, req *envelope.Request) ([]byte, error) {
	return req.Payload, nil
}

// Ping answers "pong" to anything.
func Ping(_ context.Context, _ *envelope.Request) ([]byte, error) {
	return []byte("pong"), nil
}
