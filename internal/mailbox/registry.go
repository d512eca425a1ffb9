// Package mailbox correlates outstanding requests with the responses that
// answer them, keyed by correlation token.
package mailbox

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/wirerpc/internal/protocol/envelope"
)

var (
	ErrEmptyToken     = errors.New("mailbox: empty token")
	ErrDuplicateToken = errors.New("mailbox: duplicate token")
	ErrClosed         = errors.New("mailbox: registry closed")
)

// Registry maps correlation tokens to one-shot delivery channels.
type Registry struct {
	mu     sync.Mutex
	slots  map[string]chan *envelope.Response
	closed bool
}

func New() *Registry {
	return &Registry{
		slots: make(map[string]chan *envelope.Response),
	}
}

// Register reserves token and returns the channel its response will arrive on.
// The channel is closed without a value if the registry is closed first.
func (r *Registry) Register(token string) (<-chan *envelope.Response, error) {
	key := strings.TrimSpace(token)
	if key == "" {
		return nil, ErrEmptyToken
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if _, ok := r.slots[key]; ok {
		return nil, ErrDuplicateToken
	}
	ch := make(chan *envelope.Response, 1)
	r.slots[key] = ch
	return ch, nil
}

// Deliver removes the slot for token and hands resp to its waiter.
// It returns false when nobody is waiting.
func (r *Registry) Deliver(token string, resp *envelope.Response) bool {
	key := strings.TrimSpace(token)
	r.mu.Lock()
	ch, ok := r.slots[key]
	if ok {
		delete(r.slots, key)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	// The slot is gone from the map, so this is its only send and the buffer is empty.
	select {
	case ch <- resp:
		return true
	default:
		return false
	}
}

// Remove forgets token without delivering. Used after a cancelled or failed call.
func (r *Registry) Remove(token string) bool {
	key := strings.TrimSpace(token)
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.slots[key]
	delete(r.slots, key)
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// Tokens returns a sorted snapshot of pending tokens.
func (r *Registry) Tokens() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.slots))
	for token := range r.slots {
		out = append(out, token)
	}
	sort.Strings(out)
	return out
}

// Close closes every pending channel and rejects later registrations.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for token, ch := range r.slots {
		close(ch)
		delete(r.slots, token)
	}
}

func (r *Registry) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
