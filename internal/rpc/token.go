package rpc

import (
	"crypto/rand"
	"strconv"
	"sync/atomic"
)

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// TokenSource produces correlation tokens. Tokens must be unique among a
// connection's outstanding requests.
type TokenSource interface {
	Next() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

func (f TokenFunc) Next() string { return f() }

type counterTokens struct {
	prefix string
	seq    atomic.Uint64
}

// NewTokenSource returns a source of "<random8>-<counter>" tokens. The counter
// never repeats within one source; the prefix separates sources.
func NewTokenSource() TokenSource {
	return &counterTokens{prefix: RandomID(8)}
}

func (s *counterTokens) Next() string {
	return s.prefix + "-" + strconv.FormatUint(s.seq.Add(1), 36)
}

// RandomID returns n random characters from [a-z0-9].
func RandomID(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic("rpc: crypto/rand unavailable: " + err.Error())
	}
	for i, b := range buf {
		buf[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}
	return string(buf)
}
