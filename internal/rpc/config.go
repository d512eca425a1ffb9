package rpc

import (
	"time"

	"github.com/danmuck/wirerpc/internal/protocol/envelope"
	"github.com/danmuck/wirerpc/internal/protocol/frame"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines connection defaults.
type Config struct {
	// Name labels logs and metrics for this connection.
	Name string
	// Codec names the payload codec, see envelope.Lookup.
	Codec  string
	Limits frame.Limits
	// WriteTimeout bounds one write+flush when the stream supports deadlines.
	WriteTimeout time.Duration
	// RequestTimeout bounds SendAndReceive when ctx has no deadline. Zero waits on ctx alone.
	RequestTimeout     time.Duration
	ConnectTimeout     time.Duration
	MaxConnectAttempts int
	Backoff            BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		Name:               "client",
		Codec:              envelope.CodecCBOR,
		Limits:             frame.DefaultLimits(),
		WriteTimeout:       15 * time.Second,
		RequestTimeout:     30 * time.Second,
		ConnectTimeout:     5 * time.Second,
		MaxConnectAttempts: 5,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero-valued required fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.Name == "" {
		c.Name = def.Name
	}
	if c.Codec == "" {
		c.Codec = def.Codec
	}
	if c.Limits.MaxPayloadBytes == 0 {
		c.Limits = def.Limits
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.Backoff.InitialDelay <= 0 && c.Backoff.MaxDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}
