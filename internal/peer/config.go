package peer

import (
	"time"

	"github.com/danmuck/wirerpc/internal/protocol/envelope"
	"github.com/danmuck/wirerpc/internal/protocol/frame"
)

// Config defines peer endpoint defaults.
type Config struct {
	Name         string
	Codec        string
	Limits       frame.Limits
	WriteTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Name:         "peer",
		Codec:        envelope.CodecCBOR,
		Limits:       frame.DefaultLimits(),
		WriteTimeout: 15 * time.Second,
	}
}

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
	return c
}
