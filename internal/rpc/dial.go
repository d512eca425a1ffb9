package rpc

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net"
	"strings"
	"time"
)

// Dial connects to addr over TCP, retrying with backoff, and wraps the stream in a Conn.
func Dial(ctx context.Context, addr string, cfg Config, opts ...Option) (*Conn, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, ErrAddressRequired
	}
	cfg = cfg.WithDefaults()
	o := resolveOptions(opts)
	logger := o.logger.With().Str("component", "rpc").Str("conn", cfg.Name).Logger()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var attempt int
	for {
		attempt++
		dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
		stream, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			logger.Debug().Str("addr", addr).Int("attempt", attempt).Msg("rpc.Dial connected")
			c, err := New(stream, cfg, opts...)
			if err != nil {
				_ = stream.Close()
				return nil, err
			}
			return c, nil
		}
		logger.Warn().Str("addr", addr).Int("attempt", attempt).Err(err).Msg("rpc.Dial attempt failed")
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if cfg.MaxConnectAttempts > 0 && attempt >= cfg.MaxConnectAttempts {
			return nil, fmt.Errorf("rpc: dial %s failed after %d attempts: %w", addr, attempt, err)
		}
		if err := sleepBackoff(ctx, cfg.Backoff.Delay(attempt, rng)); err != nil {
			return nil, err
		}
	}
}

// Delay is the wait after the given number of consecutive failed dials. It
// multiplies from InitialDelay and stops growing at MaxDelay. With Jitter and
// a non-nil rng the result lands in [d/2, d].
func (b BackoffConfig) Delay(failed int, rng *rand.Rand) time.Duration {
	if failed < 1 || b.InitialDelay <= 0 {
		return 0
	}
	factor := math.Max(b.Multiplier, 1)
	limit := float64(math.MaxInt64)
	if b.MaxDelay > 0 {
		limit = float64(b.MaxDelay)
	}
	d := float64(b.InitialDelay)
	for i := 1; i < failed && d < limit; i++ {
		d *= factor
	}
	var delay time.Duration
	switch {
	case d < limit:
		delay = time.Duration(d)
	case b.MaxDelay > 0:
		delay = b.MaxDelay
	default:
		delay = time.Duration(math.MaxInt64)
	}
	if b.Jitter && rng != nil && delay > 1 {
		half := delay / 2
		delay = half + time.Duration(rng.Int63n(int64(delay-half)+1))
	}
	return delay
}

func sleepBackoff(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
