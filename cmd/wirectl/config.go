package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/wirerpc/internal/peer"
	"github.com/danmuck/wirerpc/internal/rpc"
)

type appConfig struct {
	Addr      string
	AdminAddr string
	Client    rpc.Config
	Peer      peer.Config
}

type backoffConfig struct {
	InitialDelay string  `toml:"initial_delay"`
	Multiplier   float64 `toml:"multiplier"`
	MaxDelay     string  `toml:"max_delay"`
	Jitter       bool    `toml:"jitter"`
}

type fileConfig struct {
	Name               string        `toml:"name"`
	Addr               string        `toml:"addr"`
	AdminAddr          string        `toml:"admin_addr"`
	Codec              string        `toml:"codec"`
	MaxPayloadBytes    uint32        `toml:"max_payload_bytes"`
	WriteTimeout       string        `toml:"write_timeout"`
	RequestTimeout     string        `toml:"request_timeout"`
	ConnectTimeout     string        `toml:"connect_timeout"`
	MaxConnectAttempts int           `toml:"max_connect_attempts"`
	Backoff            backoffConfig `toml:"backoff"`
}

func defaultAppConfig() appConfig {
	return appConfig{
		Addr:   "127.0.0.1:7300",
		Client: rpc.DefaultConfig(),
		Peer:   peer.DefaultConfig(),
	}
}

// loadAppConfig overlays the keys present in the TOML file at path onto the defaults.
func loadAppConfig(path string) (appConfig, error) {
	cfg := defaultAppConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return appConfig{}, fmt.Errorf("load wirectl config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return appConfig{}, fmt.Errorf("load wirectl config: unknown keys %v", undecoded)
	}

	if meta.IsDefined("name") {
		if name := strings.TrimSpace(raw.Name); name != "" {
			cfg.Client.Name = name
			cfg.Peer.Name = name
		}
	}
	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("codec") {
		cfg.Client.Codec = strings.TrimSpace(raw.Codec)
		cfg.Peer.Codec = cfg.Client.Codec
	}
	if meta.IsDefined("max_payload_bytes") {
		cfg.Client.Limits.MaxPayloadBytes = raw.MaxPayloadBytes
		cfg.Peer.Limits.MaxPayloadBytes = raw.MaxPayloadBytes
	}
	if meta.IsDefined("write_timeout") {
		d, err := parseDuration("write_timeout", raw.WriteTimeout)
		if err != nil {
			return appConfig{}, err
		}
		cfg.Client.WriteTimeout = d
		cfg.Peer.WriteTimeout = d
	}
	if meta.IsDefined("request_timeout") {
		d, err := parseDuration("request_timeout", raw.RequestTimeout)
		if err != nil {
			return appConfig{}, err
		}
		cfg.Client.RequestTimeout = d
	}
	if meta.IsDefined("connect_timeout") {
		d, err := parseDuration("connect_timeout", raw.ConnectTimeout)
		if err != nil {
			return appConfig{}, err
		}
		cfg.Client.ConnectTimeout = d
	}
	if meta.IsDefined("max_connect_attempts") {
		cfg.Client.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	if meta.IsDefined("backoff", "initial_delay") {
		d, err := parseDuration("backoff.initial_delay", raw.Backoff.InitialDelay)
		if err != nil {
			return appConfig{}, err
		}
		cfg.Client.Backoff.InitialDelay = d
	}
	if meta.IsDefined("backoff", "multiplier") {
		cfg.Client.Backoff.Multiplier = raw.Backoff.Multiplier
	}
	if meta.IsDefined("backoff", "max_delay") {
		d, err := parseDuration("backoff.max_delay", raw.Backoff.MaxDelay)
		if err != nil {
			return appConfig{}, err
		}
		cfg.Client.Backoff.MaxDelay = d
	}
	if meta.IsDefined("backoff", "jitter") {
		cfg.Client.Backoff.Jitter = raw.Backoff.Jitter
	}
	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
