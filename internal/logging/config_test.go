package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		" DEBUG ": zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"off":     zerolog.Disabled,
	}
	for raw, want := range cases {
		got, ok := parseLevel(raw)
		if !ok || got != want {
			t.Fatalf("parseLevel(%q)=%v,%v want %v", raw, got, ok, want)
		}
	}
	if _, ok := parseLevel("loud"); ok {
		t.Fatalf("unknown level must not parse")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogTimestamp, "true")
	t.Setenv(EnvLogNoColor, "1")
	cfg := defaultConfig(ProfileTest)
	applyEnvOverrides(&cfg)
	if cfg.Level != zerolog.ErrorLevel || !cfg.Timestamp || !cfg.NoColor {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestEnvOverridesReachTheWriter(t *testing.T) {
	t.Setenv(EnvLogTimestamp, "false")
	t.Setenv(EnvLogNoColor, "true")
	cfg := defaultConfig(ProfileRuntime)
	applyEnvOverrides(&cfg)

	var buf bytes.Buffer
	logger := newLogger(cfg, &buf)
	logger.Info().Str("conn", "client").Msg("hello")
	line := buf.String()
	if strings.Contains(line, "\x1b[") {
		t.Fatalf("colour escapes with NOCOLOR set: %q", line)
	}
	if strings.Contains(line, "<nil>") || strings.ContainsAny(strings.SplitN(line, " ", 2)[0], "0123456789") {
		t.Fatalf("timestamp present with TIMESTAMP=false: %q", line)
	}
	if !strings.HasPrefix(line, "INF hello") || !strings.Contains(line, "conn=client") {
		t.Fatalf("unexpected line: %q", line)
	}
}

func TestTimestampedWriterKeepsColourByDefault(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	var buf bytes.Buffer
	logger := newLogger(defaultConfig(ProfileRuntime), &buf)
	logger.Info().Msg("hello")
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Fatalf("expected colour escapes: %q", buf.String())
	}
}
