package main

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"

	"github.com/danmuck/wirerpc/internal/peer"
	"github.com/rs/zerolog"
)

func TestCallCommandAgainstServeMux(t *testing.T) {
	srv, err := peer.NewServer(peer.DefaultConfig(), newServeMux(), zerolog.Nop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	defer func() {
		cancel()
		<-done
	}()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"call", "--addr", ln.Addr().String(), "--log-level", "off", "-m", "echo", "-p", "hello wire"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("call command: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "hello wire" {
		t.Fatalf("unexpected output %q", got)
	}

	out.Reset()
	rootCmd.SetArgs([]string{"call", "--addr", ln.Addr().String(), "--log-level", "off", "-m", "nope"})
	if err := rootCmd.Execute(); err == nil || !strings.Contains(err.Error(), "remote error") {
		t.Fatalf("expected remote error, got %v", err)
	}
}

func TestServeMuxMethods(t *testing.T) {
	got := newServeMux().Methods()
	want := []string{"echo", "ping", "time"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("methods=%v want=%v", got, want)
	}
}
