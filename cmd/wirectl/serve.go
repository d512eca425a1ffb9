package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/wirerpc/internal/observability"
	"github.com/danmuck/wirerpc/internal/peer"
	"github.com/danmuck/wirerpc/internal/protocol/envelope"
	"github.com/spf13/cobra"
)

var adminAddrFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a peer that answers echo, ping, and time requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		if adminAddrFlag != "" {
			cfg.AdminAddr = adminAddrFlag
		}
		srv, err := peer.NewServer(cfg.Peer, newServeMux(), logger)
		if err != nil {
			return err
		}
		ln, err := net.Listen("tcp", cfg.Addr)
		if err != nil {
			return err
		}

		sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cfg.AdminAddr != "" {
			admin := &http.Server{
				Addr:              cfg.AdminAddr,
				Handler:           observability.NewAdminRouter(cfg.Peer.Name, version, observability.Component(logger, "admin"), srv),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error().Err(err).Str("addr", cfg.AdminAddr).Msg("wirectl admin server failed")
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = admin.Shutdown(shutdownCtx)
			}()
		}

		serveCtx, cancelServe := context.WithCancel(context.Background())
		defer cancelServe()
		done := make(chan error, 1)
		go func() { done <- srv.Serve(serveCtx, ln) }()

		select {
		case err := <-done:
			return err
		case <-sigCtx.Done():
		}

		noticeCtx, cancelNotice := context.WithTimeout(context.Background(), 2*time.Second)
		n := srv.Broadcast(noticeCtx, envelope.Notice{Topic: "peer.shutdown"})
		cancelNotice()
		logger.Info().Int("sessions", n).Msg("wirectl serve shutting down")
		cancelServe()
		return <-done
	},
}

func init() {
	serveCmd.Flags().StringVar(&adminAddrFlag, "admin-addr", "", "admin HTTP address for /health and /metrics")
}

func newServeMux() *peer.Mux {
	mux := peer.NewMux()
	mux.HandleFunc("echo", peer.Echo)
	mux.HandleFunc("ping", peer.Ping)
	mux.HandleFunc("time", func(context.Context, *envelope.Request) ([]byte, error) {
		return []byte(time.Now().UTC().Format(time.RFC3339Nano)), nil
	})
	return mux
}
