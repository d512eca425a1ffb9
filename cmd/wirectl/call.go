package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/wirerpc/internal/protocol/envelope"
	"github.com/danmuck/wirerpc/internal/rpc"
	"github.com/spf13/cobra"
)

var (
	callMethod  string
	callPayload string
	callTimeout time.Duration
)

var errRemote = errors.New("remote error")

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Send one request and print the correlated response payload",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
		defer cancel()

		c, err := dial(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.SendAndReceive(ctx, &envelope.Request{Method: callMethod, Payload: []byte(callPayload)})
		if err != nil {
			return err
		}
		if resp.Error != "" {
			return fmt.Errorf("%w: %s", errRemote, resp.Error)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(resp.Payload))
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one request without waiting for a reply",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
		defer cancel()

		c, err := dial(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		return c.Send(ctx, envelope.Outbound{Request: &envelope.Request{
			Method:  callMethod,
			Payload: []byte(callPayload),
		}})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{callCmd, sendCmd} {
		cmd.Flags().StringVarP(&callMethod, "method", "m", "ping", "request method")
		cmd.Flags().StringVarP(&callPayload, "payload", "p", "", "request payload")
		cmd.Flags().DurationVar(&callTimeout, "timeout", 10*time.Second, "overall deadline")
	}
}

func dial(ctx context.Context) (*rpc.Conn, error) {
	return rpc.Dial(ctx, cfg.Addr, cfg.Client,
		rpc.WithLogger(logger),
		rpc.WithFallback(func(in envelope.Inbound) {
			if in.Kind() == envelope.KindNotice {
				logger.Info().Str("topic", in.Notice.Topic).Msg("wirectl notice")
				return
			}
			logger.Debug().Str("kind", in.Kind().String()).Msg("wirectl unhandled envelope")
		}),
	)
}
