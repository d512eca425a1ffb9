package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/wirerpc/internal/logging"
	"github.com/danmuck/wirerpc/internal/observability"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	cfgFile   string
	logLevel  string
	addrFlag  string
	codecFlag string

	cfg    appConfig
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "wirectl",
	Short:         "Framed request/response transport over a single TCP stream",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.ConfigureRuntime()
		if logLevel != "" && !logging.SetLevel(logLevel) {
			return fmt.Errorf("unknown log level %q", logLevel)
		}
		logger = observability.InitLogger("wirectl")

		loaded, err := loadAppConfig(cfgFile)
		if err != nil {
			return err
		}
		if v := strings.TrimSpace(addrFlag); v != "" {
			loaded.Addr = v
		}
		if v := strings.TrimSpace(codecFlag); v != "" {
			loaded.Client.Codec = v
			loaded.Peer.Codec = v
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "TOML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "trace, debug, info, warn, error, off")
	rootCmd.PersistentFlags().StringVar(&addrFlag, "addr", "", "peer address (default 127.0.0.1:7300)")
	rootCmd.PersistentFlags().StringVar(&codecFlag, "codec", "", "payload codec: cbor or json")
	rootCmd.AddCommand(serveCmd, callCmd, sendCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "wirectl: %v\n", err)
		os.Exit(1)
	}
}
