package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rsclarke/salonrelay/internal/logging"
)

var logger *zap.Logger

var rootCmd = &cobra.Command{
	Use:   "salonrelay",
	Short: "WhatsApp relay for salon booking backends",
	Long: `salonrelay keeps one WhatsApp session per salon, forwards inbound
customer messages to the booking backend and sends its replies back.

Each salon gets its own HTTP control listener for pairing (QR code),
health checks and outbound messages. An optional admin listener
addresses every salon by id.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := logging.FromEnv()
		if err != nil {
			return fmt.Errorf("reading logging config: %w", err)
		}
		logger, err = logging.New(cfg)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logging.Sync(logger)
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
