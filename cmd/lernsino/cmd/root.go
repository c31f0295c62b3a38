package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/nfrund/lernsino/internal/app"
	"github.com/nfrund/lernsino/internal/config"
	"github.com/nfrund/lernsino/internal/logging"
	"github.com/spf13/cobra"
)

var hubURL string

var rootCmd = &cobra.Command{
	Use:   "lernsino",
	Short: "Lernsino realtime chat and state sync",
	Long: `Lernsino connects players to the realtime hub for chat and stats sync.
When the hub is unreachable, chat continues over a local channel shared by
every lernsino process of this user on the device until the hub comes back.

Configuration is read from the environment (and a .env file if present):
  LERNSINO_WS_URL, LERNSINO_RECONNECT_INTERVAL, LERNSINO_MAX_RECONNECT_ATTEMPTS,
  LERNSINO_DIAL_TIMEOUT, LERNSINO_FALLBACK_CHANNEL, LERNSINO_FALLBACK_DIR,
  LERNSINO_HUB_ADDR,
  LOG_FORMAT, LOG_LEVEL, PUBSUB_TRACING_*`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&hubURL, "url", "", "hub websocket URL (overrides LERNSINO_WS_URL)")
}

// bootstrap loads configuration, applies flag overrides and builds the container.
func bootstrap() (*app.App, *config.Config, *slog.Logger, error) {
	logger := logging.New()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	if hubURL != "" {
		cfg.HubURL = hubURL
		if err := cfg.Validate(); err != nil {
			return nil, nil, nil, fmt.Errorf("invalid --url: %w", err)
		}
	}
	return app.New(cfg, logger), cfg, logger, nil
}
