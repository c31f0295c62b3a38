package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var hubAddr string

var hubCmd = &cobra.Command{
	Use:   "hub",
	Short: "Run the reference hub for local development",
	Long: `Run a development hub speaking the realtime protocol on / and /ws.

The hub answers LOGIN with the user's stored stats, stores UPDATE_STATS
snapshots in memory and broadcasts chat to every connected client.

Examples:
  lernsino hub                 # listen on LERNSINO_HUB_ADDR (default :8080)
  lernsino hub --addr :9000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cfg, _, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.Shutdown()

		addr := cfg.HubAddr
		if hubAddr != "" {
			addr = hubAddr
		}

		srv, err := a.Hub()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return srv.Start(ctx, addr)
	},
}

func init() {
	hubCmd.Flags().StringVar(&hubAddr, "addr", "", "listen address (overrides LERNSINO_HUB_ADDR)")
	rootCmd.AddCommand(hubCmd)
}
