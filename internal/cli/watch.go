package cli

import (
	"github.com/spf13/cobra"

	"arm-ai/internal/app"
)

var (
	watchAck         bool
	watchMetricsAddr string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll for pending risk events until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Watch(cmd.Context(), app.WatchOptions{
			Ack:         watchAck,
			MetricsAddr: watchMetricsAddr,
		})
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchAck, "ack", false, "Mark each event processed after logging it")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this host:port (overrides metrics.listen)")
}
