package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/msto63/wiener/internal/server"
	"github.com/msto63/wiener/internal/tui/monitor"
)

var monitorInterval time.Duration

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch goals, locks and providers of a running orchestrator",
	Long: `Open a terminal monitor on a running orchestrator.

Keys:
  Tab    switch between goals, locks and providers
  c      cancel the selected goal
  r      refresh now
  q      quit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := server.NewClient(apiAddr)
		defer client.Close()
		if err := monitor.Run(client, monitorInterval); err != nil {
			printError("monitor failed", err)
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", time.Second, "refresh interval")
}
