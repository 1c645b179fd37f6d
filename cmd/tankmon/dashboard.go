package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/tui"
)

var (
	dashURL      string
	dashInterval time.Duration
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show live tank status in the terminal",
	Long:  "dashboard polls and follows the aggregator API. When stdout is not a terminal it prints one status table and exits.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel, err := runContext(nil)
		if err != nil {
			return err
		}
		defer cancel()
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return tui.Print(ctx, os.Stdout, dashURL)
		}
		return tui.Run(ctx, dashURL, dashInterval)
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashURL, "url", "http://localhost:8080", "Aggregator base URL")
	dashboardCmd.Flags().DurationVar(&dashInterval, "interval", 5*time.Second, "Status poll interval")
}
