package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/logging"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/sink"
)

var (
	replayInput     string
	replaySpeed     float64
	replayPrintOnly bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a report log file",
	Long:  "replay feeds report rows from a JSONL log back into GreptimeDB or STDOUT, preserving their spacing scaled by --speed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		ctx, cancel, err := runContext(nil)
		if err != nil {
			return err
		}
		defer cancel()

		writer, cleanup, err := newWriters(nil, replayPrintOnly)
		if err != nil {
			return err
		}
		defer cleanup()

		n, err := sink.ReplayLogFile(ctx, replayInput, writer, replaySpeed)
		logging.FromContext(ctx).Info("replay finished", "rows", n, "input", replayInput)
		if err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to report log file")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier (0 replays without delay)")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print reports to STDOUT instead of writing to DB")
	replayCmd.MarkFlagRequired("input")
}
