package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/config"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/logging"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/metrics"
)

var (
	configPath string
	schemaPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:          "tankmon",
	Short:        "Honey tank level monitor",
	Long:         "tankmon runs the sensor, alarm and aggregator nodes of a honey tank level network, plus replay and dashboard utilities.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/tankmon.yaml", "Path to node configuration YAML")
	rootCmd.PersistentFlags().StringVar(&schemaPath, "schema", "", "Path to CUE schema file (embedded schema when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json (overrides config)")

	rootCmd.AddCommand(sensorCmd)
	rootCmd.AddCommand(alarmCmd)
	rootCmd.AddCommand(aggregatorCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(grafanaCmd)
	rootCmd.AddCommand(identityCmd)
}

// loadConfig reads --config and validates it against --schema.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath, schemaPath)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", configPath, err)
	}
	return cfg, nil
}

// newLogger builds the process logger; flags win over the config file.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, format := logLevel, logFormat
	if cfg != nil {
		if level == "" {
			level = cfg.Log.Level
		}
		if format == "" {
			format = cfg.Log.Format
		}
	}
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return logging.NewWithOptions(os.Stdout, lvl, format), nil
}

// runContext installs the logger and metrics and returns a context cancelled
// on SIGINT or SIGTERM.
func runContext(cfg *config.Config) (context.Context, context.CancelFunc, error) {
	log, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(log)
	metrics.Init(prometheus.DefaultRegisterer)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return logging.NewContext(ctx, log), cancel, nil
}
