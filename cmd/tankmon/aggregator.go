package main

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/admin"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/command"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/freshness"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/logging"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/node"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/protocol"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/transport"
)

var aggregatorCmd = &cobra.Command{
	Use:   "aggregator",
	Short: "Run the aggregator and web dashboard",
	Long:  "aggregator caches the latest report per tank, serves the dashboard and API, and relays siren commands to the alarm node.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := requireRole(cfg, protocol.RoleAggregator); err != nil {
			return err
		}
		ctx, cancel, err := runContext(cfg)
		if err != nil {
			return err
		}
		defer cancel()
		log := logging.FromContext(ctx)

		dir := cfg.Directory()
		alarmAddr, err := peerAddr(dir, protocol.RoleAlarm)
		if err != nil {
			return err
		}

		writer, cleanup, err := newWriters(cfg, false)
		if err != nil {
			return err
		}
		defer cleanup()

		link, err := dialLink(ctx, cfg)
		if err != nil {
			return err
		}
		defer link.Close()

		tracker := freshness.New(cfg.FreshnessConfig())
		router := command.NewRouter(transport.NewSender(link, cfg.SendConfig()), alarmAddr, command.WithRecorder(writer))
		srv := admin.NewServer(tracker, router, cfg.Channel())
		go func() {
			if err := srv.Start(ctx, cfg.Aggregator.Addr); err != nil && err != http.ErrServerClosed {
				log.Error("dashboard server failed", "err", err)
				cancel()
			}
		}()

		name := cfg.Node.Name
		if name == "" {
			name = "aggregator"
		}
		agg := node.NewAggregator(name, tracker, dir, writer, srv)
		agg.Heartbeat = cfg.Timing.HeartbeatInterval
		return agg.Run(ctx, link)
	},
}
