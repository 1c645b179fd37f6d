package main

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/admin"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/alarm"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/logging"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/node"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/protocol"
)

var alarmCmd = &cobra.Command{
	Use:   "alarm",
	Short: "Run the alarm node",
	Long:  "alarm receives tank reports and dashboard commands and drives the siren relay.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := requireRole(cfg, protocol.RoleAlarm); err != nil {
			return err
		}
		ctx, cancel, err := runContext(cfg)
		if err != nil {
			return err
		}
		defer cancel()
		log := logging.FromContext(ctx)

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

		machine := alarm.New(cfg.AlarmConfig(), node.LogOutput{Log: log})
		if cfg.Alarm.Addr != "" {
			srv := admin.NewAlarmServer(machine)
			go func() {
				if err := srv.Start(ctx, cfg.Alarm.Addr); err != nil && err != http.ErrServerClosed {
					log.Error("alarm status server failed", "err", err)
				}
			}()
		}

		name := cfg.Node.Name
		if name == "" {
			name = "alarm"
		}
		return node.NewAlarm(name, machine, cfg.Directory(), writer).Run(ctx, link)
	},
}
