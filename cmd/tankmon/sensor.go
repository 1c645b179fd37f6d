package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/node"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/protocol"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/sampler"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/transport"
)

var (
	sensorOnce     bool
	sensorSimulate bool
	sensorLevelCM  float64
)

var sensorCmd = &cobra.Command{
	Use:   "sensor",
	Short: "Run a tank sensor node",
	Long:  "sensor samples the ultrasonic sensor, reduces the window to a median and reports it to the alarm node and the aggregator.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := requireRole(cfg, protocol.RoleSensor); err != nil {
			return err
		}
		ctx, cancel, err := runContext(cfg)
		if err != nil {
			return err
		}
		defer cancel()

		dir := cfg.Directory()
		alarmAddr, err := peerAddr(dir, protocol.RoleAlarm)
		if err != nil {
			return err
		}
		aggregatorAddr, _ := peerAddr(dir, protocol.RoleAggregator)

		var src sampler.Source
		if sensorSimulate {
			src = sampler.NewSimulatedSource(sensorLevelCM, int64(cfg.Node.Tank)+1)
		} else {
			if cfg.Sensor.UART == "" {
				return fmt.Errorf("sensor.uart is required unless --simulate is set")
			}
			f, err := os.Open(cfg.Sensor.UART)
			if err != nil {
				return fmt.Errorf("open sensor: %w", err)
			}
			uart := sampler.NewUARTSource(f)
			defer uart.Close()
			src = uart
		}

		link, err := dialLink(ctx, cfg)
		if err != nil {
			return err
		}
		defer link.Close()

		s := &node.Sensor{
			Tank:       cfg.Node.Tank,
			BatteryMV:  cfg.Sensor.BatteryMV,
			Channel:    cfg.Channel(),
			Sampler:    sampler.New(cfg.SamplerConfig()),
			Source:     src,
			Sender:     transport.NewSender(link, cfg.SendConfig()),
			Alarm:      alarmAddr,
			Aggregator: aggregatorAddr,
			Sleep:      cfg.Sensor.Sleep,
			Jitter:     cfg.Sensor.Jitter,
		}
		return s.Run(ctx, sensorOnce)
	},
}

func init() {
	sensorCmd.Flags().BoolVar(&sensorOnce, "once", false, "Run a single measure-and-send cycle")
	sensorCmd.Flags().BoolVar(&sensorSimulate, "simulate", false, "Generate readings instead of reading the UART")
	sensorCmd.Flags().Float64Var(&sensorLevelCM, "level", 40, "Simulated distance to the honey surface in cm")
}
