package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/admin"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/alarm"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/command"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/config"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/freshness"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/logging"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/node"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/protocol"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/sampler"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/transport"
)

var (
	simPrintOnly bool
	simInterval  time.Duration
	simWindow    time.Duration
	simLoss      float64
	simLevels    []float64
)

const (
	simAlarmAddr      = "02:00:00:00:00:10"
	simAggregatorAddr = "02:00:00:00:00:20"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the whole network in one process",
	Long:  "simulate runs simulated tank sensors, the alarm node and the aggregator over an in-memory channel and serves the dashboard.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := simulationConfig()
		if err != nil {
			return err
		}
		if len(simLevels) == 0 || len(simLevels) > 3 {
			return fmt.Errorf("between one and three --levels are required")
		}
		ctx, cancel, err := runContext(cfg)
		if err != nil {
			return err
		}
		defer cancel()
		log := logging.FromContext(ctx)

		writer, cleanup, err := newWriters(cfg, simPrintOnly)
		if err != nil {
			return err
		}
		defer cleanup()

		hub := transport.NewHub()
		if simLoss > 0 {
			var mu sync.Mutex
			rng := rand.New(rand.NewSource(time.Now().UnixNano()))
			hub.SetDropFunc(func(src, dst string, data []byte) bool {
				mu.Lock()
				defer mu.Unlock()
				return rng.Float64() < simLoss
			})
		}
		dir := protocol.NewDirectory(simulatedPeers(len(simLevels)))

		alarmLink := hub.Join(simAlarmAddr)
		aggLink := hub.Join(simAggregatorAddr)

		machine := alarm.New(cfg.AlarmConfig(), node.LogOutput{Log: log})
		alarmNode := node.NewAlarm("alarm", machine, dir, writer)

		tracker := freshness.New(cfg.FreshnessConfig())
		router := command.NewRouter(transport.NewSender(aggLink, cfg.SendConfig()), simAlarmAddr, command.WithRecorder(writer))
		srv := admin.NewServer(tracker, router, cfg.Channel())
		agg := node.NewAggregator("aggregator", tracker, dir, writer, srv)
		agg.Heartbeat = cfg.Timing.HeartbeatInterval

		var wg sync.WaitGroup
		errs := make(chan error, 1)
		run := func(fn func() error) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
					select {
					case errs <- err:
					default:
					}
					cancel()
				}
			}()
		}

		run(func() error { return alarmNode.Run(ctx, alarmLink) })
		run(func() error { return agg.Run(ctx, aggLink) })
		if cfg.Alarm.Addr != "" {
			run(func() error { return ignoreClosed(admin.NewAlarmServer(machine).Start(ctx, cfg.Alarm.Addr)) })
		}
		run(func() error {
			log.Info("dashboard listening", "addr", cfg.Aggregator.Addr)
			return ignoreClosed(srv.Start(ctx, cfg.Aggregator.Addr))
		})

		sc := cfg.SamplerConfig()
		sc.Window = simWindow
		for i, level := range simLevels {
			tank := uint8(i)
			link := hub.Join(simSensorAddr(tank))
			s := &node.Sensor{
				Tank:       tank,
				BatteryMV:  cfg.Sensor.BatteryMV,
				Channel:    cfg.Channel(),
				Sampler:    sampler.New(sc),
				Source:     sampler.NewSimulatedSource(level, int64(i)+1),
				Sender:     transport.NewSender(link, cfg.SendConfig()),
				Alarm:      simAlarmAddr,
				Aggregator: simAggregatorAddr,
				Sleep:      simInterval,
				Jitter:     simInterval / 10,
			}
			run(func() error { return s.Run(ctx, false) })
		}

		log.Info("simulation started", "tanks", len(simLevels), "loss", simLoss)
		<-ctx.Done()
		wg.Wait()
		hub.Wait()
		log.Info("simulation stopped")

		select {
		case err := <-errs:
			return err
		default:
			return nil
		}
	},
}

func init() {
	simulateCmd.Flags().BoolVar(&simPrintOnly, "print-only", false, "Print accepted reports to STDOUT instead of writing to DB")
	simulateCmd.Flags().DurationVar(&simInterval, "interval", 10*time.Second, "Sleep between sensor cycles")
	simulateCmd.Flags().DurationVar(&simWindow, "window", time.Second, "Sampling window per cycle")
	simulateCmd.Flags().Float64Var(&simLoss, "loss", 0, "Probability that a datagram is lost on the channel")
	simulateCmd.Flags().Float64SliceVar(&simLevels, "levels", []float64{40, 25, 5}, "Simulated distance to the honey surface per tank in cm")
}

// simulationConfig uses --config when it exists and defaults otherwise.
func simulationConfig() (*config.Config, error) {
	if _, err := os.Stat(configPath); err == nil {
		return loadConfig()
	}
	cfg := config.Default()
	return &cfg, nil
}

func simSensorAddr(tank uint8) string {
	return fmt.Sprintf("02:00:00:00:00:%02X", tank+1)
}

func simulatedPeers(tanks int) []protocol.Peer {
	peers := []protocol.Peer{
		{Name: "alarm", Addr: simAlarmAddr, Role: protocol.RoleAlarm},
		{Name: "aggregator", Addr: simAggregatorAddr, Role: protocol.RoleAggregator},
	}
	for i := 0; i < tanks; i++ {
		tank := uint8(i)
		peers = append(peers, protocol.Peer{
			Name: fmt.Sprintf("tank-%d", tank),
			Addr: simSensorAddr(tank),
			Role: protocol.RoleSensor,
			Tank: tank,
		})
	}
	return peers
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
