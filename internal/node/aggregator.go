package node

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/freshness"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/logging"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/metrics"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/protocol"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/sink"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/telemetry"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/transport"
)

// Notifier is told whenever a report has been accepted.
type Notifier interface {
	NotifyReport(tank uint8)
}

// Aggregator caches the latest report per tank for the dashboard.
type Aggregator struct {
	Name      string
	Tracker   *freshness.Tracker
	Peers     *protocol.Directory
	Sink      sink.ReportWriter
	Notifier  Notifier
	Heartbeat time.Duration
	log       *slog.Logger
}

// NewAggregator returns an aggregator node. w and n may be nil.
func NewAggregator(name string, t *freshness.Tracker, peers *protocol.Directory, w sink.ReportWriter, n Notifier) *Aggregator {
	if w == nil {
		w = sink.Discard{}
	}
	return &Aggregator{
		Name:      name,
		Tracker:   t,
		Peers:     peers,
		Sink:      w,
		Notifier:  n,
		Heartbeat: 10 * time.Second,
		log:       slog.Default(),
	}
}

// Handle is the transport receive callback. Only reports are meaningful here.
func (a *Aggregator) Handle(sender string, data []byte) {
	pkt, ok := accept(a.log, a.Peers, sender, data)
	if !ok {
		return
	}
	r, ok := pkt.(protocol.SensorReport)
	if !ok {
		metrics.IncPacketDropped("unexpected_command")
		a.log.Debug("packet dropped", "peer", sender, "reason", "unexpected_command")
		return
	}
	a.Tracker.Observe(r)
	cm, _ := r.DistanceCM()
	var dist *float64
	if r.Valid() {
		dist = &cm
	}
	metrics.SetTankReading(r.Tank, dist, r.BatteryMV)
	metrics.SetTankOffline(r.Tank, false)
	a.log.Debug("report", "tank", r.Tank, "peer", sender, "report", r.String())

	if err := a.Sink.WriteReport(telemetry.NewReportRow(a.Name, sender, r, a.Tracker.Now().UTC())); err != nil {
		a.log.Warn("sink write failed", "tank", r.Tank, "err", err)
	}
	if a.Notifier != nil {
		a.Notifier.NotifyReport(r.Tank)
	}
}

// Run listens on link and logs a heartbeat until ctx is done.
func (a *Aggregator) Run(ctx context.Context, link transport.Link) error {
	a.log = logging.FromContext(ctx)
	if err := link.Listen(a.Handle); err != nil {
		return fmt.Errorf("listen on %s: %w", link.Addr(), err)
	}
	a.log.Info("aggregator listening", "addr", link.Addr(), "peers", a.Peers.Len())

	interval := a.Heartbeat
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.heartbeat()
		case <-ctx.Done():
			a.log.Info("aggregator stopping")
			return nil
		}
	}
}

func (a *Aggregator) heartbeat() {
	online := 0
	for _, s := range a.Tracker.Snapshot() {
		metrics.SetTankOffline(s.TankID, s.Offline)
		if !s.Offline {
			online++
		}
	}
	a.log.Info("heartbeat", "online", online, "synced", a.Tracker.Synced())
}
