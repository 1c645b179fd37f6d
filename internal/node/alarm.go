package node

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/alarm"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/logging"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/metrics"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/protocol"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/sink"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/telemetry"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/transport"
)

// Alarm is the siren node. It applies reports and commands to its Machine.
type Alarm struct {
	Name    string
	Machine *alarm.Machine
	Peers   *protocol.Directory
	Sink    sink.ReportWriter
	now     func() time.Time
	log     *slog.Logger
}

// NewAlarm returns an alarm node. w may be nil.
func NewAlarm(name string, m *alarm.Machine, peers *protocol.Directory, w sink.ReportWriter) *Alarm {
	if w == nil {
		w = sink.Discard{}
	}
	return &Alarm{Name: name, Machine: m, Peers: peers, Sink: w, now: time.Now, log: slog.Default()}
}

// Handle is the transport receive callback.
func (a *Alarm) Handle(sender string, data []byte) {
	pkt, ok := accept(a.log, a.Peers, sender, data)
	if !ok {
		return
	}
	switch p := pkt.(type) {
	case protocol.SensorReport:
		outcome := a.Machine.HandleReport(p)
		a.log.Debug("report", "tank", p.Tank, "peer", sender, "report", p.String(), "outcome", outcome.String())
		if outcome == alarm.OutcomeTriggered {
			a.log.Info("siren on", "tank", p.Tank, "pulse", a.Machine.Config().Pulse)
		}
		row := telemetry.NewReportRow(a.Name, sender, p, a.now().UTC())
		row.Outcome = outcome.String()
		if err := a.Sink.WriteReport(row); err != nil {
			a.log.Warn("sink write failed", "tank", p.Tank, "err", err)
		}
	case protocol.Command:
		if err := a.Machine.HandleCommand(p); err != nil {
			metrics.IncPacketDropped(protocol.Reason(err))
			a.log.Warn("command rejected", "peer", sender, "cmd", p.String(), "err", err)
			return
		}
		a.log.Info("command applied", "peer", sender, "cmd", p.String())
	}
}

// Run listens on link and drives the siren timer until ctx is done.
func (a *Alarm) Run(ctx context.Context, link transport.Link) error {
	a.log = logging.FromContext(ctx)
	if err := link.Listen(a.Handle); err != nil {
		return fmt.Errorf("listen on %s: %w", link.Addr(), err)
	}
	a.log.Info("alarm node listening", "addr", link.Addr(), "peers", a.Peers.Len())
	a.Machine.Run(ctx)
	return nil
}

// LogOutput is a siren output that only logs; it stands in for the relay pin.
type LogOutput struct {
	Log *slog.Logger
}

func (o LogOutput) Energize()   { o.logger().Info("relay energized") }
func (o LogOutput) Deenergize() { o.logger().Debug("relay released") }

func (o LogOutput) logger() *slog.Logger {
	if o.Log == nil {
		return slog.Default()
	}
	return o.Log
}
