package alarm

import (
	"context"
	"log/slog"
	"time"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/logging"
)

// Run drives the pulse timer and the periodic state summary until ctx is done.
// It is independent of packet arrival. The siren is switched off on return.
func (m *Machine) Run(ctx context.Context) {
	log := logging.FromContext(ctx)
	log.Info("alarm loop starting", "tick", m.cfg.Tick, "pulse", m.cfg.Pulse, "snooze", m.cfg.Snooze)

	tick := time.NewTicker(m.cfg.Tick)
	defer tick.Stop()
	diag := time.NewTicker(m.cfg.DiagnosticInterval)
	defer diag.Stop()

	for {
		select {
		case <-tick.C:
			if m.Tick() {
				log.Info("siren off")
			}
		case <-diag.C:
			m.LogState(log)
		case <-ctx.Done():
			m.mu.Lock()
			m.deenergize()
			m.mu.Unlock()
			log.Info("alarm loop stopping")
			return
		}
	}
}

// LogState writes one line for the actuator and one per tank.
func (m *Machine) LogState(log *slog.Logger) {
	s := m.Snapshot()
	log.Info("siren state", "active", s.Active, "pulse_remaining_s", s.PulseRemaining)
	for _, t := range s.Tanks {
		attrs := []any{"tank", t.TankID, "stale", t.Stale, "snooze_remaining_s", int(t.SnoozeRemaining)}
		if t.DistanceCM != nil {
			attrs = append(attrs, "distance_cm", *t.DistanceCM)
		}
		if t.LastSeen != nil {
			attrs = append(attrs, "last_seen_s", int(s.Time.Sub(*t.LastSeen).Seconds()))
		}
		log.Info("tank state", attrs...)
	}
}
