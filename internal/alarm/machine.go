// Package alarm implements the alarm node's per-tank snooze automaton and the
// shared siren timer.
package alarm

import (
	"fmt"
	"sync"
	"time"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/metrics"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/protocol"
)

// Output drives the physical siren.
type Output interface {
	Energize()
	Deenergize()
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Outcome describes what a report did to the automaton.
type Outcome int

const (
	// OutcomeRecorded means the report was stored without effect on the siren.
	OutcomeRecorded Outcome = iota
	// OutcomeTriggered means the report started a new pulse.
	OutcomeTriggered
	// OutcomePiggybacked means the siren was already pulsing; only the tank's snooze was set.
	OutcomePiggybacked
	// OutcomeSnoozed means the tank is at risk but suppressed.
	OutcomeSnoozed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeTriggered:
		return "triggered"
	case OutcomePiggybacked:
		return "piggybacked"
	case OutcomeSnoozed:
		return "snoozed"
	default:
		return "recorded"
	}
}

// TankState is what the alarm node knows about one tank.
type TankState struct {
	LastDistanceCM *float64
	LastSeen       time.Time
	SnoozeUntil    time.Time
}

// ActuatorState is the shared siren timer.
type ActuatorState struct {
	Active bool
	OffAt  time.Time
}

// Machine owns all tank and actuator state. Reports, commands and ticks are
// serialized by an internal mutex, so the receive path and the tick loop may run
// on different goroutines.
type Machine struct {
	mu    sync.Mutex
	cfg   Config
	clock Clock
	out   Output
	tanks [protocol.MaxTanks]TankState
	act   ActuatorState
}

// Option customizes a Machine.
type Option func(*Machine)

// WithClock assigns a clock.
func WithClock(clock Clock) Option {
	return func(m *Machine) {
		m.clock = clock
	}
}

// New returns a Machine with the siren off and no tank snoozed.
func New(cfg Config, out Output, opts ...Option) *Machine {
	m := &Machine{cfg: cfg.withDefaults(), clock: systemClock{}, out: out}
	for _, opt := range opts {
		opt(m)
	}
	m.out.Deenergize()
	metrics.SetActuator(false)
	return m
}

// Config returns the effective timing policy.
func (m *Machine) Config() Config { return m.cfg }

// HandleReport applies a validated sensor report.
func (m *Machine) HandleReport(r protocol.SensorReport) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	if int(r.Tank) >= len(m.tanks) {
		return OutcomeRecorded
	}
	now := m.clock.Now()
	t := &m.tanks[r.Tank]
	t.LastSeen = now

	cm, ok := r.DistanceCM()
	if !ok {
		t.LastDistanceCM = nil
		return OutcomeRecorded
	}
	t.LastDistanceCM = &cm
	if cm > m.cfg.TriggerCM {
		return OutcomeRecorded
	}
	if now.Before(t.SnoozeUntil) {
		metrics.IncAlarmEvent("suppressed")
		return OutcomeSnoozed
	}

	outcome := OutcomePiggybacked
	if !m.act.Active {
		m.energize(now.Add(m.cfg.Pulse))
		outcome = OutcomeTriggered
	}
	t.SnoozeUntil = now.Add(m.cfg.Snooze)
	metrics.IncAlarmEvent(outcome.String())
	return outcome
}

// HandleCommand applies a validated command from the aggregator.
func (m *Machine) HandleCommand(c protocol.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	switch op := c.Op.(type) {
	case protocol.ForceOn:
		d := op.Duration
		if d <= 0 {
			d = m.cfg.Pulse
		}
		if d > m.cfg.ForceOnCeiling {
			d = m.cfg.ForceOnCeiling
		}
		m.energize(now.Add(d))
		m.snooze(c.Target, now.Add(m.cfg.Snooze))
	case protocol.ForceOff:
		m.deenergize()
		m.snooze(c.Target, now.Add(m.cfg.Snooze))
	case protocol.Snooze:
		m.snooze(c.Target, now.Add(m.cfg.Snooze))
	case protocol.ClearSnooze:
		m.snooze(c.Target, now)
	case protocol.SnoozeFor:
		d := op.Duration
		if d <= 0 {
			d = m.cfg.Snooze
		}
		if d > m.cfg.SnoozeCeiling {
			d = m.cfg.SnoozeCeiling
		}
		m.snooze(c.Target, now.Add(d))
	default:
		return fmt.Errorf("alarm: command %v: %w", c, protocol.ErrUnknownCommand)
	}
	metrics.IncAlarmEvent(c.Op.Code().String())
	return nil
}

// Tick ends the pulse once its deadline has passed. It reports whether the
// siren was switched off.
func (m *Machine) Tick() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.act.Active || m.clock.Now().Before(m.act.OffAt) {
		return false
	}
	m.deenergize()
	metrics.IncAlarmEvent("pulse_end")
	return true
}

func (m *Machine) energize(offAt time.Time) {
	m.act = ActuatorState{Active: true, OffAt: offAt}
	m.out.Energize()
	metrics.SetActuator(true)
}

func (m *Machine) deenergize() {
	m.act = ActuatorState{}
	m.out.Deenergize()
	metrics.SetActuator(false)
}

func (m *Machine) snooze(target uint8, until time.Time) {
	if target == protocol.TargetAll {
		for i := range m.tanks {
			m.tanks[i].SnoozeUntil = until
		}
		return
	}
	if int(target) < len(m.tanks) {
		m.tanks[target].SnoozeUntil = until
	}
}
