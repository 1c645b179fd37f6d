package alarm

import (
	"time"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/protocol"
)

// TankView is the observable state of one tank.
type TankView struct {
	TankID          uint8      `json:"tank_id"`
	DistanceCM      *float64   `json:"distance_cm"`
	LastSeen        *time.Time `json:"last_seen"`
	SnoozeRemaining float64    `json:"snooze_remaining_secs"`
	Stale           bool       `json:"stale"`
}

// Snapshot is a consistent copy of the machine's state.
type Snapshot struct {
	Time           time.Time  `json:"time"`
	Active         bool       `json:"active"`
	PulseRemaining float64    `json:"pulse_remaining_secs"`
	Tanks          []TankView `json:"tanks"`
}

// Snapshot copies the current state. A tank is stale when it has never
// reported or has been silent longer than StaleAfter; stale tanks still
// trigger when a report arrives.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	s := Snapshot{Time: now, Active: m.act.Active, Tanks: make([]TankView, 0, protocol.MaxTanks)}
	if m.act.Active && m.act.OffAt.After(now) {
		s.PulseRemaining = m.act.OffAt.Sub(now).Seconds()
	}
	for i, t := range m.tanks {
		v := TankView{TankID: uint8(i), Stale: t.LastSeen.IsZero() || now.Sub(t.LastSeen) > m.cfg.StaleAfter}
		if t.LastDistanceCM != nil {
			d := *t.LastDistanceCM
			v.DistanceCM = &d
		}
		if !t.LastSeen.IsZero() {
			ls := t.LastSeen
			v.LastSeen = &ls
		}
		if t.SnoozeUntil.After(now) {
			v.SnoozeRemaining = t.SnoozeUntil.Sub(now).Seconds()
		}
		s.Tanks = append(s.Tanks, v)
	}
	return s
}

// Tank returns a copy of the state for id.
func (m *Machine) Tank(id uint8) (TankState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(id) >= len(m.tanks) {
		return TankState{}, false
	}
	t := m.tanks[id]
	if t.LastDistanceCM != nil {
		d := *t.LastDistanceCM
		t.LastDistanceCM = &d
	}
	return t, true
}

// Actuator returns a copy of the actuator state.
func (m *Machine) Actuator() ActuatorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.act
}
