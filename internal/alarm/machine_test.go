package alarm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/protocol"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingOutput struct {
	mu     sync.Mutex
	on     bool
	events []string
}

func (o *recordingOutput) Energize() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.on = true
	o.events = append(o.events, "on")
}

func (o *recordingOutput) Deenergize() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.on = false
	o.events = append(o.events, "off")
}

func (o *recordingOutput) isOn() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.on
}

func newTestMachine() (*Machine, *fakeClock, *recordingOutput) {
	clk := newFakeClock()
	out := &recordingOutput{}
	return New(DefaultConfig(), out, WithClock(clk)), clk, out
}

func report(tank uint8, mm uint16) protocol.SensorReport {
	return protocol.NewSensorReport(tank, mm, 3700)
}

func TestTriggerThenSnoozed(t *testing.T) {
	m, clk, out := newTestMachine()
	start := clk.Now()

	if got := m.HandleReport(report(0, 55)); got != OutcomeTriggered {
		t.Fatalf("first at-risk report = %v, want triggered", got)
	}
	if a := m.Actuator(); !a.Active || !a.OffAt.Equal(start.Add(5*time.Second)) {
		t.Fatalf("actuator = %+v", a)
	}
	if !out.isOn() {
		t.Fatalf("output not energized")
	}

	clk.Advance(time.Second)
	if got := m.HandleReport(report(0, 55)); got != OutcomeSnoozed {
		t.Fatalf("second report = %v, want snoozed", got)
	}
	if a := m.Actuator(); !a.OffAt.Equal(start.Add(5 * time.Second)) {
		t.Fatalf("pulse changed by snoozed report: %+v", a)
	}
	ts, _ := m.Tank(0)
	if !ts.SnoozeUntil.Equal(start.Add(5 * time.Minute)) {
		t.Fatalf("snooze_until = %v", ts.SnoozeUntil)
	}
}

func TestPiggybackDoesNotExtendPulse(t *testing.T) {
	m, clk, _ := newTestMachine()
	start := clk.Now()

	m.HandleReport(report(0, 50))
	clk.Advance(2 * time.Second)
	if got := m.HandleReport(report(1, 40)); got != OutcomePiggybacked {
		t.Fatalf("tank 1 outcome = %v, want piggybacked", got)
	}
	if a := m.Actuator(); !a.OffAt.Equal(start.Add(5 * time.Second)) {
		t.Fatalf("off_at = %v, want %v", a.OffAt, start.Add(5*time.Second))
	}
	ts, _ := m.Tank(1)
	if want := start.Add(2*time.Second + 5*time.Minute); !ts.SnoozeUntil.Equal(want) {
		t.Fatalf("tank 1 snooze_until = %v, want %v", ts.SnoozeUntil, want)
	}
}

func TestSafeAndInvalidReportsOnlyRecord(t *testing.T) {
	m, clk, out := newTestMachine()

	if got := m.HandleReport(report(2, 61)); got != OutcomeRecorded {
		t.Fatalf("safe report = %v", got)
	}
	clk.Advance(time.Second)
	if got := m.HandleReport(report(2, 0)); got != OutcomeRecorded {
		t.Fatalf("invalid report = %v", got)
	}
	ts, _ := m.Tank(2)
	if ts.LastDistanceCM != nil {
		t.Fatalf("invalid report should clear the distance, got %v", *ts.LastDistanceCM)
	}
	if view := m.Snapshot().Tanks[2]; view.DistanceCM != nil || view.LastSeen == nil {
		t.Fatalf("snapshot after invalid report = %+v", view)
	}
	if !ts.LastSeen.Equal(clk.Now()) {
		t.Fatalf("last_seen not updated")
	}
	if m.Actuator().Active || out.isOn() || !ts.SnoozeUntil.IsZero() {
		t.Fatalf("non-risk reports changed alarm state")
	}
}

func TestThresholdIsInclusive(t *testing.T) {
	m, _, _ := newTestMachine()
	if got := m.HandleReport(report(0, 60)); got != OutcomeTriggered {
		t.Fatalf("6.0cm outcome = %v, want triggered", got)
	}
}

func TestTickEndsPulse(t *testing.T) {
	m, clk, out := newTestMachine()
	m.HandleReport(report(0, 30))

	clk.Advance(4999 * time.Millisecond)
	if m.Tick() {
		t.Fatalf("pulse ended early")
	}
	clk.Advance(time.Millisecond)
	if !m.Tick() {
		t.Fatalf("pulse did not end at off_at")
	}
	if m.Actuator().Active || out.isOn() {
		t.Fatalf("actuator still active after tick")
	}
	if m.Tick() {
		t.Fatalf("idle tick reported a transition")
	}
}

func TestSnoozeExpiryAllowsRetrigger(t *testing.T) {
	m, clk, _ := newTestMachine()
	m.HandleReport(report(0, 30))
	clk.Advance(5 * time.Second)
	m.Tick()
	clk.Advance(5 * time.Minute)
	if got := m.HandleReport(report(0, 30)); got != OutcomeTriggered {
		t.Fatalf("report after snooze = %v, want triggered", got)
	}
}

func TestCommands(t *testing.T) {
	t.Run("force off while pulsing", func(t *testing.T) {
		m, clk, out := newTestMachine()
		m.HandleReport(report(0, 30))
		clk.Advance(time.Second)
		if err := m.HandleCommand(protocol.NewCommand(protocol.TargetAll, protocol.ForceOff{})); err != nil {
			t.Fatal(err)
		}
		if m.Actuator().Active || out.isOn() {
			t.Fatalf("ForceOff left actuator active")
		}
		for id := uint8(0); id < protocol.MaxTanks; id++ {
			ts, _ := m.Tank(id)
			if !ts.SnoozeUntil.Equal(clk.Now().Add(5 * time.Minute)) {
				t.Fatalf("tank %d snooze_until = %v", id, ts.SnoozeUntil)
			}
		}
	})

	t.Run("force on durations", func(t *testing.T) {
		tests := []struct {
			in, want time.Duration
		}{
			{0, 5 * time.Second},
			{2 * time.Second, 2 * time.Second},
			{10 * time.Second, 10 * time.Second},
			{30 * time.Second, 10 * time.Second},
		}
		for _, tt := range tests {
			m, clk, _ := newTestMachine()
			if err := m.HandleCommand(protocol.NewCommand(1, protocol.ForceOn{Duration: tt.in})); err != nil {
				t.Fatal(err)
			}
			a := m.Actuator()
			if !a.Active || !a.OffAt.Equal(clk.Now().Add(tt.want)) {
				t.Errorf("ForceOn(%s) actuator = %+v, want off in %s", tt.in, a, tt.want)
			}
			t1, _ := m.Tank(1)
			t0, _ := m.Tank(0)
			if !t1.SnoozeUntil.After(clk.Now()) || !t0.SnoozeUntil.IsZero() {
				t.Errorf("ForceOn should snooze only the target tank")
			}
		}
	})

	t.Run("snooze and clear", func(t *testing.T) {
		m, clk, _ := newTestMachine()
		if err := m.HandleCommand(protocol.NewCommand(2, protocol.Snooze{})); err != nil {
			t.Fatal(err)
		}
		ts, _ := m.Tank(2)
		if !ts.SnoozeUntil.Equal(clk.Now().Add(5 * time.Minute)) {
			t.Fatalf("Snooze5Min snooze_until = %v", ts.SnoozeUntil)
		}
		if m.HandleReport(report(2, 30)) != OutcomeSnoozed {
			t.Fatalf("snoozed tank triggered")
		}
		if err := m.HandleCommand(protocol.NewCommand(2, protocol.ClearSnooze{})); err != nil {
			t.Fatal(err)
		}
		ts, _ = m.Tank(2)
		if !ts.SnoozeUntil.Equal(clk.Now()) {
			t.Fatalf("ClearSnooze snooze_until = %v, want now", ts.SnoozeUntil)
		}
		if m.HandleReport(report(2, 30)) != OutcomeTriggered {
			t.Fatalf("cleared tank did not trigger")
		}
		if m.Actuator().Active == false {
			t.Fatalf("expected pulse")
		}
	})

	t.Run("custom snooze", func(t *testing.T) {
		tests := []struct {
			in, want time.Duration
		}{
			{0, 5 * time.Minute},
			{10 * time.Minute, 10 * time.Minute},
			{2 * time.Hour, time.Hour},
		}
		for _, tt := range tests {
			m, clk, _ := newTestMachine()
			if err := m.HandleCommand(protocol.NewCommand(protocol.TargetAll, protocol.SnoozeFor{Duration: tt.in})); err != nil {
				t.Fatal(err)
			}
			for id := uint8(0); id < protocol.MaxTanks; id++ {
				ts, _ := m.Tank(id)
				if !ts.SnoozeUntil.Equal(clk.Now().Add(tt.want)) {
					t.Errorf("SnoozeFor(%s) tank %d until %v, want +%s", tt.in, id, ts.SnoozeUntil, tt.want)
				}
			}
			if m.Actuator().Active {
				t.Errorf("snooze changed actuator")
			}
		}
	})

	t.Run("nil op", func(t *testing.T) {
		m, _, _ := newTestMachine()
		if err := m.HandleCommand(protocol.Command{Target: 0}); !errors.Is(err, protocol.ErrUnknownCommand) {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestSnapshotStaleness(t *testing.T) {
	m, clk, _ := newTestMachine()
	m.HandleReport(report(0, 500))
	clk.Advance(7*time.Minute + time.Second)
	m.HandleReport(report(1, 500))

	s := m.Snapshot()
	if len(s.Tanks) != protocol.MaxTanks {
		t.Fatalf("snapshot has %d tanks", len(s.Tanks))
	}
	if !s.Tanks[0].Stale || s.Tanks[1].Stale || !s.Tanks[2].Stale {
		t.Fatalf("stale flags = %v %v %v", s.Tanks[0].Stale, s.Tanks[1].Stale, s.Tanks[2].Stale)
	}
	if s.Tanks[2].DistanceCM != nil || s.Tanks[2].LastSeen != nil {
		t.Fatalf("never-seen tank should have no data")
	}

	if got := m.HandleReport(report(0, 30)); got != OutcomeTriggered {
		t.Fatalf("stale tank report should still trigger, got %v", got)
	}
}

func TestRunTurnsOffPulse(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pulse = 20 * time.Millisecond
	cfg.Tick = 5 * time.Millisecond
	out := &recordingOutput{}
	m := New(cfg, out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	m.HandleReport(report(0, 30))
	deadline := time.Now().Add(time.Second)
	for out.isOn() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if out.isOn() {
		t.Fatalf("pulse not ended by run loop")
	}
	m.HandleCommand(protocol.NewCommand(protocol.TargetAll, protocol.ForceOn{Duration: time.Second}))
	cancel()
	<-done
	if out.isOn() {
		t.Fatalf("siren left on after shutdown")
	}
}
