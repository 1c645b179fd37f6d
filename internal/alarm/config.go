package alarm

import "time"

// Config holds the timing policy of the alarm node.
type Config struct {
	Pulse              time.Duration
	ForceOnCeiling     time.Duration
	Snooze             time.Duration
	SnoozeCeiling      time.Duration
	StaleAfter         time.Duration
	TriggerCM          float64
	Tick               time.Duration
	DiagnosticInterval time.Duration
}

// DefaultConfig is a 5 s pulse, 5 min snooze, 6.0 cm trigger.
func DefaultConfig() Config {
	return Config{
		Pulse:              5 * time.Second,
		ForceOnCeiling:     10 * time.Second,
		Snooze:             5 * time.Minute,
		SnoozeCeiling:      time.Hour,
		StaleAfter:         7 * time.Minute,
		TriggerCM:          6.0,
		Tick:               100 * time.Millisecond,
		DiagnosticInterval: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Pulse <= 0 {
		c.Pulse = d.Pulse
	}
	if c.ForceOnCeiling <= 0 {
		c.ForceOnCeiling = d.ForceOnCeiling
	}
	if c.Snooze <= 0 {
		c.Snooze = d.Snooze
	}
	if c.SnoozeCeiling <= 0 {
		c.SnoozeCeiling = d.SnoozeCeiling
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = d.StaleAfter
	}
	if c.TriggerCM <= 0 {
		c.TriggerCM = d.TriggerCM
	}
	if c.Tick <= 0 {
		c.Tick = d.Tick
	}
	if c.DiagnosticInterval <= 0 {
		c.DiagnosticInterval = d.DiagnosticInterval
	}
	return c
}
