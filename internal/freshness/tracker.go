// Package freshness keeps the aggregator's latest-known reading per tank.
package freshness

import (
	"sync"
	"time"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/protocol"
)

// Config controls offline classification.
type Config struct {
	OfflineAfter time.Duration
	RiskCM       float64
	// SyncedAfter is the earliest wall-clock time considered synchronized.
	SyncedAfter time.Time
}

// DefaultConfig uses a 5 minute offline threshold, a 6.0 cm risk threshold and
// treats clocks before 2021-01-01 as unsynchronized.
func DefaultConfig() Config {
	return Config{
		OfflineAfter: 5 * time.Minute,
		RiskCM:       6.0,
		SyncedAfter:  time.Unix(1609459200, 0),
	}
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// TankCache is the last report seen for one tank.
type TankCache struct {
	DistanceCM *float64
	BatteryMV  uint16
	LastSeen   *time.Time
	// WallClockValid is false when LastSeen was taken before the clock synced.
	WallClockValid bool
}

// TankStatus is one entry of a Snapshot.
type TankStatus struct {
	TankID     uint8
	DistanceCM *float64
	AtRisk     bool
	LastUpdate *time.Time
	Age        *time.Duration
	BatteryMV  uint16
	Offline    bool
}

// Tracker owns the per-tank cache. It is safe for concurrent use.
type Tracker struct {
	mu    sync.RWMutex
	cfg   Config
	clock Clock
	tanks [protocol.MaxTanks]TankCache
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithClock assigns a clock.
func WithClock(clock Clock) Option {
	return func(t *Tracker) {
		t.clock = clock
	}
}

// New returns an empty tracker.
func New(cfg Config, opts ...Option) *Tracker {
	d := DefaultConfig()
	if cfg.OfflineAfter <= 0 {
		cfg.OfflineAfter = d.OfflineAfter
	}
	if cfg.RiskCM <= 0 {
		cfg.RiskCM = d.RiskCM
	}
	if cfg.SyncedAfter.IsZero() {
		cfg.SyncedAfter = d.SyncedAfter
	}
	t := &Tracker{cfg: cfg, clock: systemClock{}}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Observe overwrites the tank's cache with r. The latest arrival wins; there is
// no sequence number to detect reordering.
func (t *Tracker) Observe(r protocol.SensorReport) {
	if int(r.Tank) >= protocol.MaxTanks {
		return
	}
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()
	c := &t.tanks[r.Tank]
	c.DistanceCM = nil
	if cm, ok := r.DistanceCM(); ok {
		c.DistanceCM = &cm
	}
	c.BatteryMV = r.BatteryMV
	c.LastSeen = &now
	c.WallClockValid = t.synced(now)
}

// Synced reports whether the wall clock looks synchronized.
func (t *Tracker) Synced() bool { return t.synced(t.clock.Now()) }

// Now returns the tracker's clock reading.
func (t *Tracker) Now() time.Time { return t.clock.Now() }

func (t *Tracker) synced(now time.Time) bool {
	return now.After(t.cfg.SyncedAfter)
}

// Snapshot returns the status of every tank in id order.
func (t *Tracker) Snapshot() []TankStatus {
	now := t.clock.Now()

	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]TankStatus, 0, len(t.tanks))
	for i, c := range t.tanks {
		s := TankStatus{TankID: uint8(i), BatteryMV: c.BatteryMV, Offline: true}
		if c.DistanceCM != nil {
			d := *c.DistanceCM
			s.DistanceCM = &d
			s.AtRisk = d <= t.cfg.RiskCM
		}
		if c.LastSeen != nil {
			age := now.Sub(*c.LastSeen)
			s.Age = &age
			s.Offline = age > t.cfg.OfflineAfter
			if c.WallClockValid {
				ls := *c.LastSeen
				s.LastUpdate = &ls
			}
		}
		out = append(out, s)
	}
	return out
}
