// Package sampler reduces a window of raw range readings to one median distance.
package sampler

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"
)

// Config bounds one sampling window.
type Config struct {
	Window     time.Duration
	MaxSamples int
	MinCM      float64
	MaxCM      float64
}

// DefaultConfig matches the A02YYUW sensor: 5 s window, 100 samples, 3..450 cm.
func DefaultConfig() Config {
	return Config{Window: 5 * time.Second, MaxSamples: 100, MinCM: 3, MaxCM: 450}
}

// Reading is the outcome of one window.
type Reading struct {
	CM      float64
	Valid   bool
	Samples int
}

// Source yields range readings in centimetres. ReadCM returns ErrBadFrame for a
// reading that should be discarded.
type Source interface {
	ReadCM(ctx context.Context) (float64, error)
}

// Windowed is implemented by sources that read continuously and must only
// hand out readings taken while a window is open.
type Windowed interface {
	BeginWindow()
	EndWindow()
}

// Sampler accumulates accepted samples for a single window. It is not safe for
// concurrent use; each sensor cycle owns one.
type Sampler struct {
	cfg     Config
	samples []float64
}

// New returns an empty Sampler.
func New(cfg Config) *Sampler {
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = DefaultConfig().MaxSamples
	}
	return &Sampler{cfg: cfg, samples: make([]float64, 0, cfg.MaxSamples)}
}

// Add records cm if it is finite and within range. Rejected readings do not
// count toward the sample budget.
func (s *Sampler) Add(cm float64) bool {
	if s.Full() || math.IsNaN(cm) || math.IsInf(cm, 0) {
		return false
	}
	if cm < s.cfg.MinCM || cm > s.cfg.MaxCM {
		return false
	}
	s.samples = append(s.samples, cm)
	return true
}

// Len returns the number of accepted samples.
func (s *Sampler) Len() int { return len(s.samples) }

// Full reports whether the sample budget is exhausted.
func (s *Sampler) Full() bool { return len(s.samples) >= s.cfg.MaxSamples }

// Reset discards all samples.
func (s *Sampler) Reset() { s.samples = s.samples[:0] }

// Reading reduces the accepted samples.
func (s *Sampler) Reading() Reading {
	cm, ok := Median(s.samples)
	return Reading{CM: cm, Valid: ok, Samples: len(s.samples)}
}

// Collect reads from src until the window closes or the budget is full, then
// returns the median. Only cancellation of ctx itself is reported as an error.
func (s *Sampler) Collect(ctx context.Context, src Source) (Reading, error) {
	s.Reset()
	if w, ok := src.(Windowed); ok {
		w.BeginWindow()
		defer w.EndWindow()
	}
	wctx, cancel := context.WithTimeout(ctx, s.cfg.Window)
	defer cancel()

	for !s.Full() {
		cm, err := src.ReadCM(wctx)
		if err != nil {
			if ctx.Err() != nil {
				return Reading{}, ctx.Err()
			}
			if wctx.Err() != nil {
				break
			}
			if errors.Is(err, ErrBadFrame) {
				continue
			}
			return s.Reading(), err
		}
		s.Add(cm)
	}
	return s.Reading(), nil
}

// Median sorts a copy of samples and returns the middle value, averaging the two
// middle values for an even count. It returns false for no samples or a
// non-finite result.
func Median(samples []float64) (float64, bool) {
	n := len(samples)
	if n == 0 {
		return 0, false
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	var m float64
	if n%2 == 1 {
		m = sorted[n/2]
	} else {
		m = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	if math.IsNaN(m) || math.IsInf(m, 0) {
		return 0, false
	}
	return m, true
}
