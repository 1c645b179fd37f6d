package sampler

import (
	"context"
	"math/rand"
	"time"
)

// SimulatedSource produces noisy readings around a level, with an occasional
// glitch outside the instrument range.
type SimulatedSource struct {
	LevelCM    float64
	NoiseCM    float64
	GlitchRate float64
	Interval   time.Duration
	rng        *rand.Rand
}

// NewSimulatedSource returns a source emitting one reading per interval.
func NewSimulatedSource(levelCM float64, seed int64) *SimulatedSource {
	return &SimulatedSource{
		LevelCM:    levelCM,
		NoiseCM:    0.3,
		GlitchRate: 0.05,
		Interval:   100 * time.Millisecond,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// ReadCM waits one interval and returns the next reading.
func (s *SimulatedSource) ReadCM(ctx context.Context) (float64, error) {
	t := time.NewTimer(s.Interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-t.C:
	}
	if s.rng.Float64() < s.GlitchRate {
		return 0, ErrBadFrame
	}
	return s.LevelCM + (s.rng.Float64()*2-1)*s.NoiseCM, nil
}
