package node

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/logging"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/metrics"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/protocol"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/sampler"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/transport"
)

// ReportSender delivers an encoded report with a bounded wait.
type ReportSender interface {
	Send(ctx context.Context, peer string, data []byte) transport.Result
}

// Sensor measures one tank and reports to the alarm node and the aggregator.
type Sensor struct {
	Tank       uint8
	BatteryMV  uint16
	Channel    int
	Sampler    *sampler.Sampler
	Source     sampler.Source
	Sender     ReportSender
	Alarm      string
	Aggregator string
	Sleep      time.Duration
	Jitter     time.Duration

	rng *rand.Rand
}

// CycleResult describes one measure-and-send cycle.
type CycleResult struct {
	Report     protocol.SensorReport
	Reading    sampler.Reading
	Alarm      transport.Result
	Aggregator *transport.Result
}

// Cycle samples once, then sends the report to the alarm node followed by the
// aggregator. Send failures are logged and returned in the result; the only
// error is cancellation.
func (s *Sensor) Cycle(ctx context.Context) (CycleResult, error) {
	log := logging.FromContext(ctx)

	reading, err := s.Sampler.Collect(ctx, s.Source)
	if err != nil && ctx.Err() != nil {
		return CycleResult{}, ctx.Err()
	}
	if err != nil {
		log.Warn("sampling ended early", "tank", s.Tank, "err", err)
	}
	metrics.ObserveSensorSamples(reading.Samples)

	report := sampler.ToReport(s.Tank, reading, s.BatteryMV)
	res := CycleResult{Report: report, Reading: reading}
	log.Info("measured", "tank", s.Tank, "samples", reading.Samples, "report", report.String())

	data := report.Encode()
	if err := s.wait(ctx, s.jitter()); err != nil {
		return res, err
	}

	res.Alarm = s.send(ctx, log, s.Alarm, data)
	if s.Aggregator != "" {
		r := s.send(ctx, log, s.Aggregator, data)
		res.Aggregator = &r
	}
	return res, ctx.Err()
}

// Run repeats Cycle with the configured sleep between cycles. With once set it
// returns after the first cycle.
func (s *Sensor) Run(ctx context.Context, once bool) error {
	log := logging.FromContext(ctx)
	log.Info("sensor starting", "tank", s.Tank, "channel", s.Channel, "alarm", s.Alarm, "aggregator", s.Aggregator)
	for {
		if _, err := s.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				log.Info("sensor stopping")
				return nil
			}
			log.Warn("cycle failed", "tank", s.Tank, "err", err)
		}
		if once {
			return nil
		}
		if err := s.wait(ctx, s.Sleep); err != nil {
			log.Info("sensor stopping")
			return nil
		}
	}
}

func (s *Sensor) send(ctx context.Context, log *slog.Logger, peer string, data []byte) transport.Result {
	r := s.Sender.Send(ctx, peer, data)
	if r.OK() {
		log.Debug("report delivered", "tank", s.Tank, "peer", peer, "attempts", r.Attempts, "elapsed", r.Elapsed)
	} else {
		log.Warn("report not delivered", "tank", s.Tank, "peer", peer, "attempts", r.Attempts, "err", r.Err)
	}
	return r
}

func (s *Sensor) jitter() time.Duration {
	if s.Jitter <= 0 {
		return 0
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano() + int64(s.Tank)))
	}
	return time.Duration(s.rng.Int63n(int64(s.Jitter) + 1))
}

func (s *Sensor) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
