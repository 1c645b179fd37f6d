package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/logging"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/metrics"
)

// SendConfig bounds one send.
type SendConfig struct {
	// Timeout bounds each attempt.
	Timeout time.Duration
	// Backoff is the pause before the single retry.
	Backoff time.Duration
}

// DefaultSendConfig is a 300 ms wait with one retry after 100 ms.
func DefaultSendConfig() SendConfig {
	return SendConfig{Timeout: 300 * time.Millisecond, Backoff: 100 * time.Millisecond}
}

// Result is the resolved outcome of a send.
type Result struct {
	Peer     string
	Attempts int
	Elapsed  time.Duration
	Err      error
}

// OK reports whether the datagram was acknowledged.
func (r Result) OK() bool { return r.Err == nil }

// Sender wraps a Link with a bounded wait and exactly one retry.
type Sender struct {
	link Link
	cfg  SendConfig
}

// NewSender returns a Sender over link.
func NewSender(link Link, cfg SendConfig) *Sender {
	d := DefaultSendConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = d.Backoff
	}
	return &Sender{link: link, cfg: cfg}
}

// Send delivers data to peer. A failed first attempt is retried once after the
// backoff; a second failure is returned as ErrSendFailed or ErrAckTimeout.
func (s *Sender) Send(ctx context.Context, peer string, data []byte) Result {
	start := time.Now()
	res := Result{Peer: peer}

	for res.Attempts < 2 {
		if res.Attempts > 0 {
			logging.FromContext(ctx).Debug("retrying send", "peer", peer, "err", res.Err)
			select {
			case <-ctx.Done():
				res.Err = fmt.Errorf("send to %s: %w", peer, ctx.Err())
				return s.finish(res, start)
			case <-time.After(s.cfg.Backoff):
			}
		}
		res.Attempts++
		res.Err = s.attempt(ctx, peer, data)
		if res.Err == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	return s.finish(res, start)
}

func (s *Sender) attempt(ctx context.Context, peer string, data []byte) error {
	actx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	err := s.link.Send(actx, peer, data)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAckTimeout), errors.Is(err, ErrSendFailed):
		return err
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return fmt.Errorf("send to %s: %w", peer, ErrAckTimeout)
	default:
		return fmt.Errorf("send to %s: %w: %w", peer, ErrSendFailed, err)
	}
}

func (s *Sender) finish(res Result, start time.Time) Result {
	res.Elapsed = time.Since(start)
	result := "ok"
	switch {
	case res.Err == nil && res.Attempts > 1:
		result = "retried"
	case errors.Is(res.Err, ErrAckTimeout):
		result = "ack_timeout"
	case res.Err != nil:
		result = "failed"
	}
	metrics.ObserveSend(res.Peer, result, res.Elapsed)
	return res
}
