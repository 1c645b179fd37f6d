// Package command translates dashboard actions into alarm node commands.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/logging"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/metrics"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/protocol"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/telemetry"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/transport"
)

var (
	ErrUnknownAction    = errors.New("unknown action")
	ErrMalformedRequest = errors.New("malformed request")
)

var actions = map[string]protocol.Command{
	"test":         protocol.NewCommand(protocol.TargetAll, protocol.ForceOn{Duration: 5 * time.Second}),
	"clear_snooze": protocol.NewCommand(protocol.TargetAll, protocol.ClearSnooze{}),
	"snooze_10m":   protocol.NewCommand(protocol.TargetAll, protocol.SnoozeFor{Duration: 10 * time.Minute}),
	"snooze_20m":   protocol.NewCommand(protocol.TargetAll, protocol.SnoozeFor{Duration: 20 * time.Minute}),
	"snooze_1h":    protocol.NewCommand(protocol.TargetAll, protocol.SnoozeFor{Duration: time.Hour}),
}

// Legacy GET endpoints predate the action API.
var legacy = map[string]protocol.Command{
	"force_on":     protocol.NewCommand(protocol.TargetAll, protocol.ForceOn{Duration: 5 * time.Second}),
	"force_off":    protocol.NewCommand(protocol.TargetAll, protocol.ForceOff{}),
	"snooze":       protocol.NewCommand(protocol.TargetAll, protocol.Snooze{}),
	"clear_snooze": protocol.NewCommand(protocol.TargetAll, protocol.ClearSnooze{}),
}

// Lookup returns the command for a dashboard action.
func Lookup(action string) (protocol.Command, error) {
	c, ok := actions[action]
	if !ok {
		return protocol.Command{}, fmt.Errorf("%q: %w", action, ErrUnknownAction)
	}
	return c, nil
}

// Actions lists the dashboard action names in sorted order.
func Actions() []string {
	names := make([]string, 0, len(actions))
	for name := range actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupLegacy returns the command for a legacy endpoint name.
func LookupLegacy(name string) (protocol.Command, error) {
	c, ok := legacy[name]
	if !ok {
		return protocol.Command{}, fmt.Errorf("%q: %w", name, ErrUnknownAction)
	}
	return c, nil
}

// Sender is the transport used to reach the alarm node.
type Sender interface {
	Send(ctx context.Context, peer string, data []byte) transport.Result
}

// Recorder receives one row per dispatched command.
type Recorder interface {
	WriteCommand(row telemetry.CommandRow) error
}

// Result is the outcome of a dispatch.
type Result struct {
	ID       string
	Action   string
	Command  protocol.Command
	OK       bool
	Attempts int
	Err      error
}

// Router sends commands to a single alarm node.
type Router struct {
	sender   Sender
	peer     string
	recorder Recorder
	now      func() time.Time
}

// Option customizes a Router.
type Option func(*Router)

// WithRecorder records every dispatch.
func WithRecorder(rec Recorder) Option {
	return func(r *Router) {
		r.recorder = rec
	}
}

// NewRouter returns a router that targets alarmPeer.
func NewRouter(sender Sender, alarmPeer string, opts ...Option) *Router {
	r := &Router{sender: sender, peer: alarmPeer, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dispatch maps action to a command and sends it. An unknown action returns
// ErrUnknownAction without touching the transport. Transport failures are
// reported in the Result, not as an error.
func (r *Router) Dispatch(ctx context.Context, action string) (Result, error) {
	cmd, err := Lookup(action)
	if err != nil {
		metrics.IncCommand("unknown", "rejected")
		return Result{Action: action}, err
	}
	return r.Send(ctx, action, cmd), nil
}

// Send encodes and transmits cmd, labelled with action.
func (r *Router) Send(ctx context.Context, action string, cmd protocol.Command) Result {
	log := logging.FromContext(ctx)
	res := Result{ID: uuid.NewString(), Action: action, Command: cmd}

	data, err := cmd.Encode()
	if err != nil {
		res.Err = fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	} else {
		tr := r.sender.Send(ctx, r.peer, data)
		res.OK, res.Attempts, res.Err = tr.OK(), tr.Attempts, tr.Err
	}

	result := "ok"
	if !res.OK {
		result = "failed"
		log.Warn("command not delivered", "id", res.ID, "action", action, "cmd", cmd.String(), "err", res.Err)
	} else {
		log.Info("command sent", "id", res.ID, "action", action, "cmd", cmd.String(), "attempts", res.Attempts)
	}
	metrics.IncCommand(action, result)
	r.record(log, res)
	return res
}

func (r *Router) record(log *slog.Logger, res Result) {
	if r.recorder == nil {
		return
	}
	row := telemetry.CommandRow{
		ID:        res.ID,
		Action:    res.Action,
		Target:    res.Command.Target,
		OK:        res.OK,
		Attempts:  res.Attempts,
		Timestamp: r.now().UTC(),
	}
	if res.Command.Op != nil {
		row.Command = res.Command.Op.Code().String()
		switch op := res.Command.Op.(type) {
		case protocol.ForceOn:
			row.DurationMS = op.Duration.Milliseconds()
		case protocol.SnoozeFor:
			row.DurationMS = op.Duration.Milliseconds()
		}
	}
	if res.Err != nil {
		row.Error = res.Err.Error()
	}
	if err := r.recorder.WriteCommand(row); err != nil {
		log.Warn("command sink write failed", "id", res.ID, "action", res.Action, "err", err)
	}
}
