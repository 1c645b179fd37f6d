package protocol

import (
	"encoding/binary"
	"fmt"
	"time"
)

// CommandCode is the numeric cmd byte of a Command packet.
type CommandCode uint8

const (
	CodeForceOn      CommandCode = 1
	CodeForceOff     CommandCode = 2
	CodeSnooze5Min   CommandCode = 3
	CodeClearSnooze  CommandCode = 4
	CodeSnoozeCustom CommandCode = 5
)

func (c CommandCode) String() string {
	switch c {
	case CodeForceOn:
		return "force_on"
	case CodeForceOff:
		return "force_off"
	case CodeSnooze5Min:
		return "snooze_5min"
	case CodeClearSnooze:
		return "clear_snooze"
	case CodeSnoozeCustom:
		return "snooze_custom"
	default:
		return fmt.Sprintf("cmd(%d)", uint8(c))
	}
}

// Op is the decoded meaning of a command. The set of implementations is closed:
// ForceOn, ForceOff, Snooze, ClearSnooze and SnoozeFor.
type Op interface {
	Code() CommandCode
	op()
}

// ForceOn energizes the actuator for Duration (zero selects the receiver's default pulse).
type ForceOn struct{ Duration time.Duration }

// ForceOff deenergizes the actuator immediately.
type ForceOff struct{}

// Snooze applies the receiver's default snooze.
type Snooze struct{}

// ClearSnooze ends any snooze.
type ClearSnooze struct{}

// SnoozeFor snoozes for Duration (zero selects the receiver's default snooze).
type SnoozeFor struct{ Duration time.Duration }

func (ForceOn) Code() CommandCode     { return CodeForceOn }
func (ForceOff) Code() CommandCode    { return CodeForceOff }
func (Snooze) Code() CommandCode      { return CodeSnooze5Min }
func (ClearSnooze) Code() CommandCode { return CodeClearSnooze }
func (SnoozeFor) Code() CommandCode   { return CodeSnoozeCustom }

func (ForceOn) op()     {}
func (ForceOff) op()    {}
func (Snooze) op()      {}
func (ClearSnooze) op() {}
func (SnoozeFor) op()   {}

// Command is the 7-byte instruction the aggregator sends to the alarm node.
// Layout: Version(1) | Type(1)=0xC1 | Cmd(1) | Target(1) | Duration(2) | CRC8(1).
//
// The duration field is 16 bits wide. ForceOn carries milliseconds and
// SnoozeFor carries whole seconds so that snoozes up to an hour fit.
type Command struct {
	Target uint8
	Op     Op
}

// NewCommand returns a command for target, which is a tank id or TargetAll.
func NewCommand(target uint8, op Op) Command {
	return Command{Target: target, Op: op}
}

// AllTanks reports whether the command targets every tank.
func (c Command) AllTanks() bool { return c.Target == TargetAll }

// Encode returns the wire form of c.
func (c Command) Encode() ([]byte, error) {
	if c.Op == nil {
		return nil, fmt.Errorf("encode command: nil op: %w", ErrUnknownCommand)
	}
	if c.Target >= MaxTanks && c.Target != TargetAll {
		return nil, fmt.Errorf("encode command target %d: %w", c.Target, ErrInvalidTank)
	}
	units, err := durationUnits(c.Op)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, CommandSize)
	buf[0] = Version
	buf[1] = CommandType
	buf[2] = uint8(c.Op.Code())
	buf[3] = c.Target
	binary.LittleEndian.PutUint16(buf[4:6], units)
	buf[CommandSize-1] = CRC8(buf[:CommandSize-1])
	return buf, nil
}

func (c Command) String() string {
	if c.Op == nil {
		return fmt.Sprintf("cmd=<nil> target=%d", c.Target)
	}
	target := fmt.Sprintf("%d", c.Target)
	if c.AllTanks() {
		target = "all"
	}
	switch op := c.Op.(type) {
	case ForceOn:
		return fmt.Sprintf("cmd=%s target=%s duration=%s", op.Code(), target, op.Duration)
	case SnoozeFor:
		return fmt.Sprintf("cmd=%s target=%s duration=%s", op.Code(), target, op.Duration)
	default:
		return fmt.Sprintf("cmd=%s target=%s", op.Code(), target)
	}
}

func (Command) packet() {}

func durationUnits(op Op) (uint16, error) {
	var d, unit time.Duration
	switch o := op.(type) {
	case ForceOn:
		d, unit = o.Duration, time.Millisecond
	case SnoozeFor:
		d, unit = o.Duration, time.Second
	case ForceOff, Snooze, ClearSnooze:
		return 0, nil
	default:
		return 0, fmt.Errorf("encode command %T: %w", op, ErrUnknownCommand)
	}
	if d < 0 || d%unit != 0 || d/unit > maxDurationUnits {
		return 0, fmt.Errorf("encode %s duration %s: %w", op.Code(), d, ErrDurationRange)
	}
	return uint16(d / unit), nil
}

func decodeCommand(data []byte) (Command, error) {
	if data[0] != Version {
		return Command{}, fmt.Errorf("command version %d: %w", data[0], ErrInvalidVersion)
	}
	if got, want := data[CommandSize-1], CRC8(data[:CommandSize-1]); got != want {
		return Command{}, fmt.Errorf("command crc %#02x, want %#02x: %w", got, want, ErrInvalidChecksum)
	}
	if data[1] != CommandType {
		return Command{}, fmt.Errorf("command type %#02x: %w", data[1], ErrInvalidType)
	}
	target := data[3]
	if target >= MaxTanks && target != TargetAll {
		return Command{}, fmt.Errorf("command target %d: %w", target, ErrInvalidTank)
	}
	units := time.Duration(binary.LittleEndian.Uint16(data[4:6]))
	var op Op
	switch CommandCode(data[2]) {
	case CodeForceOn:
		op = ForceOn{Duration: units * time.Millisecond}
	case CodeForceOff:
		op = ForceOff{}
	case CodeSnooze5Min:
		op = Snooze{}
	case CodeClearSnooze:
		op = ClearSnooze{}
	case CodeSnoozeCustom:
		op = SnoozeFor{Duration: units * time.Second}
	default:
		return Command{}, fmt.Errorf("command code %d: %w", data[2], ErrUnknownCommand)
	}
	return Command{Target: target, Op: op}, nil
}
