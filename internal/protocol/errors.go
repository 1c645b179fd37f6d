package protocol

import "errors"

var (
	ErrWrongSize       = errors.New("packet size matches no known layout")
	ErrInvalidVersion  = errors.New("unsupported protocol version")
	ErrInvalidChecksum = errors.New("checksum mismatch")
	ErrInvalidTank     = errors.New("tank id out of range")
	ErrInvalidType     = errors.New("invalid command type byte")
	ErrUnknownCommand  = errors.New("unknown command code")
	ErrSenderMismatch  = errors.New("tank id does not match sender")
	ErrUnknownSender   = errors.New("sender not in allow-list")
	ErrDurationRange   = errors.New("duration does not fit the wire field")
)

// Reason maps a protocol error to a short label suitable for logs and metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrWrongSize):
		return "wrong_size"
	case errors.Is(err, ErrInvalidVersion):
		return "invalid_version"
	case errors.Is(err, ErrInvalidChecksum):
		return "invalid_checksum"
	case errors.Is(err, ErrInvalidTank):
		return "invalid_tank"
	case errors.Is(err, ErrInvalidType):
		return "invalid_type"
	case errors.Is(err, ErrUnknownCommand):
		return "unknown_command"
	case errors.Is(err, ErrSenderMismatch):
		return "sender_mismatch"
	case errors.Is(err, ErrUnknownSender):
		return "unknown_sender"
	case errors.Is(err, ErrDurationRange):
		return "duration_range"
	default:
		return "other"
	}
}
