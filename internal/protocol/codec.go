package protocol

import "fmt"

// Packet is either a SensorReport or a Command.
type Packet interface {
	packet()
}

// Decode parses and validates a datagram. It never mutates any state; callers
// drop the packet on error.
func Decode(data []byte) (Packet, error) {
	switch len(data) {
	case ReportSize:
		r, err := decodeReport(data)
		if err != nil {
			return nil, err
		}
		return r, nil
	case CommandSize:
		c, err := decodeCommand(data)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("decode %d bytes: %w", len(data), ErrWrongSize)
	}
}
