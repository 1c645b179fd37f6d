package protocol

import (
	"encoding/binary"
	"fmt"
)

// SensorReport is the 8-byte reading a sensor node broadcasts once per cycle.
// Layout: Version(1) | Tank(1) | DistanceMM(2) | BatteryMV(2) | Flags(1) | CRC8(1),
// multi-byte fields little-endian.
type SensorReport struct {
	Tank       uint8
	DistanceMM uint16
	BatteryMV  uint16
	Flags      uint8
}

// NewSensorReport builds a report and derives its flags from the distance.
func NewSensorReport(tank uint8, distanceMM, batteryMV uint16) SensorReport {
	r := SensorReport{Tank: tank, DistanceMM: distanceMM, BatteryMV: batteryMV}
	if distanceMM > 0 {
		r.Flags |= FlagValid
		if distanceMM <= RiskThresholdMM {
			r.Flags |= FlagAtRisk
		}
	}
	return r
}

// Valid reports whether the sensor produced a usable median.
func (r SensorReport) Valid() bool {
	return r.Flags&FlagValid != 0 && r.DistanceMM > 0
}

// AtRisk returns the sender's at-risk flag.
func (r SensorReport) AtRisk() bool {
	return r.Valid() && r.Flags&FlagAtRisk != 0
}

// DistanceCM returns the distance in centimetres, or false when the report is invalid.
func (r SensorReport) DistanceCM() (float64, bool) {
	if !r.Valid() {
		return 0, false
	}
	return float64(r.DistanceMM) / 10, true
}

// Encode returns the wire form of r.
func (r SensorReport) Encode() []byte {
	buf := make([]byte, ReportSize)
	buf[0] = Version
	buf[1] = r.Tank
	binary.LittleEndian.PutUint16(buf[2:4], r.DistanceMM)
	binary.LittleEndian.PutUint16(buf[4:6], r.BatteryMV)
	buf[6] = r.Flags
	buf[ReportSize-1] = CRC8(buf[:ReportSize-1])
	return buf
}

func (r SensorReport) String() string {
	if cm, ok := r.DistanceCM(); ok {
		return fmt.Sprintf("tank=%d distance=%.1fcm battery=%dmV", r.Tank, cm, r.BatteryMV)
	}
	return fmt.Sprintf("tank=%d distance=invalid battery=%dmV", r.Tank, r.BatteryMV)
}

func (SensorReport) packet() {}

func decodeReport(data []byte) (SensorReport, error) {
	if data[0] != Version {
		return SensorReport{}, fmt.Errorf("report version %d: %w", data[0], ErrInvalidVersion)
	}
	if got, want := data[ReportSize-1], CRC8(data[:ReportSize-1]); got != want {
		return SensorReport{}, fmt.Errorf("report crc %#02x, want %#02x: %w", got, want, ErrInvalidChecksum)
	}
	if data[1] >= MaxTanks {
		return SensorReport{}, fmt.Errorf("report tank %d: %w", data[1], ErrInvalidTank)
	}
	return SensorReport{
		Tank:       data[1],
		DistanceMM: binary.LittleEndian.Uint16(data[2:4]),
		BatteryMV:  binary.LittleEndian.Uint16(data[4:6]),
		Flags:      data[6],
	}, nil
}
