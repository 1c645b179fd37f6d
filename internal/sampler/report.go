package sampler

import (
	"math"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/protocol"
)

// ToReport packages a reading for the wire. An invalid reading is sent with a
// zero distance so receivers still learn the node is alive.
func ToReport(tank uint8, r Reading, batteryMV uint16) protocol.SensorReport {
	var mm uint16
	if r.Valid && r.Samples > 0 && !math.IsNaN(r.CM) && !math.IsInf(r.CM, 0) {
		scaled := math.Round(r.CM * 10)
		switch {
		case scaled > math.MaxUint16:
			mm = math.MaxUint16
		case scaled > 0:
			mm = uint16(scaled)
		}
	}
	return protocol.NewSensorReport(tank, mm, batteryMV)
}
