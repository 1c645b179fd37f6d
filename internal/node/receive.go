// Package node wires the protocol, state machines and transport into the three
// node roles: sensor, alarm and aggregator.
package node

import (
	"log/slog"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/metrics"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/protocol"
)

// accept decodes data and checks it against the allow-list. Rejected packets
// are counted and logged at debug level; they never stop the node.
func accept(log *slog.Logger, dir *protocol.Directory, sender string, data []byte) (protocol.Packet, bool) {
	pkt, err := protocol.Decode(data)
	if err == nil {
		err = dir.Authorize(sender, pkt)
	}
	if err != nil {
		reason := protocol.Reason(err)
		metrics.IncPacketDropped(reason)
		log.Debug("packet dropped", "peer", sender, "bytes", len(data), "reason", reason, "err", err)
		return nil, false
	}
	switch pkt.(type) {
	case protocol.SensorReport:
		metrics.IncPacketReceived("report")
	case protocol.Command:
		metrics.IncPacketReceived("command")
	}
	return pkt, true
}
