package protocol

import (
	"fmt"
	"strings"
)

// Role identifies what a node does in the network.
type Role string

const (
	RoleSensor     Role = "sensor"
	RoleAlarm      Role = "alarm"
	RoleAggregator Role = "aggregator"
)

// Peer is a known node. Addr is the hardware-style address the transport reports
// as the sender. Tank is only meaningful for sensors.
type Peer struct {
	Name string
	Addr string
	Role Role
	Tank uint8
}

// Directory is the sender allow-list consulted before trusting a packet.
type Directory struct {
	byAddr map[string]Peer
}

// NewDirectory indexes peers by normalized address.
func NewDirectory(peers []Peer) *Directory {
	d := &Directory{byAddr: make(map[string]Peer, len(peers))}
	for _, p := range peers {
		d.byAddr[NormalizeAddr(p.Addr)] = p
	}
	return d
}

// Lookup returns the peer registered under addr.
func (d *Directory) Lookup(addr string) (Peer, bool) {
	p, ok := d.byAddr[NormalizeAddr(addr)]
	return p, ok
}

// First returns the first peer with the given role.
func (d *Directory) First(role Role) (Peer, bool) {
	var best Peer
	found := false
	for _, p := range d.byAddr {
		if p.Role != role {
			continue
		}
		if !found || p.Name < best.Name {
			best, found = p, true
		}
	}
	return best, found
}

// Authorize checks that pkt may come from sender. Reports must originate from the
// sensor registered for their tank; commands must originate from an aggregator.
func (d *Directory) Authorize(sender string, pkt Packet) error {
	p, ok := d.Lookup(sender)
	if !ok {
		return fmt.Errorf("sender %s: %w", sender, ErrUnknownSender)
	}
	switch v := pkt.(type) {
	case SensorReport:
		if p.Role != RoleSensor {
			return fmt.Errorf("report from %s peer %s: %w", p.Role, p.Name, ErrUnknownSender)
		}
		if v.Tank != p.Tank {
			return fmt.Errorf("peer %s is tank %d, packet claims %d: %w", p.Name, p.Tank, v.Tank, ErrSenderMismatch)
		}
	case Command:
		if p.Role != RoleAggregator {
			return fmt.Errorf("command from %s peer %s: %w", p.Role, p.Name, ErrUnknownSender)
		}
	}
	return nil
}

// NormalizeAddr upper-cases an address and unifies '-' separators to ':'.
func NormalizeAddr(addr string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(addr), "-", ":"))
}

// Len returns the number of known peers.
func (d *Directory) Len() int { return len(d.byAddr) }
