package main

import (
	"bytes"
	"net"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/config"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/protocol"
)

func testInterfaces(t *testing.T) []net.Interface {
	t.Helper()
	hw, err := net.ParseMAC("24-6f-28-00-00-02")
	if err != nil {
		t.Fatal(err)
	}
	return []net.Interface{
		{Name: "lo", Flags: net.FlagLoopback},
		{Name: "wlan0", HardwareAddr: hw},
	}
}

func TestWriteIdentitySensor(t *testing.T) {
	var buf bytes.Buffer
	if err := writeIdentity(&buf, testInterfaces(t), protocol.RoleSensor, 1); err != nil {
		t.Fatalf("writeIdentity: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "wlan0") || strings.Contains(out, "lo ") {
		t.Fatalf("unexpected interface list:\n%s", out)
	}

	var doc struct {
		Peers []config.Peer `yaml:"peers"`
	}
	snippet := out[strings.Index(out, "peers:"):]
	if err := yaml.Unmarshal([]byte(snippet), &doc); err != nil {
		t.Fatalf("snippet is not YAML: %v\n%s", err, snippet)
	}
	if len(doc.Peers) != 1 {
		t.Fatalf("peers = %+v", doc.Peers)
	}
	p := doc.Peers[0]
	if p.Addr != "24:6F:28:00:00:02" || p.Role != protocol.RoleSensor || p.Tank != 1 || p.Name != "tank-1" {
		t.Fatalf("peer = %+v", p)
	}
}

func TestWriteIdentityErrors(t *testing.T) {
	tests := []struct {
		name   string
		ifaces []net.Interface
		role   protocol.Role
		tank   uint8
	}{
		{"unknown role", testInterfaces(t), protocol.Role("relay"), 0},
		{"tank out of range", testInterfaces(t), protocol.RoleSensor, protocol.MaxTanks},
		{"no hardware address", []net.Interface{{Name: "lo", Flags: net.FlagLoopback}}, protocol.RoleAlarm, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := writeIdentity(&bytes.Buffer{}, tt.ifaces, tt.role, tt.tank); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestSimulatedPeers(t *testing.T) {
	dir := protocol.NewDirectory(simulatedPeers(3))
	if dir.Len() != 5 {
		t.Fatalf("Len = %d, want 5", dir.Len())
	}
	p, ok := dir.Lookup(simSensorAddr(2))
	if !ok || p.Role != protocol.RoleSensor || p.Tank != 2 {
		t.Fatalf("tank 2 sensor = %+v, %v", p, ok)
	}
	if a, ok := dir.First(protocol.RoleAlarm); !ok || a.Addr != simAlarmAddr {
		t.Fatalf("alarm peer = %+v, %v", a, ok)
	}
}
