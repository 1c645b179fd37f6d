package main

import (
	"fmt"
	"io"
	"net"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/config"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/protocol"
)

var (
	identityRole string
	identityTank uint8
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Print this host's hardware addresses",
	Long:  "identity lists the hardware addresses of local interfaces and prints a peer entry to paste into the other nodes' configuration.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ifaces, err := net.Interfaces()
		if err != nil {
			return err
		}
		return writeIdentity(cmd.OutOrStdout(), ifaces, protocol.Role(identityRole), identityTank)
	},
}

func init() {
	identityCmd.Flags().StringVar(&identityRole, "role", string(protocol.RoleSensor), "Role of this node: sensor, alarm or aggregator")
	identityCmd.Flags().Uint8Var(&identityTank, "tank", 0, "Tank index for a sensor node")
}

// writeIdentity prints each interface with a hardware address, then a peer
// snippet for the first one.
func writeIdentity(w io.Writer, ifaces []net.Interface, role protocol.Role, tank uint8) error {
	switch role {
	case protocol.RoleSensor, protocol.RoleAlarm, protocol.RoleAggregator:
	default:
		return fmt.Errorf("unknown role %q", role)
	}
	if role == protocol.RoleSensor && tank >= protocol.MaxTanks {
		return fmt.Errorf("tank %d out of range", tank)
	}

	var first string
	for _, ifc := range ifaces {
		if len(ifc.HardwareAddr) == 0 || ifc.Flags&net.FlagLoopback != 0 {
			continue
		}
		addr := protocol.NormalizeAddr(ifc.HardwareAddr.String())
		fmt.Fprintf(w, "%-12s %s\n", ifc.Name, addr)
		if first == "" {
			first = addr
		}
	}
	if first == "" {
		return fmt.Errorf("no interface with a hardware address")
	}

	peer := config.Peer{Name: string(role), Addr: first, Role: role}
	if role == protocol.RoleSensor {
		peer.Name = fmt.Sprintf("tank-%d", tank)
		peer.Tank = tank
	}
	out, err := yaml.Marshal(map[string][]config.Peer{"peers": {peer}})
	if err != nil {
		return err
	}
	fmt.Fprintln(w)
	_, err = w.Write(out)
	return err
}
