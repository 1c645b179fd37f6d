package main

import (
	"context"
	"fmt"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/config"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/logging"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/protocol"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/transport"
)

// dialLink connects this node to the broker on the resolved channel.
func dialLink(ctx context.Context, cfg *config.Config) (transport.Link, error) {
	if cfg.Node.Addr == "" {
		return nil, fmt.Errorf("node.addr is required")
	}
	mc := cfg.MQTTConfig()
	logging.FromContext(ctx).Info("joining network", "network", cfg.Transport.Network, "channel", mc.Channel, "broker", mc.Broker, "addr", mc.Addr)
	link, err := transport.DialMQTT(mc, logging.FromContext(ctx))
	if err != nil {
		return nil, err
	}
	return link, nil
}

// peerAddr returns the address of the first configured peer with role.
func peerAddr(dir *protocol.Directory, role protocol.Role) (string, error) {
	p, ok := dir.First(role)
	if !ok {
		return "", fmt.Errorf("no %s peer configured", role)
	}
	return p.Addr, nil
}

func requireRole(cfg *config.Config, role protocol.Role) error {
	if cfg.Node.Role != role {
		return fmt.Errorf("config %s describes a %s node, not a %s", configPath, cfg.Node.Role, role)
	}
	return nil
}
