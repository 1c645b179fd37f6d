// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/alarm"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/freshness"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/protocol"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/sampler"
	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/transport"
)

// Node identifies the process on the network.
type Node struct {
	Name string        `yaml:"name"`
	Addr string        `yaml:"addr"`
	Role protocol.Role `yaml:"role"`
	Tank uint8         `yaml:"tank"`
}

// Peer is a known remote node.
type Peer struct {
	Name string        `yaml:"name"`
	Addr string        `yaml:"addr"`
	Role protocol.Role `yaml:"role"`
	Tank uint8         `yaml:"tank"`
}

// Transport configures the broker link and channel selection.
type Transport struct {
	Broker       string         `yaml:"broker"`
	TopicPrefix  string         `yaml:"topic_prefix"`
	Network      string         `yaml:"network"`
	Channels     map[string]int `yaml:"channels"`
	SendTimeout  time.Duration  `yaml:"send_timeout"`
	RetryBackoff time.Duration  `yaml:"retry_backoff"`
}

// Timing gathers every timing constant the nodes use.
type Timing struct {
	Pulse              time.Duration `yaml:"pulse"`
	ForceOnCeiling     time.Duration `yaml:"force_on_ceiling"`
	Snooze             time.Duration `yaml:"snooze"`
	SnoozeCeiling      time.Duration `yaml:"snooze_ceiling"`
	StaleAfter         time.Duration `yaml:"stale_after"`
	OfflineAfter       time.Duration `yaml:"offline_after"`
	Tick               time.Duration `yaml:"tick"`
	DiagnosticInterval time.Duration `yaml:"diagnostic_interval"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	TriggerCM          float64       `yaml:"trigger_cm"`
}

// Sensor configures the sensor cycle.
type Sensor struct {
	UART         string        `yaml:"uart"`
	BatteryMV    uint16        `yaml:"battery_mv"`
	SampleWindow time.Duration `yaml:"sample_window"`
	MaxSamples   int           `yaml:"max_samples"`
	Sleep        time.Duration `yaml:"sleep"`
	Jitter       time.Duration `yaml:"jitter"`
}

// HTTP holds a listen address.
type HTTP struct {
	Addr string `yaml:"http_addr"`
}

// Log selects the slog handler.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Sink selects where accepted rows are forwarded.
type Sink struct {
	Stdout      string `yaml:"stdout"`
	File        string `yaml:"file"`
	CommandFile string `yaml:"command_file"`
}

// Config is the root configuration of a tankmon node.
type Config struct {
	Node       Node      `yaml:"node"`
	Peers      []Peer    `yaml:"peers"`
	Transport  Transport `yaml:"transport"`
	Timing     Timing    `yaml:"timing"`
	Sensor     Sensor    `yaml:"sensor"`
	Aggregator HTTP      `yaml:"aggregator"`
	Alarm      HTTP      `yaml:"alarm"`
	Log        Log       `yaml:"log"`
	Sink       Sink      `yaml:"sink"`
}

// Default returns a configuration with every timing and transport default set.
func Default() Config {
	a := alarm.DefaultConfig()
	send := transport.DefaultSendConfig()
	s := sampler.DefaultConfig()
	return Config{
		Transport: Transport{
			Broker:       "tcp://localhost:1883",
			TopicPrefix:  "tankmon",
			SendTimeout:  send.Timeout,
			RetryBackoff: send.Backoff,
		},
		Timing: Timing{
			Pulse:              a.Pulse,
			ForceOnCeiling:     a.ForceOnCeiling,
			Snooze:             a.Snooze,
			SnoozeCeiling:      a.SnoozeCeiling,
			StaleAfter:         a.StaleAfter,
			OfflineAfter:       freshness.DefaultConfig().OfflineAfter,
			Tick:               a.Tick,
			DiagnosticInterval: a.DiagnosticInterval,
			HeartbeatInterval:  10 * time.Second,
			TriggerCM:          a.TriggerCM,
		},
		Sensor: Sensor{
			BatteryMV:    3700,
			SampleWindow: s.Window,
			MaxSamples:   s.MaxSamples,
			Sleep:        120 * time.Second,
			Jitter:       2 * time.Second,
		},
		Aggregator: HTTP{Addr: ":8080"},
		Alarm:      HTTP{Addr: ":8081"},
		Log:        Log{Level: "info", Format: "text"},
		Sink:       Sink{Stdout: "none"},
	}
}

// Load validates configPath against the CUE schema at cueSchemaPath (or the
// embedded schema when empty), decodes it over the defaults and applies
// environment overrides.
func Load(configPath, cueSchemaPath string) (*Config, error) {
	if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", configPath, err)
	}
	cfg.applyEnv()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("TANKMON_BROKER"); v != "" {
		c.Transport.Broker = v
	}
	if v := os.Getenv("TANKMON_NODE"); v != "" {
		c.Node.Addr = v
	}
}

// AlarmConfig builds the alarm state machine policy.
func (c *Config) AlarmConfig() alarm.Config {
	return alarm.Config{
		Pulse:              c.Timing.Pulse,
		ForceOnCeiling:     c.Timing.ForceOnCeiling,
		Snooze:             c.Timing.Snooze,
		SnoozeCeiling:      c.Timing.SnoozeCeiling,
		StaleAfter:         c.Timing.StaleAfter,
		TriggerCM:          c.Timing.TriggerCM,
		Tick:               c.Timing.Tick,
		DiagnosticInterval: c.Timing.DiagnosticInterval,
	}
}

// FreshnessConfig builds the aggregator cache policy.
func (c *Config) FreshnessConfig() freshness.Config {
	f := freshness.DefaultConfig()
	if c.Timing.OfflineAfter > 0 {
		f.OfflineAfter = c.Timing.OfflineAfter
	}
	if c.Timing.TriggerCM > 0 {
		f.RiskCM = c.Timing.TriggerCM
	}
	return f
}

// SamplerConfig builds the sensor sampling window.
func (c *Config) SamplerConfig() sampler.Config {
	s := sampler.DefaultConfig()
	if c.Sensor.SampleWindow > 0 {
		s.Window = c.Sensor.SampleWindow
	}
	if c.Sensor.MaxSamples > 0 {
		s.MaxSamples = c.Sensor.MaxSamples
	}
	return s
}

// SendConfig builds the bounded-wait send policy.
func (c *Config) SendConfig() transport.SendConfig {
	s := transport.DefaultSendConfig()
	if c.Transport.SendTimeout > 0 {
		s.Timeout = c.Transport.SendTimeout
	}
	if c.Transport.RetryBackoff > 0 {
		s.Backoff = c.Transport.RetryBackoff
	}
	return s
}

// Channel resolves the configured network name to a radio channel.
func (c *Config) Channel() int {
	return transport.StaticResolver{Table: c.Transport.Channels}.ResolveChannel(c.Transport.Network)
}

// MQTTConfig builds the broker link settings for this node.
func (c *Config) MQTTConfig() transport.MQTTConfig {
	return transport.MQTTConfig{
		Broker:      c.Transport.Broker,
		TopicPrefix: c.Transport.TopicPrefix,
		Channel:     c.Channel(),
		Addr:        c.Node.Addr,
		QoS:         1,
	}
}

// Directory builds the sender allow-list from the peer table.
func (c *Config) Directory() *protocol.Directory {
	peers := make([]protocol.Peer, 0, len(c.Peers))
	for _, p := range c.Peers {
		peers = append(peers, protocol.Peer{Name: p.Name, Addr: p.Addr, Role: p.Role, Tank: p.Tank})
	}
	return protocol.NewDirectory(peers)
}
