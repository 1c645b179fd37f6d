package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/stilesjesus/esp32-honey-tank-monitor/internal/protocol"
)

// MQTTConfig describes the broker that stands in for the shared radio channel.
type MQTTConfig struct {
	Broker      string
	TopicPrefix string
	Channel     int
	Addr        string
	QoS         byte
	KeepAlive   time.Duration
}

// mqttClient is the subset of mqtt.Client the link uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTLink carries datagrams over a broker. Each datagram is published to
// <prefix>/ch<channel>/<dst>/<src>; a node subscribes to its own address.
// The QoS 1 PUBACK plays the role of the radio's link-level ack.
type MQTTLink struct {
	cfg    MQTTConfig
	addr   string
	client mqttClient
	log    *slog.Logger

	mu sync.Mutex
	h  Handler
}

// DialMQTT connects to the broker and returns a link for cfg.Addr.
func DialMQTT(cfg MQTTConfig, log *slog.Logger) (*MQTTLink, error) {
	if log == nil {
		log = slog.Default()
	}
	l := newMQTTLink(cfg, nil, log)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID("tankmon-" + uuid.NewString()[:8])
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(l.cfg.KeepAlive)
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warn("mqtt connection lost", "err", err)
	})
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info("mqtt connected", "broker", cfg.Broker, "topic", l.inbox())
		l.subscribe()
	})

	client := mqtt.NewClient(opts)
	l.client = client
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", cfg.Broker, token.Error())
	}
	return l, nil
}

func newMQTTLink(cfg MQTTConfig, client mqttClient, log *slog.Logger) *MQTTLink {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "tankmon"
	}
	if cfg.Channel <= 0 {
		cfg.Channel = DefaultChannel
	}
	if cfg.QoS == 0 {
		cfg.QoS = 1
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 30 * time.Second
	}
	return &MQTTLink{cfg: cfg, addr: protocol.NormalizeAddr(cfg.Addr), client: client, log: log}
}

func (l *MQTTLink) Addr() string { return l.addr }

func (l *MQTTLink) topic(dst, src string) string {
	return fmt.Sprintf("%s/ch%d/%s/%s", l.cfg.TopicPrefix, l.cfg.Channel, dst, src)
}

func (l *MQTTLink) inbox() string { return l.topic(l.addr, "+") }

// Send publishes data and waits for the broker's acknowledgement.
func (l *MQTTLink) Send(ctx context.Context, peer string, data []byte) error {
	token := l.client.Publish(l.topic(protocol.NormalizeAddr(peer), l.addr), l.cfg.QoS, false, data)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish to %s: %w: %w", peer, ErrSendFailed, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", peer, ErrAckTimeout)
	}
}

// Listen registers h and subscribes to this node's inbox.
func (l *MQTTLink) Listen(h Handler) error {
	l.mu.Lock()
	l.h = h
	l.mu.Unlock()
	return l.subscribe()
}

func (l *MQTTLink) subscribe() error {
	l.mu.Lock()
	registered := l.h != nil
	l.mu.Unlock()
	if !registered || l.client == nil {
		return nil
	}
	token := l.client.Subscribe(l.inbox(), l.cfg.QoS, l.onMessage)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", l.inbox(), token.Error())
	}
	return nil
}

func (l *MQTTLink) onMessage(_ mqtt.Client, msg mqtt.Message) {
	parts := strings.Split(msg.Topic(), "/")
	if len(parts) < 2 {
		l.log.Debug("ignoring message on unexpected topic", "topic", msg.Topic())
		return
	}
	sender := parts[len(parts)-1]

	l.mu.Lock()
	h := l.h
	l.mu.Unlock()
	if h != nil {
		h(sender, append([]byte(nil), msg.Payload()...))
	}
}

// Close disconnects from the broker.
func (l *MQTTLink) Close() error {
	if l.client != nil {
		l.client.Disconnect(250)
	}
	return nil
}
