// Package channel wraps an MQTT client connection behind the minimal
// publish/subscribe surface used by the sender and the receiver.
package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/m-lab/filexfer/logging"
)

// ErrNotConnected is returned when the initial connection cannot be
// established.
var ErrNotConnected = errors.New("not connected")

// Message is a delivered publication.
type Message struct {
	Topic     string
	QoS       byte
	Duplicate bool
	Retained  bool
	Payload   []byte
}

// Handler is invoked once per delivered message. Handlers run on the
// client's delivery goroutines and may publish.
type Handler func(Message)

// Channel is an MQTT connection.
type Channel interface {
	// Subscribe blocks until the broker acknowledges the subscription.
	Subscribe(ctx context.Context, pattern string, qos byte, h Handler) error
	// Publish blocks until the publish handshake for |qos| completes.
	Publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error
	Close()
}

// Config configures Dial.
type Config struct {
	// Broker is host:port or a full URL such as tcp://host:1883.
	Broker         string
	ClientID       string
	KeepAlive      time.Duration
	CleanSession   bool
	ConnectTimeout time.Duration
}

type subscription struct {
	qos     byte
	handler Handler
}

// MQTT is a Channel backed by a paho client.
type MQTT struct {
	client mqtt.Client

	mu   sync.Mutex
	subs map[string]subscription
}

// Dial connects to the broker named in |cfg|.
func Dial(ctx context.Context, cfg Config) (*MQTT, error) {
	m := &MQTT{subs: make(map[string]subscription)}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(cfg.Broker))
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(cfg.CleanSession)
	opts.SetKeepAlive(cfg.KeepAlive)
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}
	// Handlers publish acks from within the delivery callback, which
	// would deadlock an ordered client.
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(m.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logging.Logger.WithError(err).Warn("mqtt connection lost")
	})
	m.client = mqtt.NewClient(opts)

	if err := wait(ctx, m.client.Connect()); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotConnected, cfg.Broker, err)
	}
	return m, nil
}

// onConnect restores subscriptions after a reconnect. It runs on a paho
// goroutine and must not block on the tokens.
func (m *MQTT) onConnect(c mqtt.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for pattern, s := range m.subs {
		logging.Logger.Debugf("resubscribing to %s", pattern)
		c.Subscribe(pattern, s.qos, wrap(s.handler))
	}
}

// Subscribe implements Channel.
func (m *MQTT) Subscribe(ctx context.Context, pattern string, qos byte, h Handler) error {
	m.mu.Lock()
	m.subs[pattern] = subscription{qos: qos, handler: h}
	m.mu.Unlock()
	if err := wait(ctx, m.client.Subscribe(pattern, qos, wrap(h))); err != nil {
		return fmt.Errorf("subscribe %s: %w", pattern, err)
	}
	return nil
}

// Publish implements Channel.
func (m *MQTT) Publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error {
	if err := wait(ctx, m.client.Publish(topic, qos, retain, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects, allowing in-flight work a short grace period.
func (m *MQTT) Close() {
	m.client.Disconnect(250)
}

func wrap(h Handler) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		h(Message{
			Topic:     msg.Topic(),
			QoS:       msg.Qos(),
			Duplicate: msg.Duplicate(),
			Retained:  msg.Retained(),
			Payload:   msg.Payload(),
		})
	}
}

// wait blocks until |t| completes or |ctx| is done.
func wait(ctx context.Context, t mqtt.Token) error {
	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}
