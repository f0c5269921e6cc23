// Package channeltest provides an in-memory channel.Channel broker for
// tests.
package channeltest

import (
	"context"
	"strings"
	"sync"

	"github.com/m-lab/filexfer/mqtt/channel"
)

type sub struct {
	pattern string
	handler channel.Handler
}

// Broker routes publications between its clients. Deliveries run on
// their own goroutines, like a network broker, so handlers may publish.
type Broker struct {
	// Filter, when set, drops messages for which it returns false. It is
	// read when a message is published.
	Filter func(channel.Message) bool

	mu        sync.Mutex
	subs      []sub
	published []channel.Message
	wg        sync.WaitGroup
}

// NewBroker returns an empty Broker.
func NewBroker() *Broker {
	return &Broker{}
}

// Client returns a new connection to the broker.
func (b *Broker) Client() channel.Channel {
	return &client{b: b}
}

// Published returns a copy of every message published so far, including
// those dropped by Filter.
func (b *Broker) Published() []channel.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]channel.Message(nil), b.published...)
}

// Wait blocks until all pending deliveries have returned.
func (b *Broker) Wait() {
	b.wg.Wait()
}

func (b *Broker) publish(m channel.Message) {
	b.mu.Lock()
	b.published = append(b.published, m)
	subs := append([]sub(nil), b.subs...)
	b.mu.Unlock()
	if b.Filter != nil && !b.Filter(m) {
		return
	}
	for _, s := range subs {
		if Match(s.pattern, m.Topic) {
			b.wg.Add(1)
			go func(h channel.Handler) {
				defer b.wg.Done()
				h(m)
			}(s.handler)
		}
	}
}

type client struct {
	b *Broker
}

func (c *client) Subscribe(ctx context.Context, pattern string, qos byte, h channel.Handler) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	c.b.subs = append(c.b.subs, sub{pattern: pattern, handler: h})
	return nil
}

func (c *client) Publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.b.publish(channel.Message{
		Topic:    topic,
		QoS:      qos,
		Retained: retain,
		Payload:  append([]byte(nil), payload...),
	})
	return nil
}

func (c *client) Close() {}

// Match reports whether |topic| matches the MQTT topic filter |filter|,
// with + matching one level and a trailing # matching the rest.
func Match(filter, topic string) bool {
	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")
	for i, level := range f {
		if level == "#" {
			return i == len(f)-1
		}
		if i >= len(t) {
			return false
		}
		if level != "+" && level != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}
