// Package receiver implements the subscriber side of a transfer: it stores
// each received file and acknowledges it once the write has completed.
package receiver

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/apex/log"

	"github.com/m-lab/filexfer/logging"
	"github.com/m-lab/filexfer/metrics"
	"github.com/m-lab/filexfer/mqtt/channel"
	"github.com/m-lab/filexfer/mqtt/overhead"
	"github.com/m-lab/filexfer/mqtt/spec"
	"github.com/m-lab/filexfer/mqtt/topic"
	"github.com/m-lab/filexfer/results"
)

// Store persists a payload under a name derived from |name| and returns
// the path written.
type Store interface {
	Save(name string, data []byte) (string, error)
}

// OverheadSink records one row per received file.
type OverheadSink interface {
	WriteOverhead(results.OverheadRow) error
}

// Receiver handles files published on Topics.FilePattern().
type Receiver struct {
	ch     channel.Channel
	store  Store
	topics topic.Keys
	qos    byte

	mu   sync.Mutex
	sink OverheadSink // optional
}

// New creates a Receiver. |sink| may be nil.
func New(ch channel.Channel, store Store, topics topic.Keys, qos byte, sink OverheadSink) *Receiver {
	return &Receiver{ch: ch, store: store, topics: topics, qos: qos, sink: sink}
}

// Start subscribes to published files. Messages are handled on the
// channel's delivery goroutines until |ctx| is cancelled.
func (r *Receiver) Start(ctx context.Context) error {
	return r.ch.Subscribe(ctx, r.topics.FilePattern(), r.qos, func(m channel.Message) {
		if err := r.Handle(ctx, m); err != nil {
			logging.Logger.WithError(err).WithField("topic", m.Topic).Warn("file not acknowledged")
		}
	})
}

// Handle stores the payload of |m| and then acknowledges it. A message whose
// topic does not name a file is ignored. When the write fails no
// acknowledgement is sent and the sender times out.
func (r *Receiver) Handle(ctx context.Context, m channel.Message) error {
	name, ok := r.topics.ParseFile(m.Topic)
	if !ok {
		metrics.ReceivedMessages.WithLabelValues("ignored").Inc()
		return nil
	}
	receivedAt := time.Now()
	est := overhead.New(m.Topic, m.QoS, len(m.Payload))

	path, err := r.store.Save(name, m.Payload)
	if err != nil {
		metrics.ReceivedMessages.WithLabelValues("write-error").Inc()
		return fmt.Errorf("save %s: %w", name, err)
	}
	ackTopic := r.topics.Ack(name)
	if err := r.ch.Publish(ctx, ackTopic, r.qos, false, []byte(spec.AckPayload)); err != nil {
		metrics.ReceivedMessages.WithLabelValues("ack-error").Inc()
		return err
	}
	metrics.ReceivedMessages.WithLabelValues("acked").Inc()
	if !math.IsInf(est.Ratio, 0) {
		metrics.OverheadRatio.Observe(est.Ratio)
	}

	logging.Logger.WithFields(log.Fields{
		"topic":  m.Topic,
		"path":   path,
		"qos":    m.QoS,
		"dup":    m.Duplicate,
		"retain": m.Retained,
		"header": est.HeaderBytes,
	}).Infof("received %s: %d bytes, ratio %.6f", name, est.PayloadBytes, est.Ratio)

	if r.sink == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sink.WriteOverhead(results.OverheadRow{
		ReceivedAt:   receivedAt,
		Topic:        m.Topic,
		FileName:     name,
		QoS:          m.QoS,
		Duplicate:    m.Duplicate,
		Retained:     m.Retained,
		PayloadBytes: est.PayloadBytes,
		HeaderBytes:  est.HeaderBytes,
		TotalBytes:   est.TotalBytes,
		Ratio:        est.Ratio,
		AckTopic:     ackTopic,
	})
}
