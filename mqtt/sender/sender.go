// Package sender publishes files over MQTT and times each publish until the
// receiver acknowledges it.
package sender

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/apex/log"

	"github.com/m-lab/filexfer/logging"
	"github.com/m-lab/filexfer/metrics"
	"github.com/m-lab/filexfer/mqtt/ack"
	"github.com/m-lab/filexfer/mqtt/channel"
	"github.com/m-lab/filexfer/mqtt/spec"
	"github.com/m-lab/filexfer/mqtt/topic"
	"github.com/m-lab/filexfer/plan"
	"github.com/m-lab/filexfer/results"
)

// Config configures a Sender.
type Config struct {
	Topics topic.Keys
	QoS    byte
	// Timeout bounds one repetition, measured from the publish call.
	Timeout time.Duration
	// PollInterval is the interval between two checks of the registry.
	PollInterval time.Duration
	// DataDir holds the files named by plan entries.
	DataDir string
}

// Sender runs one repetition at a time: a single file is in flight until
// it is acknowledged or times out.
type Sender struct {
	ch   channel.Channel
	acks *ack.Registry
	cfg  Config
}

// New creates a Sender. Acks delivered by |ch| are recorded in |acks|.
func New(ch channel.Channel, acks *ack.Registry, cfg Config) *Sender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = spec.DefaultAckTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = spec.DefaultPollInterval
	}
	return &Sender{ch: ch, acks: acks, cfg: cfg}
}

// Start subscribes to acknowledgements. It must be called before Transfer.
func (s *Sender) Start(ctx context.Context) error {
	return s.ch.Subscribe(ctx, s.cfg.Topics.AckPattern(), s.cfg.QoS, s.HandleAck)
}

// HandleAck records |m| in the registry when it is an acknowledgement.
func (s *Sender) HandleAck(m channel.Message) {
	name, ok := s.cfg.Topics.ParseAck(m.Topic)
	if !ok || string(m.Payload) != spec.AckPayload {
		return
	}
	if !s.acks.NoteAck(name) {
		logging.Logger.WithField("file", name).Debug("dropped ack of a timed out repetition")
		metrics.LateAcks.Inc()
		return
	}
	metrics.AcksReceived.Inc()
}

// Transfer sends the file of |e| e.Repeats times and returns one row per
// completed repetition, acknowledged or timed out. A missing file returns
// an error satisfying errors.Is(err, fs.ErrNotExist). When |ctx| is
// cancelled, the rows completed so far are returned with ctx.Err().
func (s *Sender) Transfer(ctx context.Context, e plan.Entry) ([]results.Row, error) {
	payload, err := os.ReadFile(filepath.Join(s.cfg.DataDir, e.File))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", e.File, err)
	}
	// Topics carry the base name: the receiver rejects names with a slash.
	name := filepath.Base(e.File)
	logging.Logger.WithFields(log.Fields{
		"file":    name,
		"size":    len(payload),
		"repeats": e.Repeats,
	}).Infof("starting %d transfers: %s (%d bytes)", e.Repeats, name, len(payload))

	rows := make([]results.Row, 0, e.Repeats)
	for i := 1; i <= e.Repeats; i++ {
		row, ok, err := s.once(ctx, name, payload, i, e.Repeats)
		if err != nil {
			return rows, err
		}
		if ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// once runs repetition |i|. It returns false when the publish failed for a
// reason other than the deadline, in which case no row is produced.
func (s *Sender) once(ctx context.Context, name string, payload []byte, i, n int) (results.Row, bool, error) {
	variant := spec.Variant(s.cfg.QoS)
	s.acks.Discard(name)

	start := time.Now()
	deadline := start.Add(s.cfg.Timeout)
	pctx, cancel := context.WithDeadline(ctx, deadline)
	err := s.ch.Publish(pctx, s.cfg.Topics.File(name), s.cfg.QoS, false, payload)
	cancel()

	acked := false
	switch {
	case ctx.Err() != nil:
		return results.Row{}, false, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		// The publish itself consumed the whole budget. An ack may still
		// follow; it must not count for the next repetition.
		s.acks.ConsumeOrForfeit(name, time.Now().Add(s.cfg.Timeout))
	case err != nil:
		logging.Logger.WithError(err).WithField("file", name).Warnf("%s #%d/%d: publish failed", name, i, n)
		metrics.Transfers.WithLabelValues(spec.Protocol, variant, metrics.ResultPublishError).Inc()
		return results.Row{}, false, nil
	default:
		acked, err = s.await(ctx, name, deadline)
		if err != nil {
			return results.Row{}, false, err
		}
	}

	elapsed := time.Since(start)
	row := results.NewRow(spec.Protocol, variant, name, len(payload), i, elapsed)
	row.TimedOut = !acked
	fields := log.Fields{"file": name, "iteration": i, "elapsed": elapsed.Seconds()}
	if acked {
		logging.Logger.WithFields(fields).Infof("%s #%d/%d: %.4fs  %.2f MB/s", name, i, n, elapsed.Seconds(), row.Throughput/1e6)
		metrics.Transfers.WithLabelValues(spec.Protocol, variant, metrics.ResultAcked).Inc()
	} else {
		logging.Logger.WithFields(fields).Warnf("%s #%d/%d: ACK timeout after %.1fs", name, i, n, s.cfg.Timeout.Seconds())
		metrics.Transfers.WithLabelValues(spec.Protocol, variant, metrics.ResultTimeout).Inc()
	}
	metrics.TransferDuration.WithLabelValues(spec.Protocol, variant).Observe(elapsed.Seconds())
	return row, true, nil
}

// await polls the registry for |name| until |deadline|. The registry's
// notification wakes the loop early; the ticker bounds the gap between
// two checks either way. At the deadline the repetition forfeits its ack.
func (s *Sender) await(ctx context.Context, name string, deadline time.Time) (bool, error) {
	if s.acks.Consume(name) {
		return true, nil
	}
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
			return s.acks.ConsumeOrForfeit(name, time.Now().Add(s.cfg.Timeout)), nil
		case <-s.acks.Notify():
		case <-ticker.C:
		}
		if s.acks.Consume(name) {
			return true, nil
		}
	}
}
