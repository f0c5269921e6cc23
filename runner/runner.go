// Package runner drives an experiment plan through a Transferer and
// appends the measurements to a result log.
package runner

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/apex/log"

	"github.com/m-lab/filexfer/logging"
	"github.com/m-lab/filexfer/metrics"
	"github.com/m-lab/filexfer/plan"
	"github.com/m-lab/filexfer/results"
)

// Transferer performs every repetition of one plan entry. When interrupted
// it returns the rows already completed along with the error.
type Transferer interface {
	Transfer(ctx context.Context, e plan.Entry) ([]results.Row, error)
}

// Sink stores result rows.
type Sink interface {
	WriteRows(rows []results.Row) error
}

// EntrySummary describes one completed plan entry.
type EntrySummary struct {
	RunID    string        `json:"run_id"`
	Protocol string        `json:"protocol"`
	File     string        `json:"file"`
	Rows     int           `json:"rows"`
	Timeouts int           `json:"timeouts"`
	P50      time.Duration `json:"p50_ns"`
	P99      time.Duration `json:"p99_ns"`
}

// SummaryStore keeps entry summaries outside of the process.
type SummaryStore interface {
	PutSummary(ctx context.Context, s *EntrySummary) error
}

// Runner executes plans.
type Runner struct {
	Transferer Transferer
	Sink       Sink
	// Protocol labels metrics and summaries.
	Protocol string
	// RunID identifies this run in summaries.
	RunID string
	// Summaries, when set, receives a summary after each entry.
	Summaries SummaryStore
}

// Run executes |p| in order. Rows of each entry are written before the next
// entry starts, including the partial rows of an interrupted entry. A
// missing file is skipped. Only cancellation of |ctx| and sink failures
// stop the run.
func (r *Runner) Run(ctx context.Context, p plan.Plan) error {
	for _, e := range p {
		rows, err := r.Transferer.Transfer(ctx, e)
		if werr := r.Sink.WriteRows(rows); werr != nil {
			return werr
		}
		switch {
		case ctx.Err() != nil:
			metrics.PlanEntries.WithLabelValues(r.Protocol, "interrupted").Inc()
			return ctx.Err()
		case errors.Is(err, fs.ErrNotExist):
			logging.Logger.WithError(err).WithField("file", e.File).Warnf("missing file: %s (skipping)", e.File)
			metrics.PlanEntries.WithLabelValues(r.Protocol, "missing").Inc()
			continue
		case err != nil:
			logging.Logger.WithError(err).WithField("file", e.File).Warn("plan entry failed")
			metrics.PlanEntries.WithLabelValues(r.Protocol, "failed").Inc()
		default:
			metrics.PlanEntries.WithLabelValues(r.Protocol, "done").Inc()
		}
		r.summarize(ctx, e, rows)
	}
	return nil
}

func (r *Runner) summarize(ctx context.Context, e plan.Entry, rows []results.Row) {
	s := Summarize(rows)
	s.RunID = r.RunID
	s.Protocol = r.Protocol
	s.File = e.File
	logging.Logger.WithFields(log.Fields{
		"file":     s.File,
		"rows":     s.Rows,
		"timeouts": s.Timeouts,
		"p50":      s.P50.Seconds(),
		"p99":      s.P99.Seconds(),
	}).Infof("finished %s: %d rows, %d timeouts", s.File, s.Rows, s.Timeouts)
	if r.Summaries == nil {
		return
	}
	if err := r.Summaries.PutSummary(ctx, s); err != nil {
		logging.Logger.WithError(err).Warn("could not store summary")
	}
}

// Summarize computes the row count, timeout count and elapsed quantiles of
// |rows|, with microsecond resolution.
func Summarize(rows []results.Row) *EntrySummary {
	h := hdrhistogram.New(1, int64(10*time.Minute/time.Microsecond), 3)
	s := &EntrySummary{Rows: len(rows)}
	for _, row := range rows {
		if row.TimedOut {
			s.Timeouts++
		}
		// Values beyond the histogram range are dropped from the quantiles.
		_ = h.RecordValue(row.Elapsed.Microseconds())
	}
	if h.TotalCount() > 0 {
		s.P50 = time.Duration(h.ValueAtQuantile(50)) * time.Microsecond
		s.P99 = time.Duration(h.ValueAtQuantile(99)) * time.Microsecond
	}
	return s
}
