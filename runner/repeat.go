package runner

import (
	"context"
	"time"

	"github.com/apex/log"

	"github.com/m-lab/filexfer/logging"
	"github.com/m-lab/filexfer/metrics"
	"github.com/m-lab/filexfer/plan"
	"github.com/m-lab/filexfer/results"
)

// FetchFunc performs one synchronous request/response transfer and returns
// the number of payload bytes received.
type FetchFunc func(ctx context.Context) (int, error)

// Repeat times e.Repeats calls of |fetch| for the request/response
// protocols. A failure of the first call aborts the entry with its error,
// so that a missing file is reported once; a later failure is logged and
// produces no row.
func Repeat(ctx context.Context, e plan.Entry, protocol, variant string, fetch FetchFunc) ([]results.Row, error) {
	every := 100
	if e.Repeats < every {
		every = 1
	}
	rows := make([]results.Row, 0, e.Repeats)
	for i := 1; i <= e.Repeats; i++ {
		start := time.Now()
		size, err := fetch(ctx)
		elapsed := time.Since(start)
		if ctx.Err() != nil {
			return rows, ctx.Err()
		}
		if err != nil {
			if i == 1 {
				return rows, err
			}
			logging.Logger.WithError(err).WithField("file", e.File).Warnf("%s #%d/%d: fetch failed", e.File, i, e.Repeats)
			metrics.Transfers.WithLabelValues(protocol, variant, metrics.ResultFetchError).Inc()
			continue
		}
		row := results.NewRow(protocol, variant, e.File, size, i, elapsed)
		rows = append(rows, row)
		metrics.Transfers.WithLabelValues(protocol, variant, metrics.ResultOK).Inc()
		metrics.TransferDuration.WithLabelValues(protocol, variant).Observe(elapsed.Seconds())
		if i%every == 0 {
			logging.Logger.WithFields(log.Fields{
				"file":      e.File,
				"iteration": i,
				"elapsed":   elapsed.Seconds(),
			}).Infof("%s #%d/%d: %.4fs  %.2f MB/s", e.File, i, e.Repeats, elapsed.Seconds(), row.Throughput/1e6)
		}
	}
	return rows, nil
}
