package runner

import (
	"context"
	"time"

	"github.com/m-lab/filexfer/logging"
)

// TerminationFlags reports whether a run has been asked to stop.
type TerminationFlags interface {
	GetTerminationFlag(ctx context.Context, id string) (int, error)
}

// WatchTermination polls the termination flag of run |id| every |interval|
// and calls |cancel| once it is set. It returns when |ctx| is done or the
// flag has been observed.
func WatchTermination(ctx context.Context, flags TerminationFlags, id string, interval time.Duration, cancel context.CancelFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		flag, err := flags.GetTerminationFlag(ctx, id)
		if err != nil {
			logging.Logger.WithError(err).Debug("could not read termination flag")
			continue
		}
		if flag == 1 {
			logging.Logger.WithField("run", id).Info("termination requested, stopping")
			cancel()
			return
		}
	}
}
