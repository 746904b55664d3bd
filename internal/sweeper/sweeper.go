// Package sweeper periodically retires stale pending requests.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/kalambet/frontdesk/internal/ledger"
)

// Sweeper is the subset of the ledger the worker drives.
type Sweeper interface {
	Sweep(now time.Time, threshold time.Duration) ([]ledger.Request, error)
}

// Worker runs Sweep on a fixed interval.
type Worker struct {
	ledger    Sweeper
	threshold time.Duration
	interval  time.Duration
	clock     func() time.Time
	logger    *slog.Logger
}

// NewWorker creates a Worker expiring requests older than threshold.
// If interval is <= 0, it defaults to 30s.
func NewWorker(l Sweeper, threshold, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Worker{
		ledger:    l,
		threshold: threshold,
		interval:  interval,
		clock:     time.Now,
		logger:    slog.Default(),
	}
}

// Run sweeps until ctx is cancelled. A non-positive threshold disables the worker.
func (w *Worker) Run(ctx context.Context) {
	if w.threshold <= 0 {
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(); err != nil {
			w.logger.Error("sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single sweep and returns how many requests expired.
func (w *Worker) RunOnce() (int, error) {
	expired, err := w.ledger.Sweep(w.clock(), w.threshold)
	if len(expired) > 0 {
		w.logger.Debug("sweep complete", "expired", len(expired))
	}
	return len(expired), err
}
