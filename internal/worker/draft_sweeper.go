// Package worker holds background jobs that run alongside the HTTP server.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/matthewbaird/valuation/internal/draft"
	"github.com/matthewbaird/valuation/internal/logging"
)

// DraftSweeper periodically removes drafts that have not been touched
// within the configured TTL.
type DraftSweeper struct {
	drafts   draft.Store
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
	log      *zap.Logger
}

// NewDraftSweeper creates a sweeper for drafts older than ttl, checking
// every interval.
func NewDraftSweeper(drafts draft.Store, ttl, interval time.Duration, log *zap.Logger) *DraftSweeper {
	return &DraftSweeper{
		drafts:   drafts,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
		log:      logging.OrNop(log).Named("draft_sweeper"),
	}
}

// SweepOnce removes every draft older than the TTL.
func (w *DraftSweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := w.now().Add(-w.ttl)
	n, err := w.drafts.Sweep(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		w.log.Info("swept stale drafts", zap.Int("removed", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}

// Run sweeps on every tick until ctx is cancelled. Sweep failures are
// logged and retried on the next tick.
func (w *DraftSweeper) Run(ctx context.Context) error {
	if w.ttl <= 0 || w.interval <= 0 {
		w.log.Info("draft sweeping disabled")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				w.log.Warn("sweep failed", zap.Error(err))
			}
		}
	}
}
