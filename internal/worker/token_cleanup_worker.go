package worker

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/spec-kit/credential-service/internal/observability"
	"github.com/spec-kit/credential-service/internal/repository"
)

// TokenCleanupWorker periodically deletes reference tokens that expired more than
// Retention ago. Resolution never depends on it.
type TokenCleanupWorker struct {
	store     repository.ReferenceTokenStore
	clock     clockwork.Clock
	logger    *zap.Logger
	metrics   *observability.Metrics
	interval  time.Duration
	retention time.Duration
}

// TokenCleanupConfig configures the worker.
type TokenCleanupConfig struct {
	Interval  time.Duration
	Retention time.Duration
}

// NewTokenCleanupWorker builds the worker.
func NewTokenCleanupWorker(store repository.ReferenceTokenStore, clock clockwork.Clock, logger *zap.Logger, metrics *observability.Metrics, cfg TokenCleanupConfig) *TokenCleanupWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.Retention < 0 {
		cfg.Retention = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenCleanupWorker{
		store:     store,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
		interval:  cfg.Interval,
		retention: cfg.Retention,
	}
}

// Run purges on every tick until ctx is cancelled.
func (w *TokenCleanupWorker) Run(ctx context.Context) {
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("token cleanup worker started",
		zap.Duration("interval", w.interval),
		zap.Duration("retention", w.retention),
	)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("token cleanup worker stopped")
			return
		case <-ticker.Chan():
			if _, err := w.PurgeOnce(ctx); err != nil {
				w.logger.Warn("token purge failed", zap.Error(err))
			}
		}
	}
}

// PurgeOnce removes tokens whose expiry is older than now minus retention.
func (w *TokenCleanupWorker) PurgeOnce(ctx context.Context) (int64, error) {
	cutoff := w.clock.Now().Add(-w.retention)
	n, err := w.store.PurgeExpired(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	w.metrics.RecordTokensPurged(n)
	if n > 0 {
		w.logger.Info("purged expired reference tokens", zap.Int64("count", n))
	}
	return n, nil
}
