package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ayo6706/custody-engine/internal/observability"
	"github.com/ayo6706/custody-engine/internal/repository"
	"go.uber.org/zap"
)

// ExpiryWorker physically removes records whose lifetime has lapsed. Expired
// records are already invisible to reads; sweeping only reclaims space.
type ExpiryWorker struct {
	store    repository.Store
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewExpiryWorker(store repository.Store) *ExpiryWorker {
	return &ExpiryWorker{
		store:    store,
		interval: time.Hour,
		stopCh:   make(chan struct{}),
	}
}

// WithInterval updates the sweep interval.
func (w *ExpiryWorker) WithInterval(interval time.Duration) *ExpiryWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

func (w *ExpiryWorker) Start(ctx context.Context) {
	zap.L().Info("expiry worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("expiry worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("expiry worker stop signal received")
			return
		case <-ticker.C:
			if _, err := w.SweepOnce(ctx); err != nil {
				zap.L().Error("record sweep failed", zap.Error(err))
			}
		}
	}
}

func (w *ExpiryWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *ExpiryWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// SweepOnce removes expired entries and returns how many were deleted.
func (w *ExpiryWorker) SweepOnce(ctx context.Context) (int, error) {
	removed, err := w.store.Sweep(ctx)
	if err != nil {
		observability.IncrementWorkerRun("expiry", "failed")
		return 0, err
	}
	observability.IncrementWorkerRun("expiry", "success")
	observability.AddSweptRecords(removed)
	if removed > 0 {
		zap.L().Info("expired records swept", zap.Int("removed", removed))
	}
	return removed, nil
}
