package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ayo6706/custody-engine/internal/observability"
	"github.com/ayo6706/custody-engine/internal/service"
	"go.uber.org/zap"
)

// PayoutWorker dispatches queued payouts in the background.
// Claims are made inside a store transaction, so several instances may share
// one store.
type PayoutWorker struct {
	payoutService *service.PayoutService
	pollInterval  time.Duration
	batchSize     int
	stopCh        chan struct{}
	stopOnce      sync.Once
}

// NewPayoutWorker creates a new PayoutWorker instance.
func NewPayoutWorker(payoutSvc *service.PayoutService) *PayoutWorker {
	return &PayoutWorker{
		payoutService: payoutSvc,
		pollInterval:  10 * time.Second,
		batchSize:     10,
		stopCh:        make(chan struct{}),
	}
}

// WithPollInterval sets the poll interval for the worker.
func (w *PayoutWorker) WithPollInterval(interval time.Duration) *PayoutWorker {
	if interval > 0 {
		w.pollInterval = interval
	}
	return w
}

// WithBatchSize sets the batch size for the worker.
func (w *PayoutWorker) WithBatchSize(size int) *PayoutWorker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// Start runs until Stop is called or the context is canceled.
func (w *PayoutWorker) Start(ctx context.Context) {
	zap.L().Info("payout worker starting", zap.Duration("poll_interval", w.pollInterval), zap.Int("batch_size", w.batchSize))

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("payout worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("payout worker stop signal received")
			return
		case <-ticker.C:
			w.processBatch(ctx)
		}
	}
}

// Stop signals the worker to stop.
func (w *PayoutWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

func (w *PayoutWorker) processBatch(ctx context.Context) {
	if err := w.ProcessOnce(ctx); err != nil {
		zap.L().Error("payout batch failed", zap.Error(err))
	}
}

// ProcessOnce processes a single batch immediately.
func (w *PayoutWorker) ProcessOnce(ctx context.Context) error {
	if err := w.payoutService.ProcessPayouts(ctx, w.batchSize); err != nil {
		observability.IncrementWorkerRun("payout", "failed")
		return err
	}
	observability.IncrementWorkerRun("payout", "success")
	return nil
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *PayoutWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *PayoutWorker) String() string {
	return fmt.Sprintf("PayoutWorker(interval=%v, batch=%d)", w.pollInterval, w.batchSize)
}
