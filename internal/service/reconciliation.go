package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/custody-engine/internal/domain"
	"github.com/ayo6706/custody-engine/internal/observability"
	"github.com/ayo6706/custody-engine/internal/repository"
	"go.uber.org/zap"
)

// ReconciliationService verifies payout bookkeeping invariants.
type ReconciliationService struct {
	core *core
}

// NewReconciliationService creates a reconciliation service over the engine's store.
func NewReconciliationService(e *Engine) *ReconciliationService {
	return &ReconciliationService{core: e.core}
}

// Report summarizes one reconciliation pass.
type Report struct {
	Payouts         int           `json:"payouts"`
	QueueMismatches int           `json:"queue_mismatches"`
	FeesPaidOut     domain.Amount `json:"fees_paid_out"`
	FeesCollected   domain.Amount `json:"fees_collected"`
}

// Balanced reports whether no check failed.
func (r *Report) Balanced() bool {
	return r.QueueMismatches == 0 && r.FeesCollected.Cmp(r.FeesPaidOut) >= 0
}

// Run checks that every payout sits in the queue list matching its status and
// that fee payouts never exceed the fee accumulator.
func (s *ReconciliationService) Run(ctx context.Context) (*Report, error) {
	report := &Report{}
	err := s.core.run(ctx, func(t *txn) error {
		*report = Report{}
		q, err := loadQueue(ctx, t)
		if err != nil {
			return err
		}
		members := map[string]map[uint64]bool{
			domain.PayoutStatusPending:      setOf(q.Pending),
			domain.PayoutStatusProcessing:   setOf(q.Processing),
			domain.PayoutStatusManualReview: setOf(q.ManualReview),
		}

		last, err := repository.LastID(ctx, t.tx, repository.KindPayout)
		if err != nil {
			return err
		}
		for id := uint64(1); id <= last; id++ {
			var p domain.Payout
			found, err := repository.TryGet(ctx, t.tx, payoutKey(id), &p)
			if err != nil {
				return fmt.Errorf("load payout %d: %w", id, err)
			}
			if !found {
				continue
			}
			report.Payouts++
			if p.Reason == domain.PayoutFee {
				if report.FeesPaidOut, err = report.FeesPaidOut.Add(p.Amount); err != nil {
					return err
				}
			}
			for status, set := range members {
				if set[id] != (p.Status == status) {
					report.QueueMismatches++
					observability.IncrementReconciliationMismatch("queue")
					zap.L().Error("payout queue mismatch", zap.Uint64("payout_id", id), zap.String("status", p.Status), zap.String("list", status))
				}
			}
		}

		var totals domain.FeeTotals
		if _, err := repository.TryGet(ctx, t.tx, feeTotalsKey, &totals); err != nil {
			return err
		}
		report.FeesCollected = totals.TotalCollected
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile payouts: %w", err)
	}

	if report.FeesCollected.LessThan(report.FeesPaidOut) {
		observability.IncrementReconciliationMismatch("fees")
		zap.L().Error("CRITICAL: fee payouts exceed fees collected",
			zap.String("paid_out", report.FeesPaidOut.String()),
			zap.String("collected", report.FeesCollected.String()),
		)
	}
	if report.Balanced() {
		zap.L().Info("payouts reconciled", zap.Int("payouts", report.Payouts))
	}
	return report, nil
}

func setOf(ids []uint64) map[uint64]bool {
	out := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}
