package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ayo6706/custody-engine/internal/domain"
	"github.com/ayo6706/custody-engine/internal/events"
	"github.com/ayo6706/custody-engine/internal/gateway"
	"github.com/ayo6706/custody-engine/internal/observability"
	"github.com/ayo6706/custody-engine/internal/repository"
	"go.uber.org/zap"
)

// PayoutService dispatches queued payouts through the external gateway.
// Payouts are created by settlement and bidding inside their own transactions;
// this service only moves them from PENDING to SENT or MANUAL_REVIEW.
type PayoutService struct {
	core        *core
	gateway     gateway.Gateway
	maxAttempts int
	staleAfter  time.Duration
}

var (
	ErrPayoutNotInManualReview     = errors.New("payout is not in manual review")
	ErrInvalidManualReviewDecision = errors.New("invalid manual review decision")
)

const (
	defaultMaxPayoutAttempts  = 5
	stalePayoutRecoveryWindow = 2 * time.Minute
)

var payoutQueueKey = repository.Key{Kind: repository.KindPayoutQueue}

func payoutKey(id uint64) repository.Key {
	return repository.Key{Kind: repository.KindPayout, ID: id}
}

func newPayoutService(c *core, gw gateway.Gateway) *PayoutService {
	return &PayoutService{
		core:        c,
		gateway:     gw,
		maxAttempts: defaultMaxPayoutAttempts,
		staleAfter:  stalePayoutRecoveryWindow,
	}
}

// WithMaxAttempts sets how many gateway failures a payout tolerates before it
// is parked for manual review.
func (s *PayoutService) WithMaxAttempts(n int) *PayoutService {
	if n > 0 {
		s.maxAttempts = n
	}
	return s
}

// enqueuePayout persists p as PENDING within t and returns its id.
func enqueuePayout(ctx context.Context, t *txn, p domain.Payout) (uint64, error) {
	id, err := repository.NextID(ctx, t.tx, repository.KindPayout)
	if err != nil {
		return 0, err
	}
	p.ID = id
	p.Status = domain.PayoutStatusPending
	p.CreatedAt = t.now
	if err := repository.Put(ctx, t.tx, payoutKey(id), &p); err != nil {
		return 0, err
	}
	q, err := loadQueue(ctx, t)
	if err != nil {
		return 0, err
	}
	q.Pending = append(q.Pending, id)
	if err := repository.Put(ctx, t.tx, payoutQueueKey, q); err != nil {
		return 0, err
	}
	return id, nil
}

func loadQueue(ctx context.Context, t *txn) (*domain.PayoutQueue, error) {
	q := &domain.PayoutQueue{}
	if _, err := repository.TryGet(ctx, t.tx, payoutQueueKey, q); err != nil {
		return nil, fmt.Errorf("load payout queue: %w", err)
	}
	return q, nil
}

// ProcessPayouts dispatches up to batchSize pending payouts.
func (s *PayoutService) ProcessPayouts(ctx context.Context, batchSize int) error {
	if s.gateway == nil {
		return errors.New("payout gateway not configured")
	}
	if err := s.recoverStaleProcessingPayouts(ctx); err != nil {
		return err
	}

	claimed, err := s.claimPendingPayouts(ctx, batchSize)
	if err != nil {
		return err
	}

	for i, p := range claimed {
		if err := ctx.Err(); err != nil {
			if requeueErr := s.requeueClaimedPayouts(context.Background(), claimed[i:]); requeueErr != nil {
				zap.L().Error("failed to requeue claimed payouts on context cancellation", zap.Error(requeueErr))
			}
			return err
		}

		ref, err := s.gateway.SendPayout(ctx, payoutIdempotencyKey(p), p.Recipient, p.Asset, p.Amount)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if requeueErr := s.requeueClaimedPayouts(context.Background(), claimed[i:]); requeueErr != nil {
					zap.L().Error("failed to requeue payout after gateway cancellation", zap.Error(requeueErr), zap.Uint64("payout_id", p.ID))
				}
				return err
			}
			s.handlePayoutFailure(ctx, p.ID, err.Error())
			continue
		}

		if err := s.handlePayoutSuccess(ctx, p.ID, ref); err != nil {
			zap.L().Error(
				"payout succeeded at gateway but local finalization failed",
				zap.Error(err),
				zap.Uint64("payout_id", p.ID),
				zap.String("gateway_ref", ref),
			)
		}
	}
	return nil
}

func payoutIdempotencyKey(p domain.Payout) string {
	return "payout-" + strconv.FormatUint(p.ID, 10)
}

func (s *PayoutService) claimPendingPayouts(ctx context.Context, batchSize int) ([]domain.Payout, error) {
	if batchSize <= 0 {
		batchSize = 10
	}
	var claimed []domain.Payout
	err := s.core.run(ctx, func(t *txn) error {
		claimed = nil
		q, err := loadQueue(ctx, t)
		if err != nil {
			return err
		}
		n := min(batchSize, len(q.Pending))
		for _, id := range q.Pending[:n] {
			var p domain.Payout
			if err := repository.Get(ctx, t.tx, payoutKey(id), &p); err != nil {
				return fmt.Errorf("claim payout %d: %w", id, err)
			}
			p.Status = domain.PayoutStatusProcessing
			p.ClaimedAt = t.now
			if err := repository.Put(ctx, t.tx, payoutKey(id), &p); err != nil {
				return err
			}
			claimed = append(claimed, p)
		}
		q.Processing = append(q.Processing, q.Pending[:n]...)
		q.Pending = append([]uint64(nil), q.Pending[n:]...)
		return repository.Put(ctx, t.tx, payoutQueueKey, q)
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *PayoutService) recoverStaleProcessingPayouts(ctx context.Context) error {
	recovered := 0
	err := s.core.run(ctx, func(t *txn) error {
		recovered = 0
		q, err := loadQueue(ctx, t)
		if err != nil {
			return err
		}
		cutoff := t.now - int64(s.staleAfter/time.Second)
		var keep []uint64
		for _, id := range q.Processing {
			var p domain.Payout
			if err := repository.Get(ctx, t.tx, payoutKey(id), &p); err != nil {
				return fmt.Errorf("load processing payout %d: %w", id, err)
			}
			if p.ClaimedAt > cutoff {
				keep = append(keep, id)
				continue
			}
			p.Status = domain.PayoutStatusPending
			p.ClaimedAt = 0
			if err := repository.Put(ctx, t.tx, payoutKey(id), &p); err != nil {
				return err
			}
			q.Pending = append(q.Pending, id)
			recovered++
		}
		if recovered == 0 {
			return nil
		}
		q.Processing = keep
		return repository.Put(ctx, t.tx, payoutQueueKey, q)
	})
	if err != nil {
		return err
	}
	if recovered > 0 {
		zap.L().Warn("recovered stale processing payouts", zap.Int("count", recovered))
	}
	return nil
}

func (s *PayoutService) requeueClaimedPayouts(ctx context.Context, payouts []domain.Payout) error {
	if len(payouts) == 0 {
		return nil
	}
	return s.core.run(ctx, func(t *txn) error {
		q, err := loadQueue(ctx, t)
		if err != nil {
			return err
		}
		for _, claimed := range payouts {
			var p domain.Payout
			if err := repository.Get(ctx, t.tx, payoutKey(claimed.ID), &p); err != nil {
				return fmt.Errorf("requeue payout %d: %w", claimed.ID, err)
			}
			p.Status = domain.PayoutStatusPending
			p.ClaimedAt = 0
			if err := repository.Put(ctx, t.tx, payoutKey(p.ID), &p); err != nil {
				return err
			}
			q.Processing = without(q.Processing, p.ID)
			q.Pending = append(q.Pending, p.ID)
		}
		return repository.Put(ctx, t.tx, payoutQueueKey, q)
	})
}

func (s *PayoutService) handlePayoutSuccess(ctx context.Context, id uint64, gatewayRef string) error {
	err := s.core.run(ctx, func(t *txn) error {
		var p domain.Payout
		if err := repository.Get(ctx, t.tx, payoutKey(id), &p); err != nil {
			return err
		}
		q, err := loadQueue(ctx, t)
		if err != nil {
			return err
		}
		p.Status = domain.PayoutStatusSent
		p.GatewayRef = gatewayRef
		p.Attempts++
		p.CompletedAt = t.now
		p.LastError = ""
		if err := repository.Put(ctx, t.tx, payoutKey(id), &p); err != nil {
			return err
		}
		q.Processing = without(q.Processing, id)
		if err := repository.Put(ctx, t.tx, payoutQueueKey, q); err != nil {
			return err
		}
		amount := p.Amount
		t.emit(events.Event{Type: events.TypePayoutSent, Kind: p.SourceKind, RecordID: p.SourceID, Party: p.Recipient, Amount: &amount})
		t.onCommit(func() { observability.IncrementPayout("sent") })
		return nil
	})
	if err != nil {
		s.markPayoutManualReview(ctx, id, gatewayRef, err.Error())
		return err
	}
	return nil
}

// handlePayoutFailure returns the payout to the pending queue, or parks it for
// manual review once the attempt budget is spent.
func (s *PayoutService) handlePayoutFailure(ctx context.Context, id uint64, reason string) {
	parked := false
	err := s.core.run(ctx, func(t *txn) error {
		var p domain.Payout
		if err := repository.Get(ctx, t.tx, payoutKey(id), &p); err != nil {
			return err
		}
		q, err := loadQueue(ctx, t)
		if err != nil {
			return err
		}
		p.Attempts++
		p.LastError = reason
		p.ClaimedAt = 0
		q.Processing = without(q.Processing, id)
		parked = p.Attempts >= s.maxAttempts
		if parked {
			p.Status = domain.PayoutStatusManualReview
			q.ManualReview = append(q.ManualReview, id)
			amount := p.Amount
			t.emit(events.Event{Type: events.TypePayoutReview, Kind: p.SourceKind, RecordID: p.SourceID, Party: p.Recipient, Amount: &amount})
		} else {
			p.Status = domain.PayoutStatusPending
			q.Pending = append(q.Pending, id)
		}
		if err := repository.Put(ctx, t.tx, payoutKey(id), &p); err != nil {
			return err
		}
		return repository.Put(ctx, t.tx, payoutQueueKey, q)
	})
	if err != nil {
		zap.L().Error("handle payout failure failed", zap.Error(err), zap.Uint64("payout_id", id))
		return
	}
	if parked {
		observability.IncrementPayout("manual_review")
		observability.IncrementManualReviewTransition("queued")
		zap.L().Warn("payout moved to manual review", zap.Uint64("payout_id", id), zap.String("reason", reason))
		return
	}
	observability.IncrementPayout("retry")
	zap.L().Warn("payout attempt failed", zap.Uint64("payout_id", id), zap.String("reason", reason))
}

// markPayoutManualReview parks a payout the gateway already accepted so it is
// never sent twice.
func (s *PayoutService) markPayoutManualReview(ctx context.Context, id uint64, gatewayRef, reason string) {
	err := s.core.run(ctx, func(t *txn) error {
		var p domain.Payout
		if err := repository.Get(ctx, t.tx, payoutKey(id), &p); err != nil {
			return err
		}
		q, err := loadQueue(ctx, t)
		if err != nil {
			return err
		}
		p.Status = domain.PayoutStatusManualReview
		p.GatewayRef = gatewayRef
		p.LastError = reason
		q.Processing = without(q.Processing, id)
		q.Pending = without(q.Pending, id)
		q.ManualReview = append(without(q.ManualReview, id), id)
		if err := repository.Put(ctx, t.tx, payoutKey(id), &p); err != nil {
			return err
		}
		return repository.Put(ctx, t.tx, payoutQueueKey, q)
	})
	if err != nil {
		zap.L().Error("failed to mark payout manual review", zap.Error(err), zap.Uint64("payout_id", id))
		return
	}
	observability.IncrementManualReviewTransition("queued")
}

// GetPayout retrieves a payout by id.
func (s *PayoutService) GetPayout(ctx context.Context, id uint64) (*domain.Payout, error) {
	var p domain.Payout
	err := s.core.run(ctx, func(t *txn) error {
		return repository.Get(ctx, t.tx, payoutKey(id), &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListManualReviewPayouts returns payouts waiting for operator action.
func (s *PayoutService) ListManualReviewPayouts(ctx context.Context, limit, offset int) ([]domain.Payout, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	var out []domain.Payout
	var total int
	err := s.core.run(ctx, func(t *txn) error {
		q, err := loadQueue(ctx, t)
		if err != nil {
			return err
		}
		total = len(q.ManualReview)
		if offset >= len(q.ManualReview) {
			return nil
		}
		ids := q.ManualReview[offset:min(offset+limit, len(q.ManualReview))]
		for _, id := range ids {
			var p domain.Payout
			if err := repository.Get(ctx, t.tx, payoutKey(id), &p); err != nil {
				return err
			}
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.SetManualReviewQueueSize(int64(total))
	return out, nil
}

func (s *PayoutService) ManualReviewQueueSize(ctx context.Context) (int64, error) {
	var n int64
	err := s.core.run(ctx, func(t *txn) error {
		q, err := loadQueue(ctx, t)
		if err != nil {
			return err
		}
		n = int64(len(q.ManualReview))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count manual review payouts: %w", err)
	}
	return n, nil
}

type ResolveManualReviewDecision string

const (
	DecisionConfirmSent ResolveManualReviewDecision = "confirm_sent"
	DecisionRetry       ResolveManualReviewDecision = "retry"
)

type ResolveManualReviewRequest struct {
	PayoutID   uint64
	Decision   ResolveManualReviewDecision
	GatewayRef string
	Reason     string
	Actor      domain.Identity
}

// ResolveManualReviewPayout finalizes a payout stuck in MANUAL_REVIEW, either
// confirming it was sent out of band or returning it to the queue.
func (s *PayoutService) ResolveManualReviewPayout(ctx context.Context, req ResolveManualReviewRequest) (*domain.Payout, error) {
	decision := ResolveManualReviewDecision(strings.ToLower(strings.TrimSpace(string(req.Decision))))
	switch decision {
	case DecisionConfirmSent, DecisionRetry:
	default:
		return nil, ErrInvalidManualReviewDecision
	}
	if err := s.core.authorize(ctx, req.Actor); err != nil {
		return nil, err
	}

	var p domain.Payout
	err := s.core.run(ctx, func(t *txn) error {
		cfg, err := loadFeeConfig(ctx, t)
		if err != nil {
			return err
		}
		if cfg.Admin != req.Actor {
			return fmt.Errorf("%w: %s is not the admin", domain.ErrUnauthorized, req.Actor)
		}
		if err := repository.Get(ctx, t.tx, payoutKey(req.PayoutID), &p); err != nil {
			return err
		}
		if p.Status != domain.PayoutStatusManualReview {
			return ErrPayoutNotInManualReview
		}
		q, err := loadQueue(ctx, t)
		if err != nil {
			return err
		}
		q.ManualReview = without(q.ManualReview, p.ID)
		switch decision {
		case DecisionConfirmSent:
			p.Status = domain.PayoutStatusSent
			if req.GatewayRef != "" {
				p.GatewayRef = req.GatewayRef
			}
			p.CompletedAt = t.now
		case DecisionRetry:
			p.Status = domain.PayoutStatusPending
			p.Attempts = 0
			q.Pending = append(q.Pending, p.ID)
		}
		p.LastError = req.Reason
		if err := repository.Put(ctx, t.tx, payoutKey(p.ID), &p); err != nil {
			return err
		}
		return repository.Put(ctx, t.tx, payoutQueueKey, q)
	})
	if err != nil {
		return nil, err
	}
	observability.IncrementManualReviewTransition(string(decision))
	return &p, nil
}

func without(ids []uint64, id uint64) []uint64 {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
