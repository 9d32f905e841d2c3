package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/custody-engine/internal/domain"
	"github.com/ayo6706/custody-engine/internal/events"
	"github.com/ayo6706/custody-engine/internal/fees"
	"github.com/ayo6706/custody-engine/internal/observability"
	"github.com/ayo6706/custody-engine/internal/repository"
)

// settleCustody converts a terminal custody record into payouts. It runs inside
// the caller's transaction and writes the settled marker exactly once.
func settleCustody(ctx context.Context, t *txn, rec *domain.CustodyRecord) (*domain.Distribution, error) {
	if rec.Settled {
		return nil, fmt.Errorf("%w: %s %d", domain.ErrAlreadySettled, rec.Kind, rec.ID)
	}

	dist := &domain.Distribution{Kind: rec.Kind, RecordID: rec.ID}
	switch rec.State {
	case domain.StateReleased:
		if !rec.Funded {
			return nil, fmt.Errorf("%w: %s %d released without deposit", domain.ErrNotFunded, rec.Kind, rec.ID)
		}
		cfg, err := loadFeeConfig(ctx, t)
		if err != nil {
			return nil, err
		}
		rate, err := rateFor(ctx, t, cfg, rec.CategoryID)
		if err != nil {
			return nil, err
		}
		fee, net, err := fees.Split(rec.Amount, rate)
		if err != nil {
			return nil, err
		}
		dist.Outcome = domain.OutcomeReleased
		dist.Seller = rec.Seller
		dist.SellerAmount = net
		dist.FeeAmount = fee
		if err := payOut(ctx, t, dist, rec.Kind, rec.ID, rec.Asset, domain.PayoutSeller, rec.Seller, net); err != nil {
			return nil, err
		}
		if err := collectFee(ctx, t, cfg, dist, rec.Kind, rec.ID, rec.Asset, fee); err != nil {
			return nil, err
		}
	case domain.StateRefunded:
		dist.Outcome = domain.OutcomeRefunded
		dist.Refundee = rec.Buyer
		if rec.Funded {
			dist.RefundAmount = rec.Amount
			if err := payOut(ctx, t, dist, rec.Kind, rec.ID, rec.Asset, domain.PayoutBuyerRefund, rec.Buyer, rec.Amount); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("%w: %s %d is %s, not terminal", domain.ErrInvalidTransition, rec.Kind, rec.ID, rec.State)
	}

	rec.Settled = true
	if err := repository.Put(ctx, t.tx, custodyKey(rec.Kind, rec.ID), rec); err != nil {
		return nil, err
	}
	emitSettled(t, dist)
	return dist, nil
}

// settleAuction distributes an Ended auction and moves it to Settled.
func settleAuction(ctx context.Context, t *txn, a *domain.AuctionRecord) (*domain.Distribution, error) {
	next, err := domain.Validate(domain.KindAuction, a.State, domain.ActionSettle, domain.RoleSystem)
	if err != nil {
		return nil, err
	}

	dist := &domain.Distribution{Kind: domain.KindAuction, RecordID: a.ID, Seller: a.Seller}
	switch {
	case !a.HasLeader():
		dist.Outcome = domain.OutcomeNoBids
	case a.CurrentAmount.LessThan(a.ReservePrice):
		dist.Outcome = domain.OutcomeReserveNotMet
		dist.Refundee = a.CurrentLeader
		dist.RefundAmount = a.CurrentAmount
		if err := payOut(ctx, t, dist, domain.KindAuction, a.ID, a.Asset, domain.PayoutLeaderRefund, a.CurrentLeader, a.CurrentAmount); err != nil {
			return nil, err
		}
	default:
		fee, net, err := fees.Split(a.CurrentAmount, a.FeeBps)
		if err != nil {
			return nil, err
		}
		cfg, err := loadFeeConfig(ctx, t)
		if err != nil {
			return nil, err
		}
		dist.Outcome = domain.OutcomeSold
		dist.SellerAmount = net
		dist.FeeAmount = fee
		if err := payOut(ctx, t, dist, domain.KindAuction, a.ID, a.Asset, domain.PayoutSeller, a.Seller, net); err != nil {
			return nil, err
		}
		if err := collectFee(ctx, t, cfg, dist, domain.KindAuction, a.ID, a.Asset, fee); err != nil {
			return nil, err
		}
	}

	prev := a.State
	a.State = next
	if err := repository.Put(ctx, t.tx, auctionKey(a.ID), a); err != nil {
		return nil, err
	}
	t.emit(events.Event{Type: events.TypeStateChanged, Kind: domain.KindAuction, RecordID: a.ID, From: prev, To: next})
	t.onCommit(func() { observability.IncrementTransition(domain.KindAuction, prev, next) })
	emitSettled(t, dist)
	return dist, nil
}

func rateFor(ctx context.Context, t *txn, cfg *domain.FeeConfig, categoryID uint32) (uint32, error) {
	if categoryID == 0 {
		return cfg.BaseFeeBps, nil
	}
	var cat domain.CategoryFee
	found, err := repository.TryGet(ctx, t.tx, categoryKey(categoryID), &cat)
	if err != nil {
		return 0, err
	}
	var override *domain.CategoryFee
	if found {
		override = &cat
	}
	return fees.ResolveRate(cfg.BaseFeeBps, override), nil
}

// collectFee accrues fee into the accumulator and queues it for the collector.
func collectFee(ctx context.Context, t *txn, cfg *domain.FeeConfig, dist *domain.Distribution, kind domain.RecordKind, id uint64, asset domain.AssetRef, fee domain.Amount) error {
	if fee.IsZero() {
		return nil
	}
	var totals domain.FeeTotals
	if _, err := repository.TryGet(ctx, t.tx, feeTotalsKey, &totals); err != nil {
		return err
	}
	sum, err := totals.TotalCollected.Add(fee)
	if err != nil {
		return fmt.Errorf("accrue fee: %w", err)
	}
	totals.TotalCollected = sum
	if err := repository.Put(ctx, t.tx, feeTotalsKey, totals); err != nil {
		return err
	}
	if cfg.FeeCollector != "" {
		if err := payOut(ctx, t, dist, kind, id, asset, domain.PayoutFee, cfg.FeeCollector, fee); err != nil {
			return err
		}
	}
	amount := fee
	t.emit(events.Event{Type: events.TypeFeeCollected, Kind: kind, RecordID: id, Party: cfg.FeeCollector, Amount: &amount})
	t.onCommit(func() { observability.AddFeesCollected(asset, amount) })
	return nil
}

// payOut queues a non-zero transfer and records its id on the distribution.
func payOut(ctx context.Context, t *txn, dist *domain.Distribution, kind domain.RecordKind, id uint64, asset domain.AssetRef, reason string, to domain.Identity, amount domain.Amount) error {
	if amount.IsZero() {
		return nil
	}
	payoutID, err := enqueuePayout(ctx, t, domain.Payout{
		Reason:     reason,
		Recipient:  to,
		Asset:      asset,
		Amount:     amount,
		SourceKind: kind,
		SourceID:   id,
	})
	if err != nil {
		return err
	}
	if dist != nil {
		dist.PayoutIDs = append(dist.PayoutIDs, payoutID)
	}
	return nil
}

func emitSettled(t *txn, dist *domain.Distribution) {
	total, _ := dist.SellerAmount.Add(dist.RefundAmount)
	party := dist.Seller
	if dist.Outcome == domain.OutcomeRefunded || dist.Outcome == domain.OutcomeReserveNotMet {
		party = dist.Refundee
	}
	t.emit(events.Event{Type: events.TypeSettled, Kind: dist.Kind, RecordID: dist.RecordID, Party: party, Amount: &total})
	kind, outcome := dist.Kind, dist.Outcome
	t.onCommit(func() { observability.IncrementSettlement(kind, outcome) })
}
