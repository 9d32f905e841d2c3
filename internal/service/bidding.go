package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/custody-engine/internal/domain"
	"github.com/ayo6706/custody-engine/internal/events"
	"github.com/ayo6706/custody-engine/internal/observability"
	"github.com/ayo6706/custody-engine/internal/repository"
)

// PlaceBid accepts a bid that beats the current leader. The displaced leader's
// refund is queued in the same transaction that records the new leader.
func (s *AuctionService) PlaceBid(ctx context.Context, auctionID uint64, bidder domain.Identity, amount domain.Amount) (*domain.AuctionRecord, error) {
	a, err := s.placeBid(ctx, auctionID, bidder, amount)
	if err != nil {
		observability.IncrementBid(domain.CodeOf(err).Slug())
		return nil, err
	}
	observability.IncrementBid("accepted")
	return a, nil
}

func (s *AuctionService) placeBid(ctx context.Context, auctionID uint64, bidder domain.Identity, amount domain.Amount) (*domain.AuctionRecord, error) {
	if amount.IsZero() {
		return nil, fmt.Errorf("%w: bid amount must be positive", domain.ErrInvalidInput)
	}
	if err := s.core.authorize(ctx, bidder); err != nil {
		return nil, err
	}

	var a domain.AuctionRecord
	err := s.core.run(ctx, func(t *txn) error {
		if err := repository.Get(ctx, t.tx, auctionKey(auctionID), &a); err != nil {
			return err
		}
		if !a.OpenAt(t.now) {
			return fmt.Errorf("%w: auction %d", domain.ErrAuctionNotActive, auctionID)
		}
		if amount.LessThan(a.StartingPrice) {
			return fmt.Errorf("%w: %s below starting price %s", domain.ErrBidTooLow, amount, a.StartingPrice)
		}
		if amount.Cmp(a.CurrentAmount) <= 0 {
			return fmt.Errorf("%w: %s does not beat %s", domain.ErrBidTooLow, amount, a.CurrentAmount)
		}
		if a.HasLeader() && a.CurrentLeader == bidder {
			return fmt.Errorf("%w: %s", domain.ErrAlreadyLeader, bidder)
		}
		return recordBid(ctx, t, &a, bidder, amount)
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// BuyNow buys the auction at its buy-now price and ends it. When amount is
// given it must equal the configured price exactly.
func (s *AuctionService) BuyNow(ctx context.Context, auctionID uint64, buyer domain.Identity, amount *domain.Amount) (*domain.AuctionRecord, error) {
	if err := s.core.authorize(ctx, buyer); err != nil {
		return nil, err
	}
	var a domain.AuctionRecord
	err := s.core.run(ctx, func(t *txn) error {
		if err := repository.Get(ctx, t.tx, auctionKey(auctionID), &a); err != nil {
			return err
		}
		if !a.OpenAt(t.now) {
			return fmt.Errorf("%w: auction %d", domain.ErrAuctionNotActive, auctionID)
		}
		if a.BuyNowPrice == nil {
			return fmt.Errorf("%w: auction %d has no buy-now price", domain.ErrInvalidInput, auctionID)
		}
		price := *a.BuyNowPrice
		if amount != nil && amount.Cmp(price) != 0 {
			return fmt.Errorf("%w: buy-now amount %s must equal %s", domain.ErrInvalidInput, amount, price)
		}
		if err := endAuction(ctx, t, &a, domain.ActionBuyNow, domain.RoleBidder, buyer); err != nil {
			return err
		}
		a.EndTime = t.now
		return recordBid(ctx, t, &a, buyer, price)
	})
	if err != nil {
		return nil, err
	}
	observability.IncrementBid("buy_now")
	return &a, nil
}

// recordBid refunds the displaced leader, installs the new one and appends to
// the history. It persists a.
func recordBid(ctx context.Context, t *txn, a *domain.AuctionRecord, bidder domain.Identity, amount domain.Amount) error {
	if a.HasLeader() {
		refund := a.CurrentAmount
		if err := payOut(ctx, t, nil, domain.KindAuction, a.ID, a.Asset, domain.PayoutLeaderRefund, a.CurrentLeader, refund); err != nil {
			return err
		}
		t.emit(events.Event{Type: events.TypeLeaderRefunded, Kind: domain.KindAuction, RecordID: a.ID, Party: a.CurrentLeader, Amount: &refund})
	}

	history, err := loadBids(ctx, t, a.ID)
	if err != nil {
		return err
	}
	history.Bids = append(history.Bids, domain.Bid{Bidder: bidder, Amount: amount, Timestamp: t.now})
	a.CurrentLeader = bidder
	a.CurrentAmount = amount

	if err := repository.Put(ctx, t.tx, bidsKey(a.ID), history); err != nil {
		return err
	}
	if err := repository.Put(ctx, t.tx, auctionKey(a.ID), a); err != nil {
		return err
	}
	bid := amount
	t.emit(events.Event{Type: events.TypeBidPlaced, Kind: domain.KindAuction, RecordID: a.ID, Actor: bidder, Amount: &bid})
	return nil
}

func loadBids(ctx context.Context, t *txn, auctionID uint64) (*domain.BidHistory, error) {
	history := &domain.BidHistory{AuctionID: auctionID}
	if _, err := repository.TryGet(ctx, t.tx, bidsKey(auctionID), history); err != nil {
		return nil, err
	}
	if history.Bids == nil {
		history.Bids = []domain.Bid{}
	}
	return history, nil
}

// GetBidHistory returns every accepted bid in submission order.
func (s *AuctionService) GetBidHistory(ctx context.Context, auctionID uint64) ([]domain.Bid, error) {
	var bids []domain.Bid
	err := s.core.run(ctx, func(t *txn) error {
		if err := repository.Get(ctx, t.tx, auctionKey(auctionID), &domain.AuctionRecord{}); err != nil {
			return err
		}
		history, err := loadBids(ctx, t, auctionID)
		if err != nil {
			return err
		}
		bids = history.Bids
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bids, nil
}

// HighestBid is the current leader and amount. Leader is empty before the
// first bid.
type HighestBid struct {
	Leader domain.Identity `json:"leader,omitempty"`
	Amount domain.Amount   `json:"amount"`
}

func (s *AuctionService) GetHighestBid(ctx context.Context, auctionID uint64) (*HighestBid, error) {
	a, err := s.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	return &HighestBid{Leader: a.CurrentLeader, Amount: a.CurrentAmount}, nil
}
