package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/custody-engine/internal/domain"
	"github.com/ayo6706/custody-engine/internal/events"
	"github.com/ayo6706/custody-engine/internal/fees"
	"github.com/ayo6706/custody-engine/internal/observability"
	"github.com/ayo6706/custody-engine/internal/repository"
)

// AuctionService runs competitive sales. Bid handling lives in bidding.go.
type AuctionService struct {
	core *core
}

// CreateAuctionRequest describes a new auction. StartTime zero means now.
type CreateAuctionRequest struct {
	Seller        domain.Identity
	Asset         domain.AssetRef
	StartingPrice domain.Amount
	ReservePrice  domain.Amount
	BuyNowPrice   *domain.Amount
	StartTime     int64
	Duration      time.Duration
	FeeBps        uint32
}

func (r CreateAuctionRequest) validate() error {
	switch {
	case strings.TrimSpace(string(r.Seller)) == "":
		return fmt.Errorf("%w: seller is required", domain.ErrInvalidInput)
	case strings.TrimSpace(string(r.Asset)) == "":
		return fmt.Errorf("%w: asset is required", domain.ErrInvalidInput)
	case r.StartingPrice.IsZero():
		return fmt.Errorf("%w: starting price must be positive", domain.ErrInvalidInput)
	case r.Duration < time.Second:
		return fmt.Errorf("%w: duration must be at least one second", domain.ErrInvalidInput)
	case r.StartTime < 0:
		return fmt.Errorf("%w: start time must not be negative", domain.ErrInvalidInput)
	case r.ReservePrice.LessThan(r.StartingPrice):
		return fmt.Errorf("%w: reserve %s < starting %s", domain.ErrInvalidReservePrice, r.ReservePrice, r.StartingPrice)
	case r.BuyNowPrice != nil && r.BuyNowPrice.LessThan(r.ReservePrice):
		return fmt.Errorf("%w: buy-now price %s below reserve %s", domain.ErrInvalidInput, r.BuyNowPrice, r.ReservePrice)
	}
	return fees.ValidateRate(r.FeeBps)
}

func (s *AuctionService) CreateAuction(ctx context.Context, req CreateAuctionRequest) (*domain.AuctionRecord, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if err := s.core.authorize(ctx, req.Seller); err != nil {
		return nil, err
	}

	var a *domain.AuctionRecord
	err := s.core.run(ctx, func(t *txn) error {
		start := req.StartTime
		if start == 0 {
			start = t.now
		}
		if err := s.checkHorizon(t.now, start, req.Duration); err != nil {
			return err
		}
		id, err := repository.NextID(ctx, t.tx, repository.KindAuction)
		if err != nil {
			return err
		}
		a = &domain.AuctionRecord{
			ID:            id,
			Seller:        req.Seller,
			Asset:         req.Asset,
			StartingPrice: req.StartingPrice,
			ReservePrice:  req.ReservePrice,
			BuyNowPrice:   req.BuyNowPrice,
			StartTime:     start,
			EndTime:       start + int64(req.Duration/time.Second),
			FeeBps:        req.FeeBps,
			State:         domain.StateActive,
		}
		if err := repository.Put(ctx, t.tx, auctionKey(id), a); err != nil {
			return err
		}
		if err := repository.Put(ctx, t.tx, bidsKey(id), domain.BidHistory{AuctionID: id, Bids: []domain.Bid{}}); err != nil {
			return err
		}
		price := a.StartingPrice
		t.emit(events.Event{Type: events.TypeRecordCreated, Kind: domain.KindAuction, RecordID: id, Actor: req.Seller, To: a.State, Amount: &price})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// checkHorizon rejects auctions that would still be open after half the
// record lifetime. The other half is the window for settling the auction
// before its record can lapse.
func (s *AuctionService) checkHorizon(now, start int64, duration time.Duration) error {
	horizon := int64(s.core.lifetime.Extend / 2 / time.Second)
	secs := int64(duration / time.Second)
	if start < now {
		start = now
	}
	if secs > horizon || start-now > horizon-secs {
		return fmt.Errorf("%w: auction must end within %s of creation", domain.ErrInvalidInput, s.core.lifetime.Extend/2)
	}
	return nil
}

func (s *AuctionService) GetAuction(ctx context.Context, id uint64) (*domain.AuctionRecord, error) {
	var a domain.AuctionRecord
	err := s.core.run(ctx, func(t *txn) error {
		return repository.Get(ctx, t.tx, auctionKey(id), &a)
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// EndAuction closes an Active auction whose end time has passed.
func (s *AuctionService) EndAuction(ctx context.Context, id uint64) (*domain.AuctionRecord, error) {
	var a domain.AuctionRecord
	err := s.core.run(ctx, func(t *txn) error {
		if err := repository.Get(ctx, t.tx, auctionKey(id), &a); err != nil {
			return err
		}
		if a.State == domain.StateActive && t.now < a.EndTime {
			return fmt.Errorf("%w: auction %d runs until %d", domain.ErrInvalidTransition, id, a.EndTime)
		}
		if err := endAuction(ctx, t, &a, domain.ActionEnd, domain.RoleSystem, ""); err != nil {
			return err
		}
		return repository.Put(ctx, t.tx, auctionKey(id), &a)
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// SettleAuction distributes an auction once bidding is over. An Active auction
// past its end time is ended in the same transaction.
func (s *AuctionService) SettleAuction(ctx context.Context, id uint64) (*domain.Distribution, error) {
	var dist *domain.Distribution
	err := s.core.run(ctx, func(t *txn) error {
		var a domain.AuctionRecord
		if err := repository.Get(ctx, t.tx, auctionKey(id), &a); err != nil {
			return err
		}
		switch a.State {
		case domain.StateSettled:
			return fmt.Errorf("%w: auction %d", domain.ErrAlreadySettled, id)
		case domain.StateActive:
			if t.now < a.EndTime {
				return fmt.Errorf("%w: auction %d has not ended", domain.ErrAuctionNotActive, id)
			}
			if err := endAuction(ctx, t, &a, domain.ActionEnd, domain.RoleSystem, ""); err != nil {
				return err
			}
		}
		var err error
		dist, err = settleAuction(ctx, t, &a)
		return err
	})
	if err != nil {
		return nil, err
	}
	return dist, nil
}

// CancelAuction withdraws an auction that has never received a bid.
func (s *AuctionService) CancelAuction(ctx context.Context, id uint64, seller domain.Identity) (*domain.AuctionRecord, error) {
	if err := s.core.authorize(ctx, seller); err != nil {
		return nil, err
	}
	var a domain.AuctionRecord
	err := s.core.run(ctx, func(t *txn) error {
		if err := repository.Get(ctx, t.tx, auctionKey(id), &a); err != nil {
			return err
		}
		if a.Seller != seller {
			return fmt.Errorf("%w: only the seller cancels auction %d", domain.ErrUnauthorized, id)
		}
		history, err := loadBids(ctx, t, id)
		if err != nil {
			return err
		}
		if len(history.Bids) > 0 || a.HasLeader() {
			return fmt.Errorf("%w: auction %d has %d bids", domain.ErrCannotCancelWithBids, id, len(history.Bids))
		}
		next, err := domain.Validate(domain.KindAuction, a.State, domain.ActionCancel, domain.RoleSeller)
		if err != nil {
			return err
		}
		prev := a.State
		a.State = next
		if err := repository.Put(ctx, t.tx, auctionKey(id), &a); err != nil {
			return err
		}
		t.emit(events.Event{Type: events.TypeStateChanged, Kind: domain.KindAuction, RecordID: id, Actor: seller, From: prev, To: next})
		t.onCommit(func() { observability.IncrementTransition(domain.KindAuction, prev, next) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// endAuction moves a to Ended in memory and stages the event. The caller
// persists a.
func endAuction(_ context.Context, t *txn, a *domain.AuctionRecord, action domain.Action, role domain.Role, actor domain.Identity) error {
	next, err := domain.Validate(domain.KindAuction, a.State, action, role)
	if err != nil {
		return err
	}
	prev := a.State
	a.State = next
	t.emit(events.Event{Type: events.TypeStateChanged, Kind: domain.KindAuction, RecordID: a.ID, Actor: actor, From: prev, To: next})
	t.onCommit(func() { observability.IncrementTransition(domain.KindAuction, prev, next) })
	return nil
}
