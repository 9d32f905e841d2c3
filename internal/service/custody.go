package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/ayo6706/custody-engine/internal/domain"
	"github.com/ayo6706/custody-engine/internal/events"
	"github.com/ayo6706/custody-engine/internal/observability"
	"github.com/ayo6706/custody-engine/internal/repository"
)

// CustodyService drives escrow and order records through their lifecycle.
type CustodyService struct {
	core *core
}

// CreateCustodyRequest describes a new escrow or order. ID is optional; zero
// means the next id for the kind is issued.
type CreateCustodyRequest struct {
	ID         uint64
	Buyer      domain.Identity
	Seller     domain.Identity
	Asset      domain.AssetRef
	Amount     domain.Amount
	CategoryID uint32
}

func (r CreateCustodyRequest) validate() error {
	switch {
	case r.Amount.IsZero():
		return fmt.Errorf("%w: amount must be positive", domain.ErrInvalidInput)
	case strings.TrimSpace(string(r.Buyer)) == "":
		return fmt.Errorf("%w: buyer is required", domain.ErrInvalidInput)
	case strings.TrimSpace(string(r.Seller)) == "":
		return fmt.Errorf("%w: seller is required", domain.ErrInvalidInput)
	case r.Buyer == r.Seller:
		return fmt.Errorf("%w: buyer and seller must differ", domain.ErrInvalidInput)
	case strings.TrimSpace(string(r.Asset)) == "":
		return fmt.Errorf("%w: asset is required", domain.ErrInvalidInput)
	}
	return nil
}

func (s *CustodyService) CreateEscrow(ctx context.Context, req CreateCustodyRequest) (*domain.CustodyRecord, error) {
	return s.create(ctx, domain.KindEscrow, req)
}

func (s *CustodyService) CreateOrder(ctx context.Context, req CreateCustodyRequest) (*domain.CustodyRecord, error) {
	return s.create(ctx, domain.KindOrder, req)
}

func (s *CustodyService) create(ctx context.Context, kind domain.RecordKind, req CreateCustodyRequest) (*domain.CustodyRecord, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if err := s.core.authorize(ctx, req.Buyer); err != nil {
		return nil, err
	}

	var rec *domain.CustodyRecord
	err := s.core.run(ctx, func(t *txn) error {
		storeKind := repository.KindFor(kind)
		id := req.ID
		if id != 0 {
			exists, err := repository.Exists(ctx, t.tx, custodyKey(kind, id))
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("%w: %s %d already exists", domain.ErrInvalidInput, kind, id)
			}
			if err := repository.ReserveID(ctx, t.tx, storeKind, id); err != nil {
				return err
			}
		} else {
			var err error
			if id, err = repository.NextID(ctx, t.tx, storeKind); err != nil {
				return err
			}
		}

		rec = &domain.CustodyRecord{
			ID:         id,
			Kind:       kind,
			Buyer:      req.Buyer,
			Seller:     req.Seller,
			Asset:      req.Asset,
			Amount:     req.Amount,
			State:      domain.StatePending,
			CategoryID: req.CategoryID,
			CreatedAt:  t.now,
		}
		if err := repository.Put(ctx, t.tx, custodyKey(kind, id), rec); err != nil {
			return err
		}
		amount := rec.Amount
		t.emit(events.Event{Type: events.TypeRecordCreated, Kind: kind, RecordID: id, Actor: req.Buyer, To: rec.State, Amount: &amount})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetRecord returns the escrow or order with id.
func (s *CustodyService) GetRecord(ctx context.Context, kind domain.RecordKind, id uint64) (*domain.CustodyRecord, error) {
	if err := checkCustodyKind(kind); err != nil {
		return nil, err
	}
	var rec domain.CustodyRecord
	err := s.core.run(ctx, func(t *txn) error {
		return repository.Get(ctx, t.tx, custodyKey(kind, id), &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// FundEscrow records the buyer's deposit. A record is funded at most once.
func (s *CustodyService) FundEscrow(ctx context.Context, kind domain.RecordKind, id uint64, caller domain.Identity) (*domain.CustodyRecord, error) {
	if err := checkCustodyKind(kind); err != nil {
		return nil, err
	}
	if err := s.core.authorize(ctx, caller); err != nil {
		return nil, err
	}
	var rec *domain.CustodyRecord
	err := s.core.run(ctx, func(t *txn) error {
		var err error
		rec, err = fund(ctx, t, kind, id, caller, "", func(r *domain.CustodyRecord) error {
			if caller != r.Buyer {
				return fmt.Errorf("%w: only the buyer funds %s %d", domain.ErrUnauthorized, kind, id)
			}
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// fund marks the record funded after check accepts it.
func fund(ctx context.Context, t *txn, kind domain.RecordKind, id uint64, actor domain.Identity, ref string, check func(*domain.CustodyRecord) error) (*domain.CustodyRecord, error) {
	var rec domain.CustodyRecord
	if err := repository.Get(ctx, t.tx, custodyKey(kind, id), &rec); err != nil {
		return nil, err
	}
	if err := check(&rec); err != nil {
		return nil, err
	}
	if rec.Funded {
		return nil, fmt.Errorf("%w: %s %d", domain.ErrAlreadyFunded, kind, id)
	}
	if rec.State != domain.StatePending {
		return nil, fmt.Errorf("%w: cannot fund %s %d in %s", domain.ErrInvalidTransition, kind, id, rec.State)
	}
	rec.Funded = true
	rec.FundingRef = ref
	if err := repository.Put(ctx, t.tx, custodyKey(kind, id), &rec); err != nil {
		return nil, err
	}
	amount := rec.Amount
	t.emit(events.Event{Type: events.TypeRecordFunded, Kind: kind, RecordID: id, Actor: actor, Amount: &amount})
	return &rec, nil
}

// TransitionStatus moves the record to target on behalf of caller. Reaching a
// terminal state this way does not pay out; call Settle afterwards.
func (s *CustodyService) TransitionStatus(ctx context.Context, kind domain.RecordKind, id uint64, caller domain.Identity, target domain.State) (*domain.CustodyRecord, error) {
	if err := checkCustodyKind(kind); err != nil {
		return nil, err
	}
	if err := s.core.authorize(ctx, caller); err != nil {
		return nil, err
	}
	var rec *domain.CustodyRecord
	err := s.core.run(ctx, func(t *txn) error {
		var err error
		rec, err = s.transition(ctx, t, kind, id, caller, func(current domain.State) (domain.Action, error) {
			return domain.TargetAction(kind, current, target)
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Ship marks an order as shipped by its seller.
func (s *CustodyService) Ship(ctx context.Context, id uint64, caller domain.Identity, shippingRef string) (*domain.CustodyRecord, error) {
	return s.apply(ctx, domain.KindOrder, id, caller, domain.ActionShip, func(rec *domain.CustodyRecord) {
		rec.ShippingRef = strings.TrimSpace(shippingRef)
	})
}

// Deliver confirms receipt of an order.
func (s *CustodyService) Deliver(ctx context.Context, id uint64, caller domain.Identity) (*domain.CustodyRecord, error) {
	return s.apply(ctx, domain.KindOrder, id, caller, domain.ActionDeliver, nil)
}

// Dispute escalates a record to the arbitrator.
func (s *CustodyService) Dispute(ctx context.Context, kind domain.RecordKind, id uint64, caller domain.Identity) (*domain.CustodyRecord, error) {
	return s.apply(ctx, kind, id, caller, domain.ActionDispute, nil)
}

func (s *CustodyService) apply(ctx context.Context, kind domain.RecordKind, id uint64, caller domain.Identity, action domain.Action, mutate func(*domain.CustodyRecord)) (*domain.CustodyRecord, error) {
	if err := checkCustodyKind(kind); err != nil {
		return nil, err
	}
	if err := s.core.authorize(ctx, caller); err != nil {
		return nil, err
	}
	var rec *domain.CustodyRecord
	err := s.core.run(ctx, func(t *txn) error {
		var err error
		rec, err = s.transition(ctx, t, kind, id, caller, func(domain.State) (domain.Action, error) {
			return action, nil
		}, mutate)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Release moves the record to Released and pays the seller in one transaction.
func (s *CustodyService) Release(ctx context.Context, kind domain.RecordKind, id uint64, caller domain.Identity) (*domain.Distribution, error) {
	return s.closeOut(ctx, kind, id, caller, domain.ActionRelease)
}

// Refund moves the record to Refunded and returns the deposit to the buyer in
// one transaction.
func (s *CustodyService) Refund(ctx context.Context, kind domain.RecordKind, id uint64, caller domain.Identity) (*domain.Distribution, error) {
	return s.closeOut(ctx, kind, id, caller, domain.ActionRefund)
}

func (s *CustodyService) closeOut(ctx context.Context, kind domain.RecordKind, id uint64, caller domain.Identity, action domain.Action) (*domain.Distribution, error) {
	if err := checkCustodyKind(kind); err != nil {
		return nil, err
	}
	if err := s.core.authorize(ctx, caller); err != nil {
		return nil, err
	}
	var dist *domain.Distribution
	err := s.core.run(ctx, func(t *txn) error {
		rec, err := s.transition(ctx, t, kind, id, caller, func(domain.State) (domain.Action, error) {
			return action, nil
		})
		if err != nil {
			return err
		}
		dist, err = settleCustody(ctx, t, rec)
		return err
	})
	if err != nil {
		return nil, err
	}
	return dist, nil
}

// Settle pays out a record that reached a terminal state through
// TransitionStatus. Any party to the record may trigger it.
func (s *CustodyService) Settle(ctx context.Context, kind domain.RecordKind, id uint64, caller domain.Identity) (*domain.Distribution, error) {
	if err := checkCustodyKind(kind); err != nil {
		return nil, err
	}
	if err := s.core.authorize(ctx, caller); err != nil {
		return nil, err
	}
	var dist *domain.Distribution
	err := s.core.run(ctx, func(t *txn) error {
		var rec domain.CustodyRecord
		if err := repository.Get(ctx, t.tx, custodyKey(kind, id), &rec); err != nil {
			return err
		}
		arb, err := arbitrator(ctx, t)
		if err != nil {
			return err
		}
		if rec.RoleOf(caller, arb) == domain.RoleNone {
			return fmt.Errorf("%w: %s is not a party to %s %d", domain.ErrUnauthorized, caller, kind, id)
		}
		dist, err = settleCustody(ctx, t, &rec)
		return err
	})
	if err != nil {
		return nil, err
	}
	return dist, nil
}

// transition loads the record, validates the requested move against the
// transition table and writes the new state.
func (s *CustodyService) transition(ctx context.Context, t *txn, kind domain.RecordKind, id uint64, caller domain.Identity, resolve func(domain.State) (domain.Action, error), mutate ...func(*domain.CustodyRecord)) (*domain.CustodyRecord, error) {
	var rec domain.CustodyRecord
	if err := repository.Get(ctx, t.tx, custodyKey(kind, id), &rec); err != nil {
		return nil, err
	}
	action, err := resolve(rec.State)
	if err != nil {
		return nil, err
	}
	arb, err := arbitrator(ctx, t)
	if err != nil {
		return nil, err
	}
	next, err := domain.Validate(kind, rec.State, action, rec.RoleOf(caller, arb))
	if err != nil {
		return nil, err
	}
	if (action == domain.ActionShip || next == domain.StateReleased) && !rec.Funded {
		return nil, fmt.Errorf("%w: %s %d", domain.ErrNotFunded, kind, id)
	}

	prev := rec.State
	rec.State = next
	for _, m := range mutate {
		if m != nil {
			m(&rec)
		}
	}
	if err := repository.Put(ctx, t.tx, custodyKey(kind, id), &rec); err != nil {
		return nil, err
	}
	t.emit(events.Event{Type: events.TypeStateChanged, Kind: kind, RecordID: id, Actor: caller, From: prev, To: next})
	t.onCommit(func() { observability.IncrementTransition(kind, prev, next) })
	return &rec, nil
}

func checkCustodyKind(kind domain.RecordKind) error {
	if kind != domain.KindEscrow && kind != domain.KindOrder {
		return fmt.Errorf("%w: %q is not a custody record kind", domain.ErrInvalidInput, kind)
	}
	return nil
}
