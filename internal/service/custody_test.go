package service

import (
	"context"
	"testing"

	"github.com/ayo6706/custody-engine/internal/auth"
	"github.com/ayo6706/custody-engine/internal/domain"
	"github.com/ayo6706/custody-engine/internal/events"
	"github.com/ayo6706/custody-engine/internal/repository"
	"github.com/stretchr/testify/require"
)

func TestCreateCustodyRoundTrip(t *testing.T) {
	env := setupTestEngine(t, nil, nil)
	ctx := context.Background()

	for _, kind := range []domain.RecordKind{domain.KindEscrow, domain.KindOrder} {
		req := CreateCustodyRequest{Buyer: testBuyer, Seller: testSeller, Asset: testAsset, Amount: domain.NewAmount(1000), CategoryID: 3}
		var created *domain.CustodyRecord
		var err error
		if kind == domain.KindEscrow {
			created, err = env.engine.Custody.CreateEscrow(ctx, req)
		} else {
			created, err = env.engine.Custody.CreateOrder(ctx, req)
		}
		require.NoError(t, err)
		require.Equal(t, uint64(1), created.ID, "ids are allocated per kind")
		require.Equal(t, domain.StatePending, created.State)
		require.False(t, created.Funded)

		got, err := env.engine.Custody.GetRecord(ctx, kind, created.ID)
		require.NoError(t, err)
		require.Equal(t, created, got)
		require.Equal(t, kind, got.Kind)
		require.Equal(t, testBuyer, got.Buyer)
		require.Equal(t, testSeller, got.Seller)
		require.Equal(t, "1000", got.Amount.String())
	}

	require.Len(t, env.recorder.OfType(events.TypeRecordCreated), 2)
}

func TestCreateCustodyRejectsInvalidInput(t *testing.T) {
	env := setupTestEngine(t, nil, nil)
	ctx := context.Background()

	cases := map[string]CreateCustodyRequest{
		"zero amount":  {Buyer: testBuyer, Seller: testSeller, Asset: testAsset},
		"no buyer":     {Seller: testSeller, Asset: testAsset, Amount: domain.NewAmount(1)},
		"self dealing": {Buyer: testBuyer, Seller: testBuyer, Asset: testAsset, Amount: domain.NewAmount(1)},
		"no asset":     {Buyer: testBuyer, Seller: testSeller, Amount: domain.NewAmount(1)},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.engine.Custody.CreateEscrow(ctx, req)
			require.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
	require.Empty(t, env.recorder.Events())
}

func TestCreateEscrowWithCallerAssignedID(t *testing.T) {
	env := setupTestEngine(t, nil, nil)
	ctx := context.Background()
	req := CreateCustodyRequest{ID: 42, Buyer: testBuyer, Seller: testSeller, Asset: testAsset, Amount: domain.NewAmount(10)}

	rec, err := env.engine.Custody.CreateEscrow(ctx, req)
	require.NoError(t, err)
	require.Equal(t, uint64(42), rec.ID)

	_, err = env.engine.Custody.CreateEscrow(ctx, req)
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	req.ID = 0
	next, err := env.engine.Custody.CreateEscrow(ctx, req)
	require.NoError(t, err)
	require.Equal(t, uint64(43), next.ID)
}

func TestGetRecordNotFound(t *testing.T) {
	env := setupTestEngine(t, nil, nil)

	_, err := env.engine.Custody.GetRecord(context.Background(), domain.KindEscrow, 99)
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.Equal(t, domain.CodeNotFound, domain.CodeOf(err))

	_, err = env.engine.Custody.GetRecord(context.Background(), domain.KindAuction, 1)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestFundEscrow(t *testing.T) {
	env := setupTestEngine(t, nil, nil)
	ctx := context.Background()

	rec, err := env.engine.Custody.CreateEscrow(ctx, CreateCustodyRequest{Buyer: testBuyer, Seller: testSeller, Asset: testAsset, Amount: domain.NewAmount(500)})
	require.NoError(t, err)

	_, err = env.engine.Custody.FundEscrow(ctx, domain.KindEscrow, rec.ID, testSeller)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	funded, err := env.engine.Custody.FundEscrow(ctx, domain.KindEscrow, rec.ID, testBuyer)
	require.NoError(t, err)
	require.True(t, funded.Funded)

	_, err = env.engine.Custody.FundEscrow(ctx, domain.KindEscrow, rec.ID, testBuyer)
	require.ErrorIs(t, err, domain.ErrAlreadyFunded)
	require.Len(t, env.recorder.OfType(events.TypeRecordFunded), 1)
}

func TestReleaseEscrowPaysSellerAndFee(t *testing.T) {
	env := setupTestEngine(t, nil, nil)
	ctx := context.Background()
	rec := env.createFundedEscrow(t, domain.KindEscrow, 1000)
	env.recorder.Reset()

	dist, err := env.engine.Custody.Release(ctx, domain.KindEscrow, rec.ID, testBuyer)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeReleased, dist.Outcome)
	require.Equal(t, "975", dist.SellerAmount.String())
	require.Equal(t, "25", dist.FeeAmount.String())
	require.Len(t, dist.PayoutIDs, 2)

	got, err := env.engine.Custody.GetRecord(ctx, domain.KindEscrow, rec.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StateReleased, got.State)
	require.True(t, got.Settled)

	total, err := env.engine.Fees.TotalFees(ctx)
	require.NoError(t, err)
	require.Equal(t, "25", total.String())

	payouts := env.payouts(t)
	require.Len(t, payouts, 2)
	require.Equal(t, domain.PayoutSeller, payouts[0].Reason)
	require.Equal(t, testSeller, payouts[0].Recipient)
	require.Equal(t, "975", payouts[0].Amount.String())
	require.Equal(t, domain.PayoutFee, payouts[1].Reason)
	require.Equal(t, testCollector, payouts[1].Recipient)

	require.Len(t, env.recorder.OfType(events.TypeStateChanged), 1)
	require.Len(t, env.recorder.OfType(events.TypeSettled), 1)
	require.Len(t, env.recorder.OfType(events.TypeFeeCollected), 1)
}

func TestReleaseRequiresFunding(t *testing.T) {
	env := setupTestEngine(t, nil, nil)
	ctx := context.Background()

	rec, err := env.engine.Custody.CreateEscrow(ctx, CreateCustodyRequest{Buyer: testBuyer, Seller: testSeller, Asset: testAsset, Amount: domain.NewAmount(1000)})
	require.NoError(t, err)

	_, err = env.engine.Custody.Release(ctx, domain.KindEscrow, rec.ID, testBuyer)
	require.ErrorIs(t, err, domain.ErrNotFunded)

	got, err := env.engine.Custody.GetRecord(ctx, domain.KindEscrow, rec.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatePending, got.State)
}

func TestRefundUnfundedEscrowSettlesWithoutPayout(t *testing.T) {
	env := setupTestEngine(t, nil, nil)
	ctx := context.Background()

	rec, err := env.engine.Custody.CreateEscrow(ctx, CreateCustodyRequest{Buyer: testBuyer, Seller: testSeller, Asset: testAsset, Amount: domain.NewAmount(1000)})
	require.NoError(t, err)

	dist, err := env.engine.Custody.Refund(ctx, domain.KindEscrow, rec.ID, testBuyer)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeRefunded, dist.Outcome)
	require.True(t, dist.RefundAmount.IsZero())
	require.Empty(t, dist.PayoutIDs)
	require.Empty(t, env.payouts(t))
}

func TestRefundFundedEscrowReturnsDeposit(t *testing.T) {
	env := setupTestEngine(t, nil, nil)
	rec := env.createFundedEscrow(t, domain.KindEscrow, 800)

	dist, err := env.engine.Custody.Refund(context.Background(), domain.KindEscrow, rec.ID, testBuyer)
	require.NoError(t, err)
	require.Equal(t, testBuyer, dist.Refundee)
	require.Equal(t, "800", dist.RefundAmount.String())

	payouts := env.payouts(t)
	require.Len(t, payouts, 1)
	require.Equal(t, domain.PayoutBuyerRefund, payouts[0].Reason)

	total, err := env.engine.Fees.TotalFees(context.Background())
	require.NoError(t, err)
	require.True(t, total.IsZero())
}

func TestOrderLifecycle(t *testing.T) {
	env := setupTestEngine(t, nil, nil)
	ctx := context.Background()

	unfunded, err := env.engine.Custody.CreateOrder(ctx, CreateCustodyRequest{Buyer: testBuyer, Seller: testSeller, Asset: testAsset, Amount: domain.NewAmount(2000)})
	require.NoError(t, err)
	_, err = env.engine.Custody.Ship(ctx, unfunded.ID, testSeller, "TRACK-0")
	require.ErrorIs(t, err, domain.ErrNotFunded)

	rec := env.createFundedEscrow(t, domain.KindOrder, 2000)

	_, err = env.engine.Custody.Ship(ctx, rec.ID, testBuyer, "TRACK-1")
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	shipped, err := env.engine.Custody.Ship(ctx, rec.ID, testSeller, " TRACK-1 ")
	require.NoError(t, err)
	require.Equal(t, domain.StateShipped, shipped.State)
	require.Equal(t, "TRACK-1", shipped.ShippingRef)

	_, err = env.engine.Custody.Deliver(ctx, rec.ID, testSeller)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = env.engine.Custody.Release(ctx, domain.KindOrder, rec.ID, testBuyer)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	delivered, err := env.engine.Custody.Deliver(ctx, rec.ID, testBuyer)
	require.NoError(t, err)
	require.Equal(t, domain.StateDelivered, delivered.State)

	dist, err := env.engine.Custody.Release(ctx, domain.KindOrder, rec.ID, testBuyer)
	require.NoError(t, err)
	require.Equal(t, "1950", dist.SellerAmount.String())
	require.Equal(t, "50", dist.FeeAmount.String())
}

func TestDisputeResolvedByArbitrator(t *testing.T) {
	env := setupTestEngine(t, nil, nil)
	ctx := context.Background()
	rec := env.createFundedEscrow(t, domain.KindEscrow, 1000)

	disputed, err := env.engine.Custody.Dispute(ctx, domain.KindEscrow, rec.ID, testBuyer)
	require.NoError(t, err)
	require.Equal(t, domain.StateDisputed, disputed.State)

	_, err = env.engine.Custody.Release(ctx, domain.KindEscrow, rec.ID, testBuyer)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = env.engine.Custody.Dispute(ctx, domain.KindEscrow, rec.ID, testBuyer)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	dist, err := env.engine.Custody.Release(ctx, domain.KindEscrow, rec.ID, testArbitrator)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeReleased, dist.Outcome)
}

func TestTransitionStatusThenSettle(t *testing.T) {
	env := setupTestEngine(t, nil, nil)
	ctx := context.Background()
	rec := env.createFundedEscrow(t, domain.KindEscrow, 1000)

	_, err := env.engine.Custody.TransitionStatus(ctx, domain.KindEscrow, rec.ID, testBuyer, domain.StatePending)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = env.engine.Custody.Settle(ctx, domain.KindEscrow, rec.ID, testSeller)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	released, err := env.engine.Custody.TransitionStatus(ctx, domain.KindEscrow, rec.ID, testBuyer, domain.StateReleased)
	require.NoError(t, err)
	require.Equal(t, domain.StateReleased, released.State)
	require.False(t, released.Settled)
	require.Empty(t, env.payouts(t))

	_, err = env.engine.Custody.Settle(ctx, domain.KindEscrow, rec.ID, "stranger")
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	dist, err := env.engine.Custody.Settle(ctx, domain.KindEscrow, rec.ID, testSeller)
	require.NoError(t, err)
	require.Equal(t, "975", dist.SellerAmount.String())

	_, err = env.engine.Custody.Settle(ctx, domain.KindEscrow, rec.ID, testSeller)
	require.ErrorIs(t, err, domain.ErrAlreadySettled)

	total, err := env.engine.Fees.TotalFees(ctx)
	require.NoError(t, err)
	require.Equal(t, "25", total.String())
	require.Len(t, env.payouts(t), 2)
	require.Len(t, env.recorder.OfType(events.TypeSettled), 1)
}

func TestCategoryFeeOverridesBaseRate(t *testing.T) {
	env := setupTestEngine(t, nil, nil)
	ctx := context.Background()

	_, err := env.engine.Fees.SetCategoryFee(ctx, testBuyer, 7, 1000)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = env.engine.Fees.SetCategoryFee(ctx, testAdmin, 7, 1000)
	require.NoError(t, err)

	rec, err := env.engine.Custody.CreateEscrow(ctx, CreateCustodyRequest{Buyer: testBuyer, Seller: testSeller, Asset: testAsset, Amount: domain.NewAmount(1000), CategoryID: 7})
	require.NoError(t, err)
	_, err = env.engine.Custody.FundEscrow(ctx, domain.KindEscrow, rec.ID, testBuyer)
	require.NoError(t, err)

	dist, err := env.engine.Custody.Release(ctx, domain.KindEscrow, rec.ID, testBuyer)
	require.NoError(t, err)
	require.Equal(t, "100", dist.FeeAmount.String())
	require.Equal(t, "900", dist.SellerAmount.String())
}

func TestFeeOverflowAbortsSettlement(t *testing.T) {
	env := setupTestEngine(t, nil, nil)
	ctx := context.Background()
	rec := env.createFundedEscrow(t, domain.KindEscrow, 1000)

	err := env.store.RunInTx(ctx, func(tx repository.Tx) error {
		return repository.Put(ctx, tx, feeTotalsKey, domain.FeeTotals{TotalCollected: domain.MaxAmount})
	})
	require.NoError(t, err)
	env.recorder.Reset()

	_, err = env.engine.Custody.Release(ctx, domain.KindEscrow, rec.ID, testBuyer)
	require.ErrorIs(t, err, domain.ErrFeeOverflow)

	got, err := env.engine.Custody.GetRecord(ctx, domain.KindEscrow, rec.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatePending, got.State)
	require.False(t, got.Settled)
	require.Empty(t, env.payouts(t))
	require.Empty(t, env.recorder.Events())
}

func TestUnauthorizedCallerWritesNothing(t *testing.T) {
	env := setupTestEngine(t, auth.Deny(testBuyer), nil)
	ctx := context.Background()

	_, err := env.engine.Custody.CreateEscrow(ctx, CreateCustodyRequest{Buyer: testBuyer, Seller: testSeller, Asset: testAsset, Amount: domain.NewAmount(1000)})
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = env.engine.Custody.GetRecord(ctx, domain.KindEscrow, 1)
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.Empty(t, env.recorder.Events())
}
