package service

import (
	"context"
	"testing"
	"time"

	"github.com/ayo6706/custody-engine/internal/domain"
	"github.com/ayo6706/custody-engine/internal/repository"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

func TestEngineStateOutlivesRecordLifetime(t *testing.T) {
	env := setupTestEngine(t, nil, nil)
	ctx := context.Background()
	require.Equal(t, 30*day, repository.DefaultLifetime.Extend)

	first, err := env.engine.Auctions.CreateAuction(ctx, CreateAuctionRequest{
		Seller:        testSeller,
		Asset:         testAsset,
		StartingPrice: domain.NewAmount(1000),
		ReservePrice:  domain.NewAmount(1500),
		Duration:      10 * day,
		FeeBps:        250,
	})
	require.NoError(t, err)

	env.clock.Advance(5 * day)
	_, err = env.engine.Auctions.PlaceBid(ctx, first.ID, bidder1, domain.NewAmount(2000))
	require.NoError(t, err)

	// The auction counter was last written on day 0.
	env.clock.Advance(26 * day)
	second, err := env.engine.Auctions.CreateAuction(ctx, CreateAuctionRequest{
		Seller:        "other-seller",
		Asset:         testAsset,
		StartingPrice: domain.NewAmount(10),
		ReservePrice:  domain.NewAmount(10),
		Duration:      day,
	})
	require.NoError(t, err)
	require.Equal(t, first.ID+1, second.ID)

	got, err := env.engine.Auctions.GetAuction(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, testSeller, got.Seller)
	require.Equal(t, bidder1, got.CurrentLeader)
	require.Equal(t, "2000", got.CurrentAmount.String())

	dist, err := env.engine.Auctions.SettleAuction(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, "1950", dist.SellerAmount.String())
	require.Equal(t, "50", dist.FeeAmount.String())
	require.Equal(t, []uint64{1, 2}, dist.PayoutIDs)

	env.clock.Advance(40 * day)
	total, err := env.engine.Fees.TotalFees(ctx)
	require.NoError(t, err)
	require.Equal(t, "50", total.String())

	cfg, err := env.engine.Fees.GetConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, testArbitrator, cfg.Arbitrator)
	require.Len(t, env.payouts(t), 2)

	rec := env.createFundedEscrow(t, domain.KindEscrow, 1000)
	released, err := env.engine.Custody.Release(ctx, domain.KindEscrow, rec.ID, testBuyer)
	require.NoError(t, err)
	require.Equal(t, []uint64{3, 4}, released.PayoutIDs)
}

func TestCreateAuctionRejectsHorizonBeyondLifetime(t *testing.T) {
	env := setupTestEngine(t, nil, nil)
	ctx := context.Background()
	req := CreateAuctionRequest{
		Seller:        testSeller,
		Asset:         testAsset,
		StartingPrice: domain.NewAmount(1000),
		ReservePrice:  domain.NewAmount(1000),
		Duration:      60 * day,
	}

	_, err := env.engine.Auctions.CreateAuction(ctx, req)
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	req.Duration = 10 * day
	req.StartTime = env.clock.Now().Add(10 * day).Unix()
	_, err = env.engine.Auctions.CreateAuction(ctx, req)
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	req.StartTime = 0
	req.Duration = 15 * day
	_, err = env.engine.Auctions.CreateAuction(ctx, req)
	require.NoError(t, err)

	env.engine.SetRecordLifetime(repository.Lifetime{Extend: 2 * time.Hour, Max: day})
	req.Duration = 2 * time.Hour
	_, err = env.engine.Auctions.CreateAuction(ctx, req)
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	req.Duration = time.Hour
	_, err = env.engine.Auctions.CreateAuction(ctx, req)
	require.NoError(t, err)
}
