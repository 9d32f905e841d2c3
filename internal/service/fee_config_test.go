package service

import (
	"context"
	"testing"

	"github.com/ayo6706/custody-engine/internal/domain"
	"github.com/ayo6706/custody-engine/internal/events"
	"github.com/stretchr/testify/require"
)

func TestInitializeIsIdempotent(t *testing.T) {
	env := setupTestEngine(t, nil, nil)
	ctx := context.Background()

	cfg, err := env.engine.Fees.Initialize(ctx, domain.FeeConfig{Admin: "someone-else", BaseFeeBps: 9000})
	require.NoError(t, err)
	require.Equal(t, testAdmin, cfg.Admin)
	require.Equal(t, uint32(250), cfg.BaseFeeBps)
	require.Equal(t, uint64(1), cfg.Version)
	require.Empty(t, env.recorder.Events())
}

func TestInitializeValidation(t *testing.T) {
	env := setupTestEngine(t, nil, nil)

	_, err := env.engine.Fees.Initialize(context.Background(), domain.FeeConfig{BaseFeeBps: 10})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = env.engine.Fees.Initialize(context.Background(), domain.FeeConfig{Admin: testAdmin, BaseFeeBps: 10_001})
	require.ErrorIs(t, err, domain.ErrInvalidFeeRate)
}

func TestUpdateFeeConfig(t *testing.T) {
	env := setupTestEngine(t, nil, nil)
	ctx := context.Background()
	rate := uint32(500)

	_, err := env.engine.Fees.UpdateConfig(ctx, testBuyer, UpdateFeeConfigRequest{BaseFeeBps: &rate})
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	tooHigh := uint32(20_000)
	_, err = env.engine.Fees.UpdateConfig(ctx, testAdmin, UpdateFeeConfigRequest{BaseFeeBps: &tooHigh})
	require.ErrorIs(t, err, domain.ErrInvalidFeeRate)

	arb := domain.Identity("new-arbitrator")
	cfg, err := env.engine.Fees.UpdateConfig(ctx, testAdmin, UpdateFeeConfigRequest{BaseFeeBps: &rate, Arbitrator: &arb})
	require.NoError(t, err)
	require.Equal(t, uint32(500), cfg.BaseFeeBps)
	require.Equal(t, arb, cfg.Arbitrator)
	require.Equal(t, testCollector, cfg.FeeCollector)
	require.Equal(t, uint64(2), cfg.Version)

	stored, err := env.engine.Fees.GetConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, cfg, stored)
	require.Len(t, env.recorder.OfType(events.TypeConfigUpdated), 1)

	// The new rate applies to the next settlement.
	rec := env.createFundedEscrow(t, domain.KindEscrow, 1000)
	dist, err := env.engine.Custody.Release(ctx, domain.KindEscrow, rec.ID, testBuyer)
	require.NoError(t, err)
	require.Equal(t, "50", dist.FeeAmount.String())
}

func TestUpdateFeeConfigTransfersAdmin(t *testing.T) {
	env := setupTestEngine(t, nil, nil)
	ctx := context.Background()
	next := domain.Identity("admin-2")

	_, err := env.engine.Fees.UpdateConfig(ctx, testAdmin, UpdateFeeConfigRequest{Admin: &next})
	require.NoError(t, err)

	_, err = env.engine.Fees.SetCategoryFee(ctx, testAdmin, 1, 100)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	cat, err := env.engine.Fees.SetCategoryFee(ctx, next, 1, 100)
	require.NoError(t, err)
	require.Equal(t, uint32(100), cat.RateBps)

	got, err := env.engine.Fees.GetCategoryFee(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, cat, got)

	_, err = env.engine.Fees.GetCategoryFee(ctx, 2)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSetCategoryFeeValidation(t *testing.T) {
	env := setupTestEngine(t, nil, nil)
	ctx := context.Background()

	_, err := env.engine.Fees.SetCategoryFee(ctx, testAdmin, 0, 100)
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = env.engine.Fees.SetCategoryFee(ctx, testAdmin, 1, 10_001)
	require.ErrorIs(t, err, domain.ErrInvalidFeeRate)
}
