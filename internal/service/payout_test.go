package service

import (
	"context"
	"errors"
	"testing"

	"github.com/ayo6706/custody-engine/internal/domain"
	"github.com/ayo6706/custody-engine/internal/events"
	"github.com/stretchr/testify/require"
)

func TestProcessPayoutsSendsPending(t *testing.T) {
	gw := &stubGateway{send: func(key string) (string, error) { return "REF-" + key, nil }}
	env := setupTestEngine(t, nil, gw)
	ctx := context.Background()
	rec := env.createFundedEscrow(t, domain.KindEscrow, 1000)
	_, err := env.engine.Custody.Release(ctx, domain.KindEscrow, rec.ID, testBuyer)
	require.NoError(t, err)

	require.NoError(t, env.engine.Payouts.ProcessPayouts(ctx, 10))
	require.Equal(t, []string{"payout-1", "payout-2"}, gw.calls)

	for _, p := range env.payouts(t) {
		require.Equal(t, domain.PayoutStatusSent, p.Status)
		require.Equal(t, 1, p.Attempts)
		require.NotZero(t, p.CompletedAt)
	}
	p, err := env.engine.Payouts.GetPayout(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "REF-payout-1", p.GatewayRef)
	require.Len(t, env.recorder.OfType(events.TypePayoutSent), 2)

	// Nothing left to claim.
	require.NoError(t, env.engine.Payouts.ProcessPayouts(ctx, 10))
	require.Len(t, gw.calls, 2)
}

func TestProcessPayoutsHonoursBatchSize(t *testing.T) {
	gw := &stubGateway{send: func(key string) (string, error) { return "ok", nil }}
	env := setupTestEngine(t, nil, gw)
	ctx := context.Background()
	rec := env.createFundedEscrow(t, domain.KindEscrow, 1000)
	_, err := env.engine.Custody.Release(ctx, domain.KindEscrow, rec.ID, testBuyer)
	require.NoError(t, err)

	require.NoError(t, env.engine.Payouts.ProcessPayouts(ctx, 1))
	require.Equal(t, []string{"payout-1"}, gw.calls)

	p, err := env.engine.Payouts.GetPayout(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, domain.PayoutStatusPending, p.Status)
}

func TestProcessPayoutsParksAfterMaxAttempts(t *testing.T) {
	gw := &stubGateway{send: func(string) (string, error) { return "", errors.New("rail unavailable") }}
	env := setupTestEngine(t, nil, gw)
	env.engine.Payouts.WithMaxAttempts(2)
	ctx := context.Background()
	rec := env.createFundedEscrow(t, domain.KindEscrow, 1000)
	_, err := env.engine.Custody.Refund(ctx, domain.KindEscrow, rec.ID, testBuyer)
	require.NoError(t, err)

	require.NoError(t, env.engine.Payouts.ProcessPayouts(ctx, 10))
	p, err := env.engine.Payouts.GetPayout(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, domain.PayoutStatusPending, p.Status)
	require.Equal(t, 1, p.Attempts)
	require.Equal(t, "rail unavailable", p.LastError)

	require.NoError(t, env.engine.Payouts.ProcessPayouts(ctx, 10))
	p, err = env.engine.Payouts.GetPayout(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, domain.PayoutStatusManualReview, p.Status)
	require.Equal(t, 2, p.Attempts)

	size, err := env.engine.Payouts.ManualReviewQueueSize(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), size)

	listed, err := env.engine.Payouts.ListManualReviewPayouts(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, uint64(1), listed[0].ID)

	// Parked payouts are not retried.
	require.NoError(t, env.engine.Payouts.ProcessPayouts(ctx, 10))
	require.Len(t, gw.calls, 2)
}

func TestResolveManualReviewPayout(t *testing.T) {
	gw := &stubGateway{send: func(string) (string, error) { return "", errors.New("declined") }}
	env := setupTestEngine(t, nil, gw)
	env.engine.Payouts.WithMaxAttempts(1)
	ctx := context.Background()
	rec := env.createFundedEscrow(t, domain.KindEscrow, 1000)
	_, err := env.engine.Custody.Release(ctx, domain.KindEscrow, rec.ID, testBuyer)
	require.NoError(t, err)
	require.NoError(t, env.engine.Payouts.ProcessPayouts(ctx, 10))

	_, err = env.engine.Payouts.ResolveManualReviewPayout(ctx, ResolveManualReviewRequest{PayoutID: 1, Decision: "ignore", Actor: testAdmin})
	require.ErrorIs(t, err, ErrInvalidManualReviewDecision)

	_, err = env.engine.Payouts.ResolveManualReviewPayout(ctx, ResolveManualReviewRequest{PayoutID: 1, Decision: DecisionConfirmSent, Actor: testSeller})
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	sent, err := env.engine.Payouts.ResolveManualReviewPayout(ctx, ResolveManualReviewRequest{
		PayoutID:   1,
		Decision:   DecisionConfirmSent,
		GatewayRef: "WIRE-77",
		Reason:     "confirmed with bank",
		Actor:      testAdmin,
	})
	require.NoError(t, err)
	require.Equal(t, domain.PayoutStatusSent, sent.Status)
	require.Equal(t, "WIRE-77", sent.GatewayRef)

	_, err = env.engine.Payouts.ResolveManualReviewPayout(ctx, ResolveManualReviewRequest{PayoutID: 1, Decision: DecisionConfirmSent, Actor: testAdmin})
	require.ErrorIs(t, err, ErrPayoutNotInManualReview)

	retried, err := env.engine.Payouts.ResolveManualReviewPayout(ctx, ResolveManualReviewRequest{PayoutID: 2, Decision: " RETRY ", Actor: testAdmin})
	require.NoError(t, err)
	require.Equal(t, domain.PayoutStatusPending, retried.Status)
	require.Zero(t, retried.Attempts)

	size, err := env.engine.Payouts.ManualReviewQueueSize(ctx)
	require.NoError(t, err)
	require.Zero(t, size)

	gw.send = func(string) (string, error) { return "REF", nil }
	require.NoError(t, env.engine.Payouts.ProcessPayouts(ctx, 10))
	p, err := env.engine.Payouts.GetPayout(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, domain.PayoutStatusSent, p.Status)
}

func TestProcessPayoutsWithoutGateway(t *testing.T) {
	env := setupTestEngine(t, nil, nil)
	require.Error(t, env.engine.Payouts.ProcessPayouts(context.Background(), 10))
}

func TestProcessPayoutsRequeuesOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gw := &stubGateway{}
	gw.send = func(string) (string, error) {
		cancel()
		return "", context.Canceled
	}
	env := setupTestEngine(t, nil, gw)
	rec := env.createFundedEscrow(t, domain.KindEscrow, 1000)
	_, err := env.engine.Custody.Release(context.Background(), domain.KindEscrow, rec.ID, testBuyer)
	require.NoError(t, err)

	err = env.engine.Payouts.ProcessPayouts(ctx, 10)
	require.ErrorIs(t, err, context.Canceled)

	for _, p := range env.payouts(t) {
		require.Equal(t, domain.PayoutStatusPending, p.Status)
		require.Zero(t, p.Attempts)
	}
	report, err := NewReconciliationService(env.engine).Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Balanced())
}
