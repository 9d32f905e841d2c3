package worker

import (
	"context"
	"testing"
	"time"

	"github.com/ayo6706/custody-engine/internal/auth"
	"github.com/ayo6706/custody-engine/internal/domain"
	"github.com/ayo6706/custody-engine/internal/gateway"
	"github.com/ayo6706/custody-engine/internal/repository"
	"github.com/ayo6706/custody-engine/internal/service"
	"github.com/stretchr/testify/require"
)

func TestExpiryWorkerSweepsLapsedRecords(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := repository.NewMemoryStore(repository.Lifetime{Extend: time.Hour, Max: time.Hour})
	store.SetNowFunc(func() time.Time { return now })
	ctx := context.Background()

	err := store.RunInTx(ctx, func(tx repository.Tx) error {
		return repository.Put(ctx, tx, repository.Key{Kind: repository.KindEscrow, ID: 1}, map[string]string{"state": "PENDING"})
	})
	require.NoError(t, err)

	w := NewExpiryWorker(store).WithInterval(time.Minute)
	removed, err := w.SweepOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, removed)

	now = now.Add(2 * time.Hour)
	removed, err = w.SweepOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
}

func TestPayoutWorkerProcessOnce(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore(repository.DefaultLifetime)
	gw := &gateway.MockGateway{}
	engine := service.NewEngine(store, auth.AllowAll, nil, gw)

	_, err := engine.Fees.Initialize(ctx, domain.FeeConfig{Admin: "admin", FeeCollector: "treasury", BaseFeeBps: 100})
	require.NoError(t, err)
	rec, err := engine.Custody.CreateEscrow(ctx, service.CreateCustodyRequest{Buyer: "b", Seller: "s", Asset: "USDC", Amount: domain.NewAmount(10_000)})
	require.NoError(t, err)
	_, err = engine.Custody.FundEscrow(ctx, domain.KindEscrow, rec.ID, "b")
	require.NoError(t, err)
	_, err = engine.Custody.Release(ctx, domain.KindEscrow, rec.ID, "b")
	require.NoError(t, err)

	w := NewPayoutWorker(engine.Payouts).WithBatchSize(5).WithPollInterval(time.Second)
	require.NoError(t, w.ProcessOnce(ctx))

	for _, id := range []uint64{1, 2} {
		p, err := engine.Payouts.GetPayout(ctx, id)
		require.NoError(t, err)
		require.Equal(t, domain.PayoutStatusSent, p.Status)
		require.Contains(t, p.GatewayRef, "MOCK-")
	}

	report := NewReconciliationWorker(service.NewReconciliationService(engine)).RunOnce(ctx)
	require.NotNil(t, report)
	require.True(t, report.Balanced())
	require.Equal(t, 2, report.Payouts)
}

func TestWorkersStopIdempotently(t *testing.T) {
	store := repository.NewMemoryStore(repository.DefaultLifetime)
	w := NewExpiryWorker(store).WithInterval(time.Millisecond)
	stop := w.Run(context.Background())
	stop()
	stop()

	p := NewPayoutWorker(nil)
	p.Stop()
	p.Stop()
}
