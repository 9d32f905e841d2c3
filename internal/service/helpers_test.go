package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/custody-engine/internal/auth"
	"github.com/ayo6706/custody-engine/internal/domain"
	"github.com/ayo6706/custody-engine/internal/events"
	"github.com/ayo6706/custody-engine/internal/gateway"
	"github.com/ayo6706/custody-engine/internal/repository"
	"github.com/stretchr/testify/require"
)

const (
	testAdmin      domain.Identity = "admin"
	testArbitrator domain.Identity = "arbitrator"
	testCollector  domain.Identity = "treasury"
	testBuyer      domain.Identity = "buyer"
	testSeller     domain.Identity = "seller"
	testAsset      domain.AssetRef = "USDC"
)

// testClock is a settable clock shared by the engine under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	engine   *Engine
	store    *repository.MemoryStore
	recorder *events.Recorder
	clock    *testClock
}

// setupTestEngine builds an engine over an in-memory store with fees
// initialized at 250 bps.
func setupTestEngine(t *testing.T, gate auth.Gate, gw gateway.Gateway) *testEnv {
	t.Helper()

	if gate == nil {
		gate = auth.AllowAll
	}
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	store := repository.NewMemoryStore(repository.DefaultLifetime)
	store.SetNowFunc(clock.Now)
	recorder := &events.Recorder{}

	engine := NewEngine(store, gate, recorder, gw)
	engine.SetNowFunc(clock.Now)

	_, err := engine.Fees.Initialize(context.Background(), domain.FeeConfig{
		Admin:        testAdmin,
		Arbitrator:   testArbitrator,
		FeeCollector: testCollector,
		BaseFeeBps:   250,
	})
	require.NoError(t, err)
	recorder.Reset()

	return &testEnv{engine: engine, store: store, recorder: recorder, clock: clock}
}

func (env *testEnv) createFundedEscrow(t *testing.T, kind domain.RecordKind, amount uint64) *domain.CustodyRecord {
	t.Helper()
	ctx := context.Background()
	req := CreateCustodyRequest{Buyer: testBuyer, Seller: testSeller, Asset: testAsset, Amount: domain.NewAmount(amount)}

	var rec *domain.CustodyRecord
	var err error
	if kind == domain.KindOrder {
		rec, err = env.engine.Custody.CreateOrder(ctx, req)
	} else {
		rec, err = env.engine.Custody.CreateEscrow(ctx, req)
	}
	require.NoError(t, err)

	rec, err = env.engine.Custody.FundEscrow(ctx, kind, rec.ID, testBuyer)
	require.NoError(t, err)
	return rec
}

func (env *testEnv) payouts(t *testing.T) []domain.Payout {
	t.Helper()
	var out []domain.Payout
	err := env.store.RunInTx(context.Background(), func(tx repository.Tx) error {
		last, err := repository.LastID(context.Background(), tx, repository.KindPayout)
		if err != nil {
			return err
		}
		for id := uint64(1); id <= last; id++ {
			var p domain.Payout
			if err := repository.Get(context.Background(), tx, payoutKey(id), &p); err != nil {
				return err
			}
			out = append(out, p)
		}
		return nil
	})
	require.NoError(t, err)
	return out
}

func amountPtr(v uint64) *domain.Amount {
	a := domain.NewAmount(v)
	return &a
}

// stubGateway answers SendPayout from a function.
type stubGateway struct {
	mu    sync.Mutex
	calls []string
	send  func(key string) (string, error)
}

func (g *stubGateway) SendPayout(_ context.Context, key string, _ domain.Identity, _ domain.AssetRef, _ domain.Amount) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, key)
	g.mu.Unlock()
	return g.send(key)
}
