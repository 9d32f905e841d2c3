package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ayo6706/custody-engine/internal/auth"
	"github.com/ayo6706/custody-engine/internal/domain"
	"github.com/ayo6706/custody-engine/internal/events"
	"github.com/ayo6706/custody-engine/internal/gateway"
	"github.com/ayo6706/custody-engine/internal/observability"
	"github.com/ayo6706/custody-engine/internal/repository"
	"go.uber.org/zap"
)

// Engine bundles the services of one closed custody domain. All services share
// one store, so a record id is never visible to another engine instance.
type Engine struct {
	Custody  *CustodyService
	Auctions *AuctionService
	Fees     *FeeService
	Payouts  *PayoutService

	core *core
}

func NewEngine(store repository.Store, gate auth.Gate, sink events.Sink, gw gateway.Gateway) *Engine {
	if gate == nil {
		gate = auth.ContextGate{}
	}
	if sink == nil {
		sink = events.Nop{}
	}
	c := &core{store: store, gate: gate, sink: sink, now: time.Now, lifetime: repository.DefaultLifetime}
	return &Engine{
		Custody:  &CustodyService{core: c},
		Auctions: &AuctionService{core: c},
		Fees:     &FeeService{core: c},
		Payouts:  newPayoutService(c, gw),
		core:     c,
	}
}

// SetNowFunc overrides the clock for every service of the engine.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	e.core.now = now
}

// SetRecordLifetime tells the engine how long the store keeps an untouched
// record. It must match the lifetime the store was opened with.
func (e *Engine) SetRecordLifetime(l repository.Lifetime) {
	if l.Extend > 0 {
		e.core.lifetime = l
	}
}

type core struct {
	store    repository.Store
	gate     auth.Gate
	sink     events.Sink
	now      func() time.Time
	lifetime repository.Lifetime
}

// txn is one invocation's view of the store. Events and metrics staged on it
// are released only after commit.
type txn struct {
	tx     repository.Tx
	now    int64
	events []events.Event
	after  []func()
}

func (t *txn) emit(e events.Event) {
	e.Timestamp = t.now
	t.events = append(t.events, e)
}

func (t *txn) onCommit(fn func()) {
	t.after = append(t.after, fn)
}

// run executes fn atomically. Any error discards every staged write, event and
// metric.
func (c *core) run(ctx context.Context, fn func(t *txn) error) error {
	var t *txn
	err := c.store.RunInTx(ctx, func(tx repository.Tx) error {
		t = &txn{tx: tx, now: c.now().Unix()}
		return fn(t)
	})
	if err != nil {
		return err
	}
	for _, f := range t.after {
		f()
	}
	c.publish(ctx, t.events)
	return nil
}

func (c *core) publish(ctx context.Context, evs []events.Event) {
	if len(evs) == 0 {
		return
	}
	if err := c.sink.Publish(ctx, evs...); err != nil {
		observability.IncrementEventPublish("failed", len(evs))
		zap.L().Warn("event publish failed", zap.Error(err), zap.Int("count", len(evs)))
		return
	}
	observability.IncrementEventPublish("success", len(evs))
}

func (c *core) authorize(ctx context.Context, id domain.Identity) error {
	if !c.gate.Authorized(ctx, id) {
		return fmt.Errorf("%w: no verified credential for %q", domain.ErrUnauthorized, id)
	}
	return nil
}

func custodyKey(kind domain.RecordKind, id uint64) repository.Key {
	return repository.Key{Kind: repository.KindFor(kind), ID: id}
}

func auctionKey(id uint64) repository.Key {
	return repository.Key{Kind: repository.KindAuction, ID: id}
}

func bidsKey(id uint64) repository.Key {
	return repository.Key{Kind: repository.KindBids, ID: id}
}

var (
	feeConfigKey = repository.Key{Kind: repository.KindFeeConfig}
	feeTotalsKey = repository.Key{Kind: repository.KindFeeTotals}
)

func categoryKey(id uint32) repository.Key {
	return repository.Key{Kind: repository.KindCategoryFee, ID: uint64(id)}
}

// loadFeeConfig reads the configuration record fresh for every invocation.
func loadFeeConfig(ctx context.Context, t *txn) (*domain.FeeConfig, error) {
	var cfg domain.FeeConfig
	if err := repository.Get(ctx, t.tx, feeConfigKey, &cfg); err != nil {
		return nil, fmt.Errorf("load fee configuration: %w", err)
	}
	return &cfg, nil
}

// arbitrator returns the configured arbitrator, or "" before initialization.
func arbitrator(ctx context.Context, t *txn) (domain.Identity, error) {
	var cfg domain.FeeConfig
	if _, err := repository.TryGet(ctx, t.tx, feeConfigKey, &cfg); err != nil {
		return "", err
	}
	return cfg.Arbitrator, nil
}
