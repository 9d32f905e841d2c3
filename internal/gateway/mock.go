package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ayo6706/custody-engine/internal/domain"
	"github.com/google/uuid"
)

// Gateway moves funds out of custody to an external recipient.
type Gateway interface {
	// SendPayout transfers amount of asset to recipient. idempotencyKey is stable
	// across retries of the same payout. Returns a gateway reference on success.
	SendPayout(ctx context.Context, idempotencyKey string, recipient domain.Identity, asset domain.AssetRef, amount domain.Amount) (string, error)
}

// MockGateway simulates an external payment rail with latency and random failures.
type MockGateway struct {
	// FailureRate is the probability of failure (0.0 to 1.0).
	FailureRate float64
	MinDelay    time.Duration
	MaxDelay    time.Duration

	mu   sync.Mutex
	sent map[string]string
}

// NewMockGateway creates a gateway with a 10% failure rate and 200ms-1s latency.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		FailureRate: 0.1,
		MinDelay:    200 * time.Millisecond,
		MaxDelay:    time.Second,
	}
}

// SendPayout sleeps for the simulated latency, then randomly fails based on
// FailureRate. Repeated keys return the original reference.
func (g *MockGateway) SendPayout(ctx context.Context, idempotencyKey string, recipient domain.Identity, asset domain.AssetRef, amount domain.Amount) (string, error) {
	g.mu.Lock()
	if ref, ok := g.sent[idempotencyKey]; ok {
		g.mu.Unlock()
		return ref, nil
	}
	g.mu.Unlock()

	delay := g.MinDelay
	if g.MaxDelay > g.MinDelay {
		delay += time.Duration(rand.Int63n(int64(g.MaxDelay - g.MinDelay)))
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", fmt.Errorf("gateway call canceled: %w", ctx.Err())
		}
	}

	if rand.Float64() < g.FailureRate {
		return "", fmt.Errorf("gateway temporarily unavailable")
	}

	ref := "MOCK-" + uuid.NewString()
	g.mu.Lock()
	if g.sent == nil {
		g.sent = make(map[string]string)
	}
	g.sent[idempotencyKey] = ref
	g.mu.Unlock()
	return ref, nil
}
