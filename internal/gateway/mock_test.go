package gateway

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ayo6706/custody-engine/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestMockGatewayReplaysIdempotencyKey(t *testing.T) {
	g := &MockGateway{}
	ctx := context.Background()

	ref, err := g.SendPayout(ctx, "payout-1", "seller", "USDC", domain.NewAmount(10))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ref, "MOCK-"))

	again, err := g.SendPayout(ctx, "payout-1", "seller", "USDC", domain.NewAmount(10))
	require.NoError(t, err)
	require.Equal(t, ref, again)

	other, err := g.SendPayout(ctx, "payout-2", "seller", "USDC", domain.NewAmount(10))
	require.NoError(t, err)
	require.NotEqual(t, ref, other)
}

func TestMockGatewayAlwaysFails(t *testing.T) {
	g := &MockGateway{FailureRate: 1}
	_, err := g.SendPayout(context.Background(), "k", "seller", "USDC", domain.NewAmount(1))
	require.Error(t, err)
}

func TestMockGatewayHonoursCancellation(t *testing.T) {
	g := &MockGateway{MinDelay: time.Second, MaxDelay: 2 * time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.SendPayout(ctx, "k", "seller", "USDC", domain.NewAmount(1))
	require.ErrorIs(t, err, context.Canceled)
}
