package fees

import (
	"testing"

	"github.com/ayo6706/custody-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeFee(t *testing.T) {
	tests := []struct {
		name   string
		amount domain.Amount
		rate   uint32
		want   domain.Amount
	}{
		{"escrow 2.5%", domain.NewAmount(3000), 250, domain.NewAmount(75)},
		{"auction 2.5%", domain.NewAmount(2000), 250, domain.NewAmount(50)},
		{"zero rate", domain.NewAmount(123456), 0, domain.NewAmount(0)},
		{"full rate", domain.NewAmount(987), 10_000, domain.NewAmount(987)},
		{"rounds down", domain.NewAmount(39), 250, domain.NewAmount(0)},
		{"max width", domain.MaxAmount, 10_000, domain.MaxAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeFee(tt.amount, tt.rate)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputeFee_MaxWidthHalfRate(t *testing.T) {
	got, err := ComputeFee(domain.MaxAmount, 5_000)
	require.NoError(t, err)
	assert.Equal(t, "170141183460469231731687303715884105727", got.String())
}

func TestComputeFee_RejectsRateAbove100Percent(t *testing.T) {
	_, err := ComputeFee(domain.NewAmount(100), 10_001)
	assert.ErrorIs(t, err, domain.ErrFeeOverflow)
	assert.ErrorIs(t, ValidateRate(10_001), domain.ErrInvalidFeeRate)
	assert.NoError(t, ValidateRate(10_000))
}

func TestComputeFee_Monotonic(t *testing.T) {
	amounts := []uint64{0, 1, 99, 10_000, 1_000_000_007}
	for _, a := range amounts {
		prev := domain.NewAmount(0)
		for rate := uint32(0); rate <= domain.MaxFeeBps; rate += 125 {
			fee, err := ComputeFee(domain.NewAmount(a), rate)
			require.NoError(t, err)
			assert.False(t, fee.LessThan(prev), "amount %d rate %d", a, rate)
			assert.False(t, domain.NewAmount(a).LessThan(fee))
			prev = fee
		}
	}
	for rate := uint32(0); rate <= domain.MaxFeeBps; rate += 500 {
		prev := domain.NewAmount(0)
		for _, a := range amounts {
			fee, err := ComputeFee(domain.NewAmount(a), rate)
			require.NoError(t, err)
			assert.False(t, fee.LessThan(prev))
			prev = fee
		}
	}
}

func TestSplit(t *testing.T) {
	fee, net, err := Split(domain.NewAmount(3000), 250)
	require.NoError(t, err)
	assert.Equal(t, domain.NewAmount(75), fee)
	assert.Equal(t, domain.NewAmount(2925), net)
}

func TestResolveRate(t *testing.T) {
	assert.Equal(t, uint32(250), ResolveRate(250, nil))
	assert.Equal(t, uint32(100), ResolveRate(250, &domain.CategoryFee{CategoryID: 3, RateBps: 100}))
}
