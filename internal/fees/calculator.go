// Package fees computes platform fees in basis points with a 256-bit
// intermediate product.
package fees

import (
	"fmt"

	"github.com/ayo6706/custody-engine/internal/domain"
	"github.com/holiman/uint256"
)

var bpsDenominator = uint256.NewInt(uint64(domain.MaxFeeBps))

// ValidateRate rejects rates above 100%.
func ValidateRate(rateBps uint32) error {
	if rateBps > domain.MaxFeeBps {
		return fmt.Errorf("%w: %d bps", domain.ErrInvalidFeeRate, rateBps)
	}
	return nil
}

// ComputeFee returns amount * rateBps / 10000, rounded toward zero.
func ComputeFee(amount domain.Amount, rateBps uint32) (domain.Amount, error) {
	if rateBps > domain.MaxFeeBps {
		return domain.Amount{}, fmt.Errorf("%w: rate %d bps", domain.ErrFeeOverflow, rateBps)
	}
	if amount.Cmp(domain.MaxAmount) > 0 {
		return domain.Amount{}, fmt.Errorf("%w: amount %s", domain.ErrFeeOverflow, amount)
	}

	var product uint256.Int
	if _, overflow := product.MulOverflow(amount.Uint256(), uint256.NewInt(uint64(rateBps))); overflow {
		return domain.Amount{}, fmt.Errorf("%w: %s * %d", domain.ErrFeeOverflow, amount, rateBps)
	}
	product.Div(&product, bpsDenominator)
	return domain.AmountFromUint256(&product)
}

// Split divides amount into the fee and the remainder owed to the seller.
func Split(amount domain.Amount, rateBps uint32) (fee, net domain.Amount, err error) {
	fee, err = ComputeFee(amount, rateBps)
	if err != nil {
		return domain.Amount{}, domain.Amount{}, err
	}
	net, err = amount.Sub(fee)
	if err != nil {
		return domain.Amount{}, domain.Amount{}, fmt.Errorf("%w: fee exceeds amount", domain.ErrFeeOverflow)
	}
	return fee, net, nil
}

// ResolveRate picks the category override when one is configured.
func ResolveRate(baseBps uint32, category *domain.CategoryFee) uint32 {
	if category != nil {
		return category.RateBps
	}
	return baseBps
}
