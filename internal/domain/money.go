package domain

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Amount is a non-negative monetary value in the asset's smallest indivisible unit.
// Values are bounded by MaxAmount (2^128 - 1); the 256-bit backing leaves headroom
// for fee products without overflow.
type Amount struct {
	v uint256.Int
}

// MaxAmount is the largest amount accepted at the boundary.
var MaxAmount = Amount{v: uint256.Int{^uint64(0), ^uint64(0), 0, 0}}

// NewAmount creates an Amount from a uint64.
func NewAmount(v uint64) Amount {
	var a Amount
	a.v.SetUint64(v)
	return a
}

// AmountFromUint256 copies x into an Amount. It fails when x exceeds MaxAmount.
func AmountFromUint256(x *uint256.Int) (Amount, error) {
	var a Amount
	if x == nil {
		return a, nil
	}
	a.v.Set(x)
	if a.v.Gt(&MaxAmount.v) {
		return Amount{}, fmt.Errorf("%w: amount exceeds 128 bits", ErrFeeOverflow)
	}
	return a, nil
}

// ParseAmount parses a base-10 integer string.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("%w: empty amount", ErrInvalidInput)
	}
	if strings.HasPrefix(s, "-") {
		return Amount{}, fmt.Errorf("%w: negative amount %s", ErrInvalidInput, s)
	}
	x, err := uint256.FromDecimal(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: invalid amount %q", ErrInvalidInput, s)
	}
	if x.Gt(&MaxAmount.v) {
		return Amount{}, fmt.Errorf("%w: amount %s exceeds maximum", ErrInvalidInput, s)
	}
	return Amount{v: *x}, nil
}

// MustParseAmount is ParseAmount for constants and tests.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Uint256 returns a copy of the underlying value.
func (a Amount) Uint256() *uint256.Int {
	return new(uint256.Int).Set(&a.v)
}

func (a Amount) IsZero() bool {
	return a.v.IsZero()
}

// Cmp returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int {
	return a.v.Cmp(&b.v)
}

func (a Amount) LessThan(b Amount) bool {
	return a.v.Lt(&b.v)
}

// Add returns a+b, failing when the sum exceeds MaxAmount.
func (a Amount) Add(b Amount) (Amount, error) {
	var sum uint256.Int
	sum.Add(&a.v, &b.v)
	if sum.Gt(&MaxAmount.v) {
		return Amount{}, fmt.Errorf("%w: %s + %s", ErrFeeOverflow, a, b)
	}
	return Amount{v: sum}, nil
}

// Sub returns a-b, failing on underflow.
func (a Amount) Sub(b Amount) (Amount, error) {
	var diff uint256.Int
	if _, underflow := diff.SubOverflow(&a.v, &b.v); underflow {
		return Amount{}, fmt.Errorf("%w: %s - %s underflows", ErrInvalidInput, a, b)
	}
	return Amount{v: diff}, nil
}

// ToDecimal converts the amount to a shopspring/decimal.Decimal in smallest units.
func (a Amount) ToDecimal() decimal.Decimal {
	return decimal.NewFromBigInt(a.v.ToBig(), 0)
}

// String returns the base-10 representation.
func (a Amount) String() string {
	return a.v.Dec()
}

// MarshalJSON encodes the amount as a decimal string so 128-bit values survive
// JSON consumers that parse numbers as float64.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.v.Dec() + `"`), nil
}

// UnmarshalJSON accepts a quoted or bare base-10 integer.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
