package types

import (
	"fmt"
	"math/big"
)

// MaxUint128 is the largest value a 128-bit unsigned fixed-point amount
// may hold: 2^128 - 1.
var MaxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// NewAmount constructs an amount from an int64, which must be non-negative.
func NewAmount(v int64) *big.Int {
	if v < 0 {
		panic("types: NewAmount requires a non-negative value")
	}
	return big.NewInt(v)
}

// ValidateAmount checks that v is non-nil, non-negative, and does not
// exceed the 128-bit unsigned range.
func ValidateAmount(v *big.Int) error {
	if v == nil {
		return fmt.Errorf("types: amount must not be nil")
	}
	if v.Sign() < 0 {
		return fmt.Errorf("types: amount must not be negative, got %s", v.String())
	}
	if v.Cmp(MaxUint128) > 0 {
		return fmt.Errorf("types: amount %s exceeds the 128-bit unsigned range", v.String())
	}
	return nil
}

// SaturatingSub returns max(0, a-b).
func SaturatingSub(a, b *big.Int) *big.Int {
	r := new(big.Int).Sub(a, b)
	if r.Sign() < 0 {
		return big.NewInt(0)
	}
	return r
}

// Min returns the smaller of a and b.
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Max returns the larger of a and b.
func Max(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// ClampToCeiling returns min(v, ceiling), never exceeding it.
func ClampToCeiling(v, ceiling *big.Int) *big.Int {
	return Min(v, ceiling)
}

// IsZero reports whether v is nil or exactly zero.
func IsZero(v *big.Int) bool {
	return v == nil || v.Sign() == 0
}
