// Package decimal provides checked 256-bit integer arithmetic for token
// amounts and percentage math.
//
// All protocol percentages are fixed-point integers scaled by Precision
// (1e10), so 1% == 1e10 and 100% == Percent100 (1e12). Token amounts are
// integers scaled by 1e18. Every operation either returns an exact result
// or an error; nothing saturates or wraps silently.
package decimal

import (
	"errors"

	"github.com/holiman/uint256"
)

const (
	// PrecisionDigits is the number of decimal digits behind one percent point.
	PrecisionDigits = 10

	// WeiDigits is the number of decimal digits behind one whole token.
	WeiDigits = 18

	// SecondsInYear is the protocol year used for annualized cost scaling.
	SecondsInYear = 365 * 24 * 60 * 60

	// SecondsInMonth is the protocol month used by vesting and reward cycles.
	SecondsInMonth = 30 * 24 * 60 * 60

	// SecondsInWeek is used for competition windows and claim locks.
	SecondsInWeek = 7 * 24 * 60 * 60
)

var (
	// ErrOverflow is returned when a multiplication or addition does not
	// fit in 256 bits. The message mirrors the on-chain revert reason so
	// replayed fixtures compare equal.
	ErrOverflow = errors.New("SafeMath: multiplication overflow")

	// ErrUnderflow is returned when a subtraction would go below zero.
	ErrUnderflow = errors.New("SafeMath: subtraction overflow")

	// ErrDivisionByZero is returned on a zero divisor.
	ErrDivisionByZero = errors.New("SafeMath: division by zero")
)

var (
	precision  = exp10(PrecisionDigits)
	percent100 = new(uint256.Int).Mul(uint256.NewInt(100), precision)
	weiScale   = exp10(WeiDigits)
)

func exp10(digits uint64) *uint256.Int {
	out := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := uint64(0); i < digits; i++ {
		out.Mul(out, ten)
	}
	return out
}

// Precision returns a fresh copy of the percentage scale (1e10).
func Precision() *uint256.Int {
	return new(uint256.Int).Set(precision)
}

// Percent100 returns a fresh copy of 100% in fixed-point form (1e12).
func Percent100() *uint256.Int {
	return new(uint256.Int).Set(percent100)
}

// Percent returns n percent in fixed-point form.
func Percent(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), precision)
}

// Wei returns n whole tokens in 1e18-scaled form.
func Wei(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), weiScale)
}

// Add returns a+b or ErrOverflow.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return sum, nil
}

// Sub returns a-b or ErrUnderflow.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	diff, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, ErrUnderflow
	}
	return diff, nil
}

// Mul returns a*b or ErrOverflow.
func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	prod, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return prod, nil
}

// MulDiv returns floor(a*b/den) with the intermediate product checked at
// full 256-bit width. Truncation happens exactly once, at the division.
func MulDiv(a, b, den *uint256.Int) (*uint256.Int, error) {
	if den.IsZero() {
		return nil, ErrDivisionByZero
	}
	prod, err := Mul(a, b)
	if err != nil {
		return nil, err
	}
	return prod.Div(prod, den), nil
}

// Max returns a copy of the larger of a and b.
func Max(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int).Set(b)
	}
	return new(uint256.Int).Set(a)
}

// Min returns a copy of the smaller of a and b.
func Min(a, b *uint256.Int) *uint256.Int {
	if b.Lt(a) {
		return new(uint256.Int).Set(b)
	}
	return new(uint256.Int).Set(a)
}

// FromDecimal parses a base-10 amount string.
func FromDecimal(s string) (*uint256.Int, error) {
	return uint256.FromDecimal(s)
}

// MustFromDecimal parses a base-10 amount string and panics on failure.
// Intended for constants and test fixtures only.
func MustFromDecimal(s string) *uint256.Int {
	return uint256.MustFromDecimal(s)
}
