package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrNegativeAmount = errors.New("money cannot be negative")

// Money is a currency amount in minor units (cents, paise). All discount
// arithmetic is integer-based to avoid cross-run floating-point drift.
type Money int64

func New(minorUnits int64) (Money, error) {
	if minorUnits < 0 {
		return 0, ErrNegativeAmount
	}
	return Money(minorUnits), nil
}

func MustNew(minorUnits int64) Money {
	m, err := New(minorUnits)
	if err != nil {
		panic(err)
	}
	return m
}

func Zero() Money {
	return 0
}

func (m Money) MinorUnits() int64 {
	return int64(m)
}

func (m Money) IsZero() bool {
	return m == 0
}

func (m Money) LessThan(other Money) bool {
	return m < other
}

// Percent returns percent/100 of m, rounded half-to-even to the nearest
// minor unit.
func (m Money) Percent(percent decimal.Decimal) Money {
	raw := decimal.NewFromInt(int64(m)).
		Mul(percent).
		Div(decimal.NewFromInt(100)).
		RoundBank(0)
	return Money(raw.IntPart())
}

// Min returns the smaller of m and other.
func (m Money) Min(other Money) Money {
	if other < m {
		return other
	}
	return m
}

func (m Money) String() string {
	return fmt.Sprintf("%d", int64(m))
}
