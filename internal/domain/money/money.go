// Package money provides fixed-point currency arithmetic in integer minor
// units (paise). Discount and commission chains stay in integer space;
// conversion to and from decimal happens only at system boundaries (HTTP
// responses, NUMERIC database columns, seed files).
package money

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Money is an amount in minor units of the currency. Negative values are
// representable: wallet reversals may drive a balance below zero.
type Money int64

// Zero is the additive identity.
const Zero Money = 0

// FromMinor wraps a raw minor-unit amount.
func FromMinor(v int64) Money {
	return Money(v)
}

// FromDecimal converts a major-unit decimal (e.g. "12.50") to minor units,
// rounding half away from zero beyond two fractional digits.
func FromDecimal(d decimal.Decimal) Money {
	return Money(d.Mul(hundred).Round(0).IntPart())
}

// Decimal returns the amount in major units with two fractional digits.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

// Minor returns the raw minor-unit amount.
func (m Money) Minor() int64 {
	return int64(m)
}

func (m Money) Add(o Money) Money { return m + o }

func (m Money) Sub(o Money) Money { return m - o }

func (m Money) IsZero() bool { return m == 0 }

func (m Money) IsNegative() bool { return m < 0 }

// Percent returns rate% of m, rounded half away from zero to the nearest
// minor unit. The intermediate product is computed in decimal space so that
// fractional rates (e.g. 7.5%) do not lose precision.
func (m Money) Percent(rate decimal.Decimal) Money {
	amount := decimal.NewFromInt(int64(m)).Mul(rate).Div(hundred)
	return Money(amount.Round(0).IntPart())
}

// ClampZero floors negative amounts at zero.
func (m Money) ClampZero() Money {
	if m < 0 {
		return 0
	}
	return m
}

// Min returns the smaller of m and o.
func Min(m, o Money) Money {
	if o < m {
		return o
	}
	return m
}

// String formats the amount in major units, e.g. "1250.00" for 125000 minor
// units.
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}
