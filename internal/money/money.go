// Package money provides fixed-point monetary values and currency
// conversion.
//
// Amounts are held as arbitrary-precision decimals and rounded to the
// currency's minor-unit scale using half-up rounding, applied once at the
// end of a computation chain rather than per intermediate step.
package money

import (
	"errors"
	"fmt"
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

var (
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrInvalidAmount    = errors.New("invalid amount")
)

// Money is a decimal amount tagged with an ISO 4217 currency code.
// The zero value is 0 units of an empty currency and is not usable;
// construct values with New, Parse or Zero.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// New creates a Money from a decimal amount and currency code.
func New(amount decimal.Decimal, currency string) Money {
	return Money{amount: amount, currency: strings.ToUpper(currency)}
}

// Zero returns 0.00 in the given currency.
func Zero(currency string) Money {
	return New(decimal.Zero, currency)
}

// Parse converts a decimal string such as "12.34" into a Money.
// It accepts both dot and comma decimal separators.
func Parse(s, currency string) (Money, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return New(d, currency), nil
}

// MinorUnitScale returns the number of minor-unit digits for a currency
// code, e.g. 2 for EUR or USD, 0 for JPY. Unknown codes default to 2.
func MinorUnitScale(currency string) int32 {
	if c := gomoney.GetCurrency(strings.ToUpper(currency)); c != nil {
		return int32(c.Fraction)
	}
	return 2
}

// Amount returns the raw decimal amount, which may carry more precision
// than the currency's minor unit until Round is applied.
func (m Money) Amount() decimal.Decimal { return m.amount }

// Currency returns the ISO currency code.
func (m Money) Currency() string { return m.currency }

// Round returns the amount rounded half-up to the currency's minor-unit
// scale.
func (m Money) Round() Money {
	return Money{amount: m.amount.Round(MinorUnitScale(m.currency)), currency: m.currency}
}

// Add returns m + other. The currencies must match.
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// Sub returns m - other. The currencies must match.
func (m Money) Sub(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return Money{amount: m.amount.Sub(other.amount), currency: m.currency}, nil
}

// Neg returns the amount with its sign flipped.
func (m Money) Neg() Money {
	return Money{amount: m.amount.Neg(), currency: m.currency}
}

// Div divides the amount by an integer count without rounding. Callers
// round the result once the computation chain is complete.
func (m Money) Div(n int64) Money {
	return Money{amount: m.amount.Div(decimal.NewFromInt(n)), currency: m.currency}
}

// IsPositive reports whether the amount is strictly greater than zero.
func (m Money) IsPositive() bool { return m.amount.IsPositive() }

// IsNegative reports whether the amount is strictly less than zero.
func (m Money) IsNegative() bool { return m.amount.IsNegative() }

// Equal reports whether two values have the same currency and compare
// numerically equal.
func (m Money) Equal(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// Cmp compares amounts, ignoring currency: -1 if m < other, 0 if equal,
// +1 if m > other.
func (m Money) Cmp(other Money) int { return m.amount.Cmp(other.amount) }

// String formats the amount at the currency's minor-unit scale,
// e.g. "250.00 EUR".
func (m Money) String() string {
	return m.amount.StringFixed(MinorUnitScale(m.currency)) + " " + m.currency
}
