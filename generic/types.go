/*
Package generic provides the domain-agnostic primitives of the financing engine.

PURPOSE:
  Dates, money and errors are shared by the installment engine, the storage
  collaborators and the HTTP layer. Keeping them here lets every package
  agree on rounding, date comparison and error classification without
  importing each other.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: a decimal amount with a currency code (e.g., 5833.33 PHP)
  - Currency: ISO-4217 style code; formatting is left to presentation layers

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal, never float64, for every money field
  2. Explicit rounding: values are rounded to cents only where a rule says so
  3. Determinism: nothing in this package reads the wall clock

USAGE:
  total := generic.NewMoneyFromString("150000", generic.PHP)
  down := generic.NewMoneyFromString("10000", generic.PHP)
  principal := total.Sub(down) // 140000 PHP

SEE ALSO:
  - time.go: TimePoint and clamped month arithmetic
  - errors.go: Error taxonomy shared by all layers
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Decimal amount with currency
// =============================================================================

type Money struct {
	Value    decimal.Decimal
	Currency Currency
}

type Currency string

const (
	PHP Currency = "PHP"
	USD Currency = "USD"
)

// CentPlaces is the number of fractional digits kept after rounding.
const CentPlaces = 2

func NewMoney(value decimal.Decimal, currency Currency) Money {
	return Money{Value: value, Currency: currency}
}

func NewMoneyFromInt(value int64, currency Currency) Money {
	return Money{Value: decimal.NewFromInt(value), Currency: currency}
}

// NewMoneyFromString parses s; invalid input yields zero.
func NewMoneyFromString(s string, currency Currency) Money {
	return Money{Value: MustParseDecimal(s), Currency: currency}
}

func ZeroMoney(currency Currency) Money { return Money{Value: decimal.Zero, Currency: currency} }

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (m Money) Zero() Money                 { return Money{Value: decimal.Zero, Currency: m.Currency} }
func (m Money) Add(o Money) Money           { return Money{Value: m.Value.Add(o.Value), Currency: m.Currency} }
func (m Money) Sub(o Money) Money           { return Money{Value: m.Value.Sub(o.Value), Currency: m.Currency} }
func (m Money) Mul(s decimal.Decimal) Money { return Money{Value: m.Value.Mul(s), Currency: m.Currency} }
func (m Money) Div(s decimal.Decimal) Money { return Money{Value: m.Value.Div(s), Currency: m.Currency} }
func (m Money) IsNegative() bool            { return m.Value.IsNegative() }
func (m Money) IsZero() bool                { return m.Value.IsZero() }
func (m Money) IsPositive() bool            { return m.Value.IsPositive() }
func (m Money) GreaterThan(o Money) bool    { return m.Value.GreaterThan(o.Value) }
func (m Money) LessThan(o Money) bool       { return m.Value.LessThan(o.Value) }
func (m Money) Equal(o Money) bool          { return m.Value.Equal(o.Value) }

func (m Money) Min(o Money) Money {
	if m.LessThan(o) {
		return m
	}
	return o
}

func (m Money) Max(o Money) Money {
	if m.GreaterThan(o) {
		return m
	}
	return o
}

// RoundCents rounds half away from zero to two decimal places.
func (m Money) RoundCents() Money {
	return Money{Value: m.Value.Round(CentPlaces), Currency: m.Currency}
}

// String renders the plain amount with two decimals, e.g. "5833.33".
func (m Money) String() string {
	return m.Value.StringFixed(CentPlaces)
}
