// Package core provides money parsing and handling utilities.
//
// Amounts are kept as integer cents so that running totals stay exact to two
// decimal places. Parsing goes through shopspring/decimal.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Money struct {
	Cents int64
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return &ValidationError{Field: "amount", Reason: "must be a positive number", Err: ErrInvalidAmount}
	}
	return nil
}

// ParseAmount converts user input to Money with half-up rounding to cents.
//
// It accepts dot (12.34) and comma (12,34) separators and tolerates a euro
// sign and blanks, as sent by capture shortcuts:
//
//	ParseAmount("12.34")  -> 1234
//	ParseAmount("7,00€")  -> 700
//	ParseAmount("12.345") -> 1235
func ParseAmount(s string) (Money, error) {
	s = strings.ReplaceAll(s, "€", "")
	s = strings.Join(strings.Fields(s), "")
	s = strings.Replace(s, ",", ".", 1)
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Money{}, &ValidationError{Field: "amount", Reason: "must be a positive number", Err: ErrInvalidAmount}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, &ValidationError{Field: "amount", Reason: "not a number", Err: ErrInvalidAmount}
	}
	m := MoneyFromDecimal(d)
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

// MoneyFromFloat converts a JSON number in euros to cents.
func MoneyFromFloat(euros float64) Money {
	return MoneyFromDecimal(decimal.NewFromFloat(euros))
}

func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money{Cents: d.Round(2).Shift(2).IntPart()}
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }
func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

// Decimal returns the amount in euros.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Euros returns the euro value as a float64 for display and ratios.
// Sums should be done on cents.
func (m Money) Euros() float64 {
	return m.Decimal().InexactFloat64()
}

func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}
