// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from strings
// and converting between minor units (cents) and whole currency units.
package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Money is an amount in minor units. The program currency has no coins in
// circulation but amounts are still kept at two decimal places.
type Money struct {
	Cents int64
}

// Units builds a Money from whole currency units.
func Units(u int64) Money {
	return Money{Cents: u * 100}
}

// ErrInvalidAmount is returned for malformed or negative amounts.
var ErrInvalidAmount = fmt.Errorf("%w: invalid amount", ErrInvalidInput)

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. Zero is accepted; negative
// values and malformed input return ErrInvalidAmount.
//
// Examples:
//
//	ParseDecimalToCents("12.34") -> 1234, nil
//	ParseDecimalToCents("12,34") -> 1234, nil
//	ParseDecimalToCents("12.345") -> 1234, nil (rounds down)
//	ParseDecimalToCents("12.346") -> 1235, nil (rounds up)
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	// Prevent overflow when multiplying by 100
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}
	// Take first two fractional digits; then half-up rounding on third
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	return iv*100 + fracCents, nil
}

// ParseMoney parses a decimal string into Money.
func ParseMoney(s string) (Money, error) {
	cents, err := ParseDecimalToCents(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Cents: cents}, nil
}

// Validate rejects negative amounts. Zero is a valid contribution.
func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// Plus adds two non-negative amounts and fails with ErrInvalidAmount when
// the sum does not fit in int64 cents. Ledger totals go through Plus.
func (m Money) Plus(o Money) (Money, error) {
	if m.Cents < 0 || o.Cents < 0 {
		return Money{}, ErrInvalidAmount
	}
	if m.Cents > math.MaxInt64-o.Cents {
		return Money{}, fmt.Errorf("%w: %s plus %s overflows", ErrInvalidAmount, m, o)
	}
	return Money{Cents: m.Cents + o.Cents}, nil
}

func (m Money) Times(n int) Money {
	return Money{Cents: m.Cents * int64(n)}
}

func (m Money) IsPositive() bool {
	return m.Cents > 0
}

// Float returns the value in whole units for display and JSON output.
// Use Cents for calculations.
func (m Money) Float() float64 {
	return float64(m.Cents) / 100.0
}

// String formats the amount as units with two decimals, e.g. "1000.50".
func (m Money) String() string {
	neg := m.Cents < 0
	c := m.Cents
	if neg {
		c = -c
	}
	s := strconv.FormatInt(c/100, 10) + "." + fmt.Sprintf("%02d", c%100)
	if neg {
		return "-" + s
	}
	return s
}

// MarshalJSON renders Money as a plain JSON number of whole units.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(m.Float(), 'f', -1, 64)), nil
}

// UnmarshalJSON accepts a JSON number or numeric string in whole units.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, "-") {
		return ErrInvalidAmount
	}
	// JSON numbers may carry an exponent; normalise through strconv first.
	if strings.ContainsAny(s, "eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return ErrInvalidAmount
		}
		s = strconv.FormatFloat(f, 'f', -1, 64)
	}
	cents, err := ParseDecimalToCents(s)
	if err != nil {
		return err
	}
	m.Cents = cents
	return nil
}
