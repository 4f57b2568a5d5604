// Package money implements the fixed-point decimal arithmetic used for every
// monetary value in the engine.
//
// Amounts are never represented as float64. Internally values carry full
// decimal precision; division is performed at 20 digits of precision with
// half-up (away from zero) rounding. Amounts are stored in the ledger at 4
// decimal places and compared against bank statements at 2.
//
// Balance checks always use a tolerance, never exact equality:
//
//	if money.WithinTolerance(bank, book) {
//		// reconciled
//	}
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// Precision is the number of digits kept by Div.
	Precision int32 = 20

	// LedgerPlaces is the scale used for ledger-internal storage.
	LedgerPlaces int32 = 4

	// DisplayPlaces is the scale used for display and statement comparison.
	DisplayPlaces int32 = 2
)

// Tolerance is the maximum difference (inclusive) at which two balances are
// considered reconciled.
var Tolerance = decimal.New(1, -2)

// ErrDivisionByZero is returned by Div when the divisor is zero.
var ErrDivisionByZero = errors.New("money: division by zero")

// Parse converts a user or feed supplied amount into a decimal.
// Currency symbols, thousands separators and surrounding whitespace are ignored.
// A value wrapped in parentheses is treated as negative (statement notation).
func Parse(s string) (decimal.Decimal, error) {
	clean := strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(clean, "(") && strings.HasSuffix(clean, ")") {
		negative = true
		clean = strings.TrimSuffix(strings.TrimPrefix(clean, "("), ")")
	}
	clean = strings.NewReplacer("$", "", ",", "", " ", "").Replace(clean)
	if clean == "" {
		return decimal.Zero, fmt.Errorf("money: empty amount %q", s)
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("money: invalid amount %q: %w", s, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Ledger rounds to the ledger storage scale (4 places, half-up).
func Ledger(d decimal.Decimal) decimal.Decimal {
	return d.Round(LedgerPlaces)
}

// Display rounds to the display scale (2 places, half-up).
func Display(d decimal.Decimal) decimal.Decimal {
	return d.Round(DisplayPlaces)
}

// FormatLedger renders d with exactly 4 decimal places, e.g. "-35.0000".
func FormatLedger(d decimal.Decimal) string {
	return d.StringFixed(LedgerPlaces)
}

// FormatDisplay renders d with exactly 2 decimal places, e.g. "1500.00".
func FormatDisplay(d decimal.Decimal) string {
	return d.StringFixed(DisplayPlaces)
}

// Diff returns |a - b|.
func Diff(a, b decimal.Decimal) decimal.Decimal {
	return a.Sub(b).Abs()
}

// WithinTolerance reports whether |a - b| <= Tolerance.
func WithinTolerance(a, b decimal.Decimal) bool {
	return WithinToleranceOf(a, b, Tolerance)
}

// WithinToleranceOf reports whether |a - b| <= tolerance.
func WithinToleranceOf(a, b, tolerance decimal.Decimal) bool {
	return Diff(a, b).LessThanOrEqual(tolerance)
}

// Sum adds all values. The sum of no values is zero.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Div divides a by b at Precision digits, rounding half-up.
func Div(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}
	return a.DivRound(b, Precision), nil
}

// FromCents builds an amount from an integer number of cents.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
