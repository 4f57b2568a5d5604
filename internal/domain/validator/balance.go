// Package validator provides balance validation for journal entries and
// financial statements.
//
// Journal entries must sum to exactly zero at ledger scale (4 places). The
// accounting equation is checked with the reconciliation tolerance, since
// statement totals are compared at display scale.
package validator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/money"
)

// EntryValidation contains the result of validating a journal entry.
type EntryValidation struct {
	// Valid is true if the postings sum to zero
	Valid bool

	// Total is the sum of all posting amounts at ledger scale
	Total decimal.Decimal

	// Reason explains why validation failed (empty if valid)
	Reason string
}

// ValidateEntry checks that a journal entry draft is balanced.
//
// A draft is valid if:
//   - it has at least two postings
//   - every posting names an account
//   - the postings sum to 0.0000
func ValidateEntry(draft ledger.JournalEntryDraft) *EntryValidation {
	total := money.Ledger(draft.Total())

	if len(draft.Postings) < 2 {
		return &EntryValidation{
			Valid:  false,
			Total:  total,
			Reason: fmt.Sprintf("journal entry needs at least 2 postings, got %d", len(draft.Postings)),
		}
	}

	for i, p := range draft.Postings {
		if p.AccountID == "" {
			return &EntryValidation{
				Valid:  false,
				Total:  total,
				Reason: fmt.Sprintf("posting %d has no account", i),
			}
		}
	}

	if !total.IsZero() {
		return &EntryValidation{
			Valid: false,
			Total: total,
			Reason: fmt.Sprintf("postings sum to %s, expected 0.0000 - debits and credits do not balance",
				money.FormatLedger(total)),
		}
	}

	return &EntryValidation{Valid: true, Total: total}
}

// EquationValidation contains the result of checking Assets = Liabilities + Equity.
type EquationValidation struct {
	Valid       bool
	Assets      decimal.Decimal
	Liabilities decimal.Decimal
	Equity      decimal.Decimal
	Difference  decimal.Decimal
	Reason      string
}

// ValidateEquation checks the accounting equation within money.Tolerance.
// Difference is Assets - (Liabilities + Equity).
func ValidateEquation(assets, liabilities, equity decimal.Decimal) *EquationValidation {
	rhs := liabilities.Add(equity)
	diff := money.Display(assets.Sub(rhs))

	result := &EquationValidation{
		Valid:       money.WithinTolerance(assets, rhs),
		Assets:      assets,
		Liabilities: liabilities,
		Equity:      equity,
		Difference:  diff,
	}

	if !result.Valid {
		result.Reason = fmt.Sprintf("assets ($%s) do not equal liabilities + equity ($%s), difference $%s",
			money.FormatDisplay(assets), money.FormatDisplay(rhs), money.FormatDisplay(diff))
	}

	return result
}

// ValidateTotals checks that a set of amounts sums to an expected total within
// money.Tolerance. Used for batch deposits, where several ledger payments are
// settled by a single bank credit.
func ValidateTotals(amounts []decimal.Decimal, expected decimal.Decimal) *EntryValidation {
	sum := money.Sum(amounts...)
	if money.WithinTolerance(sum, expected) {
		return &EntryValidation{Valid: true, Total: sum}
	}

	diff := money.Display(sum.Sub(expected))
	var reason string
	if diff.IsNegative() {
		reason = fmt.Sprintf("amounts ($%s) are less than expected ($%s) - missing $%s",
			money.FormatDisplay(sum), money.FormatDisplay(expected), money.FormatDisplay(diff.Neg()))
	} else {
		reason = fmt.Sprintf("amounts ($%s) exceed expected ($%s) by $%s",
			money.FormatDisplay(sum), money.FormatDisplay(expected), money.FormatDisplay(diff))
	}

	return &EntryValidation{Valid: false, Total: sum, Reason: reason}
}
