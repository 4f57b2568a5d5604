// Package reconcile holds the reconciliation session state machine, the
// outstanding-item derivations and an in-memory 3-way reconciliation snapshot
// (bank vs ledger vs tenant portal).
//
// Everything here is pure: persistence and ledger writes live in the
// reconciliation service.
package reconcile

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/money"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusVariance   Status = "variance"
)

// Terminal reports whether no further mutation is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusVariance
}

// Session binds one bank account to one statement date and balance.
type Session struct {
	ID                       string                   `json:"id"`
	OrganizationID           string                   `json:"organization_id"`
	BankAccountID            string                   `json:"bank_account_id"`
	StatementDate            time.Time                `json:"statement_date"`
	StatementBalance         decimal.Decimal          `json:"statement_balance"`
	BookBalance              decimal.Decimal          `json:"book_balance"`
	ClearedBalance           decimal.Decimal          `json:"cleared_balance"`
	AdjustedBankBalance      decimal.Decimal          `json:"adjusted_bank_balance"`
	Variance                 decimal.Decimal          `json:"variance"`
	UnreconciledTransactions []ledger.BankTransaction `json:"unreconciled_transactions"`
	OutstandingItems         []OutstandingItem        `json:"outstanding_items"`
	Status                   Status                   `json:"status"`
	StartedAt                time.Time                `json:"started_at"`
	CompletedAt              *time.Time               `json:"completed_at,omitempty"`
}

// Close moves an in-progress session to completed or variance. The session
// is completed when the variance is within tolerance. Closing a terminal
// session returns a SESSION_CLOSED error and leaves it untouched.
func (s *Session) Close(adjustedBankBalance, bookBalance decimal.Decimal, at time.Time) error {
	if s.Status.Terminal() {
		return SessionClosed(s.ID, s.Status)
	}

	s.AdjustedBankBalance = money.Ledger(adjustedBankBalance)
	s.BookBalance = money.Ledger(bookBalance)
	s.Variance = money.Ledger(money.Diff(adjustedBankBalance, bookBalance))

	if s.Variance.LessThanOrEqual(money.Tolerance) {
		s.Status = StatusCompleted
	} else {
		s.Status = StatusVariance
	}
	s.CompletedAt = &at
	return nil
}

// AdjustmentType classifies a completion adjustment.
type AdjustmentType string

const (
	AdjustmentBankFee  AdjustmentType = "bank_fee"
	AdjustmentInterest AdjustmentType = "interest"
	AdjustmentClear    AdjustmentType = "clear"
)

// CreatesEntry reports whether the adjustment books a journal entry.
func (t AdjustmentType) CreatesEntry() bool {
	return t == AdjustmentBankFee || t == AdjustmentInterest
}

// Adjustment is supplied when completing a session. Fee and interest
// adjustments book a balancing entry; any adjustment carrying a
// TransactionID marks that bank transaction reconciled.
type Adjustment struct {
	Type          AdjustmentType  `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
}

// CompletionResult is returned by session completion. An unbalanced result
// is a normal outcome with Success false.
type CompletionResult struct {
	Success  bool            `json:"success"`
	Variance decimal.Decimal `json:"variance"`
	Session  *Session        `json:"session"`
}
