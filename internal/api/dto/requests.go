package dto

import (
	"github.com/shopspring/decimal"

	"github.com/eshaffer321/propledger/internal/domain/reconcile"
)

// StartReconciliationRequest opens a reconciliation session.
// StatementDate is a YYYY-MM-DD day.
type StartReconciliationRequest struct {
	BankAccountID    string          `json:"bank_account_id"`
	StatementDate    string          `json:"statement_date"`
	StatementBalance decimal.Decimal `json:"statement_balance"`
}

// CompleteReconciliationRequest closes a session with adjustments.
type CompleteReconciliationRequest struct {
	Adjustments []reconcile.Adjustment `json:"adjustments"`
}

// VoidCheckRequest voids one check on a bank account.
type VoidCheckRequest struct {
	CheckNumber string `json:"check_number"`
}

// NSFRequest returns a payment for insufficient funds.
type NSFRequest struct {
	Reference string `json:"reference"`
}

// ThreeWayRequest carries tenant-portal balances keyed by tenant.
type ThreeWayRequest struct {
	PortalBalances map[string]decimal.Decimal `json:"portal_balances"`
}

// TransactionListParams represents query parameters for listing bank transactions.
type TransactionListParams struct {
	BankAccountID string   `json:"bank_account_id"`
	Statuses      []string `json:"statuses"`
	Limit         int      `json:"limit"`
	Offset        int      `json:"offset"`
}

// EventListParams represents query parameters for listing events.
type EventListParams struct {
	Name  string `json:"name"`
	Limit int    `json:"limit"`
}

// DefaultTransactionListParams returns default values for transaction list params.
func DefaultTransactionListParams() TransactionListParams {
	return TransactionListParams{
		Limit:  50,
		Offset: 0,
	}
}

// DefaultEventListParams returns default values for event list params.
func DefaultEventListParams() EventListParams {
	return EventListParams{
		Limit: 20,
	}
}
