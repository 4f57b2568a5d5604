// Package bankfeed defines the bank-feed contract and a CSV implementation.
package bankfeed

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/propledger/internal/domain/ledger"
)

// FeedTransaction is a transaction as delivered by a bank feed.
// Amount is signed: money into the account is positive.
type FeedTransaction struct {
	ID           string
	AccountID    string
	Date         time.Time
	Amount       decimal.Decimal
	Description  string
	MerchantName string
	Category     string
	Pending      bool
	Direction    ledger.Direction // optional; derived from the amount sign when empty
	Reference    string
	CheckNumber  string
}

// Source is the interface every bank feed must implement
type Source interface {
	// Name identifies the feed ("csv", "plaid", ...)
	Name() string

	// FetchTransactions returns feed transactions for a bank account dated on
	// or after since. A zero since returns everything.
	FetchTransactions(ctx context.Context, bankAccountID string, since time.Time) ([]FeedTransaction, error)
}

// ToBankTransaction converts a feed record for storage
func (f FeedTransaction) ToBankTransaction(org ledger.OrganizationContext, bankAccountID string) *ledger.BankTransaction {
	direction := f.Direction
	if direction == "" {
		direction = ledger.DirectionOf(f.Amount)
	}
	return &ledger.BankTransaction{
		OrganizationID: org.OrganizationID,
		BankAccountID:  bankAccountID,
		ExternalID:     f.ID,
		Date:           f.Date,
		Amount:         f.Amount,
		Direction:      direction,
		Description:    f.Description,
		MerchantName:   f.MerchantName,
		Category:       f.Category,
		Reference:      f.Reference,
		CheckNumber:    f.CheckNumber,
		Cleared:        !f.Pending,
		Status:         ledger.StatusUnmatched,
	}
}
