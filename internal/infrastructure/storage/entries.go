package storage

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/money"
	"github.com/eshaffer321/propledger/internal/domain/reconcile"
	"github.com/eshaffer321/propledger/internal/domain/validator"
)

// newJournalEntry validates a draft and assigns IDs. Posting amounts are
// rounded to ledger scale before the zero-sum check.
func newJournalEntry(
	org ledger.OrganizationContext,
	draft ledger.JournalEntryDraft,
	accounts map[string]*ledger.Account,
	now time.Time,
) (*ledger.JournalEntry, error) {
	rounded := draft
	rounded.Postings = make([]ledger.PostingDraft, len(draft.Postings))
	for i, p := range draft.Postings {
		p.Amount = money.Ledger(p.Amount)
		rounded.Postings[i] = p
	}

	if result := validator.ValidateEntry(rounded); !result.Valid {
		return nil, reconcile.NewError(reconcile.CodeUnbalancedEntry, result.Reason, map[string]any{
			"total":    money.FormatLedger(result.Total),
			"postings": len(draft.Postings),
		})
	}

	entryDate := draft.EntryDate
	if entryDate.IsZero() {
		entryDate = now
	}

	entry := &ledger.JournalEntry{
		ID:             uuid.NewString(),
		OrganizationID: org.OrganizationID,
		EntryDate:      utc(entryDate),
		EntryType:      draft.EntryType,
		Description:    draft.Description,
		Metadata:       draft.Metadata,
		CreatedAt:      utc(now),
	}

	for _, p := range rounded.Postings {
		account, ok := accounts[p.AccountID]
		if !ok {
			return nil, reconcile.AccountNotFound(p.AccountID)
		}

		bucket := p.FundBucket
		if bucket == ledger.BucketNone {
			bucket = account.FundBucket
		}
		name := p.AccountName
		if name == "" {
			name = account.Name
		}

		entry.Postings = append(entry.Postings, ledger.LedgerPosting{
			ID:          uuid.NewString(),
			EntryID:     entry.ID,
			Date:        entry.EntryDate,
			Amount:      p.Amount,
			AccountID:   p.AccountID,
			AccountName: name,
			Reference:   p.Reference,
			Source:      p.Source,
			FundBucket:  bucket,
			PropertyID:  p.PropertyID,
			OwnerID:     p.OwnerID,
		})
	}

	return entry, nil
}

// sides splits a debit-positive amount into debit and credit columns.
func sides(amount decimal.Decimal) (debit, credit decimal.Decimal) {
	if amount.IsNegative() {
		return decimal.Zero, amount.Neg()
	}
	return amount, decimal.Zero
}

// activityKey identifies one row of the daily activity aggregate.
type activityKey struct {
	accountID  string
	propertyID string
	ownerID    string
	day        string
}

// activityTotals accumulates debit and credit totals per account, keeping
// first-seen order.
type activityTotals struct {
	order  []string
	debit  map[string]decimal.Decimal
	credit map[string]decimal.Decimal
}

func newActivityTotals() *activityTotals {
	return &activityTotals{
		debit:  make(map[string]decimal.Decimal),
		credit: make(map[string]decimal.Decimal),
	}
}

func (a *activityTotals) add(accountID string, debit, credit decimal.Decimal) {
	if _, seen := a.debit[accountID]; !seen {
		a.order = append(a.order, accountID)
		a.debit[accountID] = decimal.Zero
		a.credit[accountID] = decimal.Zero
	}
	a.debit[accountID] = a.debit[accountID].Add(debit)
	a.credit[accountID] = a.credit[accountID].Add(credit)
}

func (a *activityTotals) activity(accounts map[string]*ledger.Account) []ledger.AccountActivity {
	out := make([]ledger.AccountActivity, 0, len(a.order))
	for _, id := range a.order {
		act := ledger.AccountActivity{
			AccountID: id,
			Debit:     money.Ledger(a.debit[id]),
			Credit:    money.Ledger(a.credit[id]),
			NetChange: money.Ledger(a.debit[id].Sub(a.credit[id])),
		}
		if account, ok := accounts[id]; ok {
			act.AccountName = account.Name
			act.AccountType = account.Type
			act.Subtype = account.Subtype
		}
		out = append(out, act)
	}
	return out
}

func (a *activityTotals) trialBalance(accounts map[string]*ledger.Account) []ledger.TrialBalanceRow {
	rows := make([]ledger.TrialBalanceRow, 0, len(a.order))
	for _, act := range a.activity(accounts) {
		rows = append(rows, ledger.TrialBalanceRow{
			AccountID:   act.AccountID,
			AccountName: act.AccountName,
			AccountType: act.AccountType,
			Subtype:     act.Subtype,
			Debit:       act.Debit,
			Credit:      act.Credit,
		})
	}
	return rows
}

func inRange(day, start, end string) bool {
	if start != "" && day < start {
		return false
	}
	if end != "" && day > end {
		return false
	}
	return true
}

func rangeKeys(start, end time.Time) (string, string) {
	var s, e string
	if !start.IsZero() {
		s = dayKey(start)
	}
	if !end.IsZero() {
		e = dayKey(end)
	}
	return s, e
}

func accountNotFound(accountID string) error {
	return fmt.Errorf("account %s: %w", accountID, ErrNotFound)
}
