package reconcile

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/money"
)

// ItemKind tags an outstanding item.
type ItemKind string

const (
	ItemCheck      ItemKind = "check"
	ItemDeposit    ItemKind = "deposit"
	ItemACHPending ItemKind = "ach_pending"
)

const (
	// ACHWindowDays is how recent an uncleared ACH must be to count as pending.
	ACHWindowDays = 3
	// ACHClearBusinessDays is how long an ACH takes to clear.
	ACHClearBusinessDays = 3
)

// OutstandingItem is recorded on one side but not yet on the other.
// Check and ACH amounts are the signed bank amounts; deposit amounts are the
// posting amounts.
type OutstandingItem struct {
	Kind              ItemKind        `json:"kind"`
	TransactionID     string          `json:"transaction_id,omitempty"`
	PostingID         string          `json:"posting_id,omitempty"`
	Date              time.Time       `json:"date"`
	Amount            decimal.Decimal `json:"amount"`
	Description       string          `json:"description,omitempty"`
	Reference         string          `json:"reference,omitempty"`
	CheckNumber       string          `json:"check_number,omitempty"`
	ExpectedClearDate *time.Time      `json:"expected_clear_date,omitempty"`
}

// OutstandingChecks returns uncleared debits carrying a check number.
func OutstandingChecks(txs []ledger.BankTransaction) []OutstandingItem {
	var items []OutstandingItem
	for _, tx := range txs {
		if tx.Cleared || tx.Direction != ledger.Debit || tx.CheckNumber == "" {
			continue
		}
		items = append(items, OutstandingItem{
			Kind:          ItemCheck,
			TransactionID: tx.ID,
			Date:          tx.Date,
			Amount:        tx.SignedAmount(),
			Description:   tx.Description,
			Reference:     tx.Reference,
			CheckNumber:   tx.CheckNumber,
		})
	}
	return items
}

// DepositsInTransit returns positive payment postings whose reference does not
// appear among cleared bank credits.
func DepositsInTransit(postings []ledger.LedgerPosting, txs []ledger.BankTransaction) []OutstandingItem {
	cleared := make(map[string]bool)
	for _, tx := range txs {
		if tx.Cleared && tx.Direction == ledger.Credit && tx.Reference != "" {
			cleared[tx.Reference] = true
		}
	}

	var items []OutstandingItem
	for _, p := range postings {
		if p.Source != ledger.SourcePayment || !p.Amount.IsPositive() {
			continue
		}
		if p.Reference != "" && cleared[p.Reference] {
			continue
		}
		items = append(items, OutstandingItem{
			Kind:        ItemDeposit,
			PostingID:   p.ID,
			Date:        p.Date,
			Amount:      p.Amount,
			Description: p.AccountName,
			Reference:   p.Reference,
		})
	}
	return items
}

// PendingACH returns uncleared ACH transactions dated within ACHWindowDays of
// now, each with the date it is expected to clear.
func PendingACH(txs []ledger.BankTransaction, now time.Time) []OutstandingItem {
	var items []OutstandingItem
	for _, tx := range txs {
		if tx.Cleared || !strings.Contains(strings.ToLower(tx.Description), "ach") {
			continue
		}
		if ledger.DaysBetween(tx.Date, now) > ACHWindowDays {
			continue
		}
		clearsOn := AddBusinessDays(tx.Date, ACHClearBusinessDays)
		items = append(items, OutstandingItem{
			Kind:              ItemACHPending,
			TransactionID:     tx.ID,
			Date:              tx.Date,
			Amount:            tx.SignedAmount(),
			Description:       tx.Description,
			Reference:         tx.Reference,
			ExpectedClearDate: &clearsOn,
		})
	}
	return items
}

// AddBusinessDays walks forward n weekdays from t, skipping Saturday and Sunday.
func AddBusinessDays(t time.Time, n int) time.Time {
	d := ledger.Day(t)
	for added := 0; added < n; {
		d = d.AddDate(0, 0, 1)
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			added++
		}
	}
	return d
}

// Total sums the amounts of items of the given kind.
func Total(items []OutstandingItem, kind ItemKind) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		if item.Kind == kind {
			total = total.Add(item.Amount)
		}
	}
	return total
}

// AdjustedBankBalance is cleared + Σ(outstanding checks) − Σ(deposits in transit).
func AdjustedBankBalance(cleared decimal.Decimal, items []OutstandingItem) decimal.Decimal {
	return money.Ledger(cleared.Add(Total(items, ItemCheck)).Sub(Total(items, ItemDeposit)))
}

// Unreconciled returns transactions still unmatched or matched dated on or
// before the statement date.
func Unreconciled(txs []ledger.BankTransaction, statementDate time.Time) []ledger.BankTransaction {
	cutoff := ledger.Day(statementDate)
	var out []ledger.BankTransaction
	for _, tx := range txs {
		if tx.Status != ledger.StatusUnmatched && tx.Status != ledger.StatusMatched {
			continue
		}
		if ledger.Day(tx.Date).After(cutoff) {
			continue
		}
		out = append(out, tx)
	}
	return out
}
