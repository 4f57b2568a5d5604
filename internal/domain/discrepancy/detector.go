// Package discrepancy flags anomalies between bank and ledger records:
// duplicate bank transactions, large balance variances and cut-off timing
// issues. Findings are data for human review, never errors.
package discrepancy

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/money"
)

// Kind classifies a discrepancy.
type Kind string

const (
	KindVariance       Kind = "variance"
	KindDuplicate      Kind = "duplicate"
	KindMissing        Kind = "missing"
	KindTiming         Kind = "timing"
	KindAmountMismatch Kind = "amount_mismatch"
	KindCommingled     Kind = "commingled"
)

// Severity ranks how urgently a discrepancy needs attention.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// LargeVarianceThreshold is the variance above which a critical flag is raised.
var LargeVarianceThreshold = decimal.New(5000, 0)

// CutoffWindowDays is how far either side of a cut-off date is inspected.
const CutoffWindowDays = 1

// Discrepancy is a single finding.
type Discrepancy struct {
	Kind          Kind            `json:"kind"`
	Severity      Severity        `json:"severity"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transaction_id,omitempty"`
	PostingID     string          `json:"posting_id,omitempty"`
}

// Detector runs the detection passes.
type Detector struct {
	largeVariance decimal.Decimal
}

// NewDetector creates a detector with the given large-variance threshold.
// A zero threshold selects LargeVarianceThreshold.
func NewDetector(largeVariance decimal.Decimal) *Detector {
	if largeVariance.IsZero() {
		largeVariance = LargeVarianceThreshold
	}
	return &Detector{largeVariance: largeVariance}
}

type duplicateKey struct {
	day       string
	amount    string
	direction ledger.Direction
}

// DetectDuplicates flags every transaction that shares (date, amount,
// direction) with an earlier transaction of a different id.
// A one-cent or one-day difference is never a duplicate.
func (d *Detector) DetectDuplicates(txs []ledger.BankTransaction) []Discrepancy {
	seen := make(map[duplicateKey]ledger.BankTransaction)
	var found []Discrepancy

	for _, tx := range txs {
		key := duplicateKey{
			day:       ledger.Day(tx.Date).Format("2006-01-02"),
			amount:    tx.Amount.Abs().String(),
			direction: tx.Direction,
		}

		first, exists := seen[key]
		if !exists {
			seen[key] = tx
			continue
		}
		if first.ID == tx.ID {
			continue
		}

		found = append(found, Discrepancy{
			Kind:     KindDuplicate,
			Severity: SeverityCritical,
			Description: fmt.Sprintf("possible duplicate of %s: %s %s on %s",
				first.ID, tx.Direction, money.FormatDisplay(tx.Amount.Abs()), key.day),
			Amount:        tx.Amount.Abs(),
			TransactionID: tx.ID,
		})
	}

	return found
}

// DetectLargeVariance flags |bank - ledger| strictly greater than the threshold.
func (d *Detector) DetectLargeVariance(bankBalance, ledgerBalance decimal.Decimal) *Discrepancy {
	variance := money.Diff(bankBalance, ledgerBalance)
	if !variance.GreaterThan(d.largeVariance) {
		return nil
	}

	return &Discrepancy{
		Kind:     KindVariance,
		Severity: SeverityCritical,
		Description: fmt.Sprintf("bank balance $%s differs from ledger balance $%s by $%s (threshold $%s)",
			money.FormatDisplay(bankBalance), money.FormatDisplay(ledgerBalance),
			money.FormatDisplay(variance), money.FormatDisplay(d.largeVariance)),
		Amount: variance,
	}
}

// DetectCutoffIssues inspects bank transactions and postings within a day of
// cutoff. A bank transaction and posting that share a reference but were
// recorded on different dates are flagged as a timing issue.
func (d *Detector) DetectCutoffIssues(
	cutoff time.Time,
	txs []ledger.BankTransaction,
	postings []ledger.LedgerPosting,
) []Discrepancy {
	byReference := make(map[string][]ledger.LedgerPosting)
	for _, p := range postings {
		if p.Reference == "" || ledger.DaysBetween(p.Date, cutoff) > CutoffWindowDays {
			continue
		}
		byReference[p.Reference] = append(byReference[p.Reference], p)
	}

	var found []Discrepancy
	for _, tx := range txs {
		if tx.Reference == "" || ledger.DaysBetween(tx.Date, cutoff) > CutoffWindowDays {
			continue
		}
		for _, p := range byReference[tx.Reference] {
			if ledger.Day(p.Date).Equal(ledger.Day(tx.Date)) {
				continue
			}
			found = append(found, Discrepancy{
				Kind:     KindTiming,
				Severity: SeverityWarning,
				Description: fmt.Sprintf("reference %s recorded %s by bank and %s in ledger around cut-off %s",
					tx.Reference, tx.Date.Format("2006-01-02"), p.Date.Format("2006-01-02"), cutoff.Format("2006-01-02")),
				Amount:        tx.Amount.Abs(),
				TransactionID: tx.ID,
				PostingID:     p.ID,
			})
		}
	}

	return found
}

// Summary counts discrepancies by severity.
type Summary struct {
	Critical int `json:"critical"`
	Warning  int `json:"warning"`
	Info     int `json:"info"`
}

// Summarize counts findings by severity.
func Summarize(found []Discrepancy) Summary {
	var s Summary
	for _, f := range found {
		switch f.Severity {
		case SeverityCritical:
			s.Critical++
		case SeverityWarning:
			s.Warning++
		case SeverityInfo:
			s.Info++
		}
	}
	return s
}

// HasCritical reports whether any finding is critical.
func HasCritical(found []Discrepancy) bool {
	return Summarize(found).Critical > 0
}
