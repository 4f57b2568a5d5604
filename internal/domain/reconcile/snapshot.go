package reconcile

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/propledger/internal/domain/discrepancy"
	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/matcher"
	"github.com/eshaffer321/propledger/internal/domain/money"
)

// SnapshotConfig tunes a Snapshot. Zero values select the defaults.
type SnapshotConfig struct {
	NSFFee                 decimal.Decimal
	LargeVarianceThreshold decimal.Decimal
	Matcher                matcher.Config
	Now                    func() time.Time
}

// Snapshot is an in-memory 3-way reconciliation between bank transactions,
// cash ledger postings and tenant-portal balances.
//
// Bank transactions are append-only: voids and NSF returns add offsetting
// transactions and never modify or remove existing ones.
type Snapshot struct {
	transactions   []ledger.BankTransaction
	postings       []ledger.LedgerPosting
	portalBalances map[string]decimal.Decimal
	ledgerBalance  *decimal.Decimal

	nsfFee   decimal.Decimal
	detector *discrepancy.Detector
	matcher  *matcher.Matcher
	now      func() time.Time
}

// NewSnapshot creates an empty snapshot.
func NewSnapshot(cfg SnapshotConfig) *Snapshot {
	if cfg.NSFFee.IsZero() {
		cfg.NSFFee = discrepancy.DefaultNSFFee
	}
	if cfg.Matcher.AmountTolerance.IsZero() {
		cfg.Matcher = matcher.DefaultConfig()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Snapshot{
		portalBalances: make(map[string]decimal.Decimal),
		nsfFee:         cfg.NSFFee,
		detector:       discrepancy.NewDetector(cfg.LargeVarianceThreshold),
		matcher:        matcher.NewMatcher(cfg.Matcher),
		now:            cfg.Now,
	}
}

// AddTransactions appends bank transactions.
func (s *Snapshot) AddTransactions(txs ...ledger.BankTransaction) {
	s.transactions = append(s.transactions, txs...)
}

// AddPostings appends cash-account ledger postings.
func (s *Snapshot) AddPostings(postings ...ledger.LedgerPosting) {
	s.postings = append(s.postings, postings...)
}

// SetPortalBalance records the balance a tenant sees in the portal.
func (s *Snapshot) SetPortalBalance(tenantID string, balance decimal.Decimal) {
	s.portalBalances[tenantID] = balance
}

// SetLedgerBalance fixes the ledger side to a pre-aggregated balance instead
// of the sum of the snapshot's postings.
func (s *Snapshot) SetLedgerBalance(balance decimal.Decimal) {
	b := money.Ledger(balance)
	s.ledgerBalance = &b
}

// Transactions returns a copy of the bank transactions.
func (s *Snapshot) Transactions() []ledger.BankTransaction {
	out := make([]ledger.BankTransaction, len(s.transactions))
	copy(out, s.transactions)
	return out
}

// BankBalance sums bank transactions signed by direction.
func (s *Snapshot) BankBalance() decimal.Decimal {
	total := decimal.Zero
	for _, tx := range s.transactions {
		total = total.Add(tx.SignedAmount())
	}
	return money.Ledger(total)
}

// LedgerBalance is the balance set with SetLedgerBalance, or else the sum of
// every posting.
func (s *Snapshot) LedgerBalance() decimal.Decimal {
	if s.ledgerBalance != nil {
		return *s.ledgerBalance
	}
	total := decimal.Zero
	for _, p := range s.postings {
		total = total.Add(p.Amount)
	}
	return money.Ledger(total)
}

// BucketBalance sums postings of a single fund bucket.
func (s *Snapshot) BucketBalance(bucket ledger.FundBucket) decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.postings {
		if p.FundBucket == bucket {
			total = total.Add(p.Amount)
		}
	}
	return money.Ledger(total)
}

// PortalBalance sums tenant-portal balances.
func (s *Snapshot) PortalBalance() decimal.Decimal {
	total := decimal.Zero
	for _, b := range s.portalBalances {
		total = total.Add(b)
	}
	return money.Ledger(total)
}

// Result is the outcome of a 3-way reconciliation.
type Result struct {
	IsReconciled  bool                      `json:"is_reconciled"`
	Variance      decimal.Decimal           `json:"variance"`
	BankBalance   decimal.Decimal           `json:"bank_balance"`
	LedgerBalance decimal.Decimal           `json:"ledger_balance"`
	PortalBalance *decimal.Decimal          `json:"portal_balance,omitempty"`
	Discrepancies []discrepancy.Discrepancy `json:"discrepancies"`
	Summary       discrepancy.Summary       `json:"summary"`
}

// PerformReconciliation compares the three balances. Bank and ledger are
// reconciled when their variance is within tolerance; when portal balances
// are present they must also agree with the ledger.
func (s *Snapshot) PerformReconciliation() *Result {
	bank := s.BankBalance()
	book := s.LedgerBalance()
	variance := money.Ledger(money.Diff(bank, book))

	result := &Result{
		IsReconciled:  variance.LessThanOrEqual(money.Tolerance),
		Variance:      variance,
		BankBalance:   bank,
		LedgerBalance: book,
	}

	found := s.detector.DetectDuplicates(s.transactions)

	if large := s.detector.DetectLargeVariance(bank, book); large != nil {
		found = append(found, *large)
	} else if !result.IsReconciled {
		found = append(found, discrepancy.Discrepancy{
			Kind:        discrepancy.KindVariance,
			Severity:    discrepancy.SeverityWarning,
			Description: fmt.Sprintf("bank and ledger differ by $%s", money.FormatDisplay(variance)),
			Amount:      variance,
		})
	}

	if len(s.portalBalances) > 0 {
		portal := s.PortalBalance()
		result.PortalBalance = &portal
		if !money.WithinTolerance(portal, book) {
			result.IsReconciled = false
			found = append(found, discrepancy.Discrepancy{
				Kind:     discrepancy.KindAmountMismatch,
				Severity: discrepancy.SeverityWarning,
				Description: fmt.Sprintf("tenant portal shows $%s, ledger shows $%s",
					money.FormatDisplay(portal), money.FormatDisplay(book)),
				Amount: money.Diff(portal, book),
			})
		}
	}

	result.Discrepancies = found
	result.Summary = discrepancy.Summarize(found)
	return result
}

// VoidCheck appends an offsetting credit for the check. It returns false when
// the check is unknown or already voided; the balance is then unchanged.
func (s *Snapshot) VoidCheck(checkNumber string) bool {
	offset, ok := discrepancy.VoidCheck(s.transactions, checkNumber, s.now())
	if !ok {
		return false
	}
	s.transactions = append(s.transactions, *offset)
	return true
}

// ProcessNSF appends the reversal and fee for a returned payment.
func (s *Snapshot) ProcessNSF(reference string) *discrepancy.NSFResult {
	result := discrepancy.ProcessNSF(s.transactions, reference, s.nsfFee, s.now())
	if result.Reversed {
		s.transactions = append(s.transactions, *result.Reversal, *result.Fee)
	}
	return result
}

// PendingACH returns uncleared ACH transactions near the snapshot clock.
func (s *Snapshot) PendingACH() []OutstandingItem {
	return PendingACH(s.transactions, s.now())
}

// OutstandingItems derives checks, deposits in transit and pending ACH.
func (s *Snapshot) OutstandingItems() []OutstandingItem {
	items := OutstandingChecks(s.transactions)
	items = append(items, DepositsInTransit(s.postings, s.transactions)...)
	return append(items, s.PendingACH()...)
}

// MatchBatchDeposits matches bank credits against grouped payment postings.
func (s *Snapshot) MatchBatchDeposits() *matcher.BatchResult {
	return s.matcher.MatchBatchDeposits(s.transactions, s.postings)
}

// TrustOperating computes trust and operating balances separately.
func (s *Snapshot) TrustOperating() *TrustOperatingResult {
	return NewTrustOperatingResult(
		s.BucketBalance(ledger.BucketTrust),
		s.BucketBalance(ledger.BucketOperating),
		s.postings,
		nil,
	)
}
