// Package ledger defines the accounting types shared by the matching,
// reconciliation and reporting components.
//
// The engine never owns the ledger itself: journal entries are created through
// the ledger store and postings are only read. Bank transactions are never
// deleted; voids and NSF returns append offsetting transactions instead.
package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrganizationContext scopes every engine call to one organization.
// It replaces any ambient per-process organization state.
type OrganizationContext struct {
	OrganizationID string
	UserID         string
}

// Valid reports whether the context names an organization.
func (o OrganizationContext) Valid() bool {
	return strings.TrimSpace(o.OrganizationID) != ""
}

// Direction is the side of a bank transaction from the bank's point of view.
type Direction string

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

// DirectionOf derives a direction from a signed external amount.
// Money arriving in the account (positive) is a credit.
func DirectionOf(amount decimal.Decimal) Direction {
	if amount.IsNegative() {
		return Debit
	}
	return Credit
}

// TransactionStatus tracks a bank transaction through matching and posting.
// Transitions only move forward: unmatched → matched → posted → reconciled.
type TransactionStatus string

const (
	StatusUnmatched  TransactionStatus = "unmatched"
	StatusMatched    TransactionStatus = "matched"
	StatusPosted     TransactionStatus = "posted"
	StatusReconciled TransactionStatus = "reconciled"
)

var statusRank = map[TransactionStatus]int{
	StatusUnmatched:  0,
	StatusMatched:    1,
	StatusPosted:     2,
	StatusReconciled: 3,
}

// CanTransition reports whether moving from s to next is allowed.
// Re-applying the current status is allowed so retries stay idempotent.
func (s TransactionStatus) CanTransition(next TransactionStatus) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to >= from
}

// BankTransaction is a record received from the bank feed.
type BankTransaction struct {
	ID               string            `json:"id"`
	OrganizationID   string            `json:"organization_id"`
	BankAccountID    string            `json:"bank_account_id"`
	ExternalID       string            `json:"external_id,omitempty"`
	Date             time.Time         `json:"date"`
	Amount           decimal.Decimal   `json:"amount"`
	Direction        Direction         `json:"direction"`
	Description      string            `json:"description"`
	MerchantName     string            `json:"merchant_name,omitempty"`
	Category         string            `json:"category,omitempty"`
	Reference        string            `json:"reference,omitempty"`
	CheckNumber      string            `json:"check_number,omitempty"`
	Cleared          bool              `json:"cleared"`
	Status           TransactionStatus `json:"status"`
	MatchedEntryID   string            `json:"matched_entry_id,omitempty"`
	ReconciliationID string            `json:"reconciliation_id,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// SignedAmount returns the amount signed by direction: credits positive,
// debits negative. Feeds disagree on sign conventions, so the direction wins.
func (t BankTransaction) SignedAmount() decimal.Decimal {
	abs := t.Amount.Abs()
	if t.Direction == Debit {
		return abs.Neg()
	}
	return abs
}

// SourceCategory classifies where a posting originated.
type SourceCategory string

const (
	SourcePayment    SourceCategory = "payment"
	SourceCharge     SourceCategory = "charge"
	SourceDeposit    SourceCategory = "deposit"
	SourceRefund     SourceCategory = "refund"
	SourceAdjustment SourceCategory = "adjustment"
)

// FundBucket separates trust (tenant) money from operating money.
type FundBucket string

const (
	BucketNone      FundBucket = ""
	BucketTrust     FundBucket = "trust"
	BucketOperating FundBucket = "operating"
)

// Other returns the opposite bucket, or BucketNone.
func (b FundBucket) Other() FundBucket {
	switch b {
	case BucketTrust:
		return BucketOperating
	case BucketOperating:
		return BucketTrust
	}
	return BucketNone
}

// LedgerPosting is one leg of a double-entry journal entry.
// Debits are positive, credits negative.
type LedgerPosting struct {
	ID          string          `json:"id"`
	EntryID     string          `json:"entry_id"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	AccountID   string          `json:"account_id"`
	AccountName string          `json:"account_name"`
	Reference   string          `json:"reference,omitempty"`
	Source      SourceCategory  `json:"source,omitempty"`
	FundBucket  FundBucket      `json:"fund_bucket,omitempty"`
	PropertyID  string          `json:"property_id,omitempty"`
	OwnerID     string          `json:"owner_id,omitempty"`
}

// JournalEntry groups postings that must sum to zero.
type JournalEntry struct {
	ID             string            `json:"id"`
	OrganizationID string            `json:"organization_id"`
	EntryDate      time.Time         `json:"entry_date"`
	EntryType      string            `json:"entry_type"`
	Description    string            `json:"description"`
	Postings       []LedgerPosting   `json:"postings"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Entry types created by the engine.
const (
	EntryTypeBankMatch      = "bank_match"
	EntryTypeBankFee        = "bank_fee"
	EntryTypeInterest       = "interest"
	EntryTypeReconciliation = "reconciliation_adjustment"
)

// PostingDraft is a posting that has not been written to the ledger yet.
type PostingDraft struct {
	AccountID   string          `json:"account_id"`
	AccountName string          `json:"account_name"`
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference,omitempty"`
	Source      SourceCategory  `json:"source,omitempty"`
	FundBucket  FundBucket      `json:"fund_bucket,omitempty"`
	PropertyID  string          `json:"property_id,omitempty"`
	OwnerID     string          `json:"owner_id,omitempty"`
}

// JournalEntryDraft is the input to the ledger store's CreateJournalEntry.
type JournalEntryDraft struct {
	EntryDate   time.Time         `json:"entry_date"`
	EntryType   string            `json:"entry_type"`
	Description string            `json:"description"`
	Postings    []PostingDraft    `json:"postings"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Total returns the sum of the draft's posting amounts.
func (d JournalEntryDraft) Total() decimal.Decimal {
	total := decimal.Zero
	for _, p := range d.Postings {
		total = total.Add(p.Amount)
	}
	return total
}

// AccountType is the top-level classification of an account.
type AccountType string

const (
	AccountAsset     AccountType = "asset"
	AccountLiability AccountType = "liability"
	AccountEquity    AccountType = "equity"
	AccountRevenue   AccountType = "revenue"
	AccountExpense   AccountType = "expense"
)

// DebitNormal reports whether balances of this type grow with debits.
func (t AccountType) DebitNormal() bool {
	return t == AccountAsset || t == AccountExpense
}

// Account subtypes the engine reads balances for.
const (
	SubtypeTrustBank         = "trust_bank"
	SubtypeOperatingBank     = "operating_bank"
	SubtypeSecurityDeposits  = "security_deposits"
	SubtypePrepaidRent       = "prepaid_rent"
	SubtypeBankFees          = "bank_fees"
	SubtypeInterestIncome    = "interest_income"
	SubtypeOwnerDistribution = "owner_distribution"
	SubtypeOwnerContribution = "owner_contribution"
)

// Account is a chart-of-accounts entry.
type Account struct {
	ID             string      `json:"id"`
	OrganizationID string      `json:"organization_id"`
	Name           string      `json:"name"`
	Type           AccountType `json:"type"`
	Subtype        string      `json:"subtype"`
	FundBucket     FundBucket  `json:"fund_bucket,omitempty"`
	BankAccount    bool        `json:"bank_account"`
	// PropertyID ties a bank account to one property. Property-scoped
	// matching rules only apply to transactions of such accounts.
	PropertyID string `json:"property_id,omitempty"`
}

// AccountBalance is the pre-aggregated balance of one account.
// Balance is debit-positive (Debit - Credit).
type AccountBalance struct {
	OrganizationID string          `json:"organization_id"`
	AccountID      string          `json:"account_id"`
	AccountName    string          `json:"account_name"`
	AccountType    AccountType     `json:"account_type"`
	Subtype        string          `json:"subtype"`
	FundBucket     FundBucket      `json:"fund_bucket,omitempty"`
	Debit          decimal.Decimal `json:"debit"`
	Credit         decimal.Decimal `json:"credit"`
	Balance        decimal.Decimal `json:"balance"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TrialBalanceRow is one account line of a trial balance.
type TrialBalanceRow struct {
	AccountID   string          `json:"account_id"`
	AccountName string          `json:"account_name"`
	AccountType AccountType     `json:"account_type"`
	Subtype     string          `json:"subtype"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

// AccountActivity is the net change of an account over a date range.
type AccountActivity struct {
	AccountID   string          `json:"account_id"`
	AccountName string          `json:"account_name"`
	AccountType AccountType     `json:"account_type"`
	Subtype     string          `json:"subtype"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	NetChange   decimal.Decimal `json:"net_change"`
}

// Day truncates t to a UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the absolute number of calendar days between a and b.
func DaysBetween(a, b time.Time) int {
	diff := Day(a).Sub(Day(b)).Hours() / 24
	if diff < 0 {
		diff = -diff
	}
	return int(diff + 0.5)
}
