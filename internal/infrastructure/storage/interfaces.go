package storage

import (
	"context"
	"time"

	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/reconcile"
	"github.com/eshaffer321/propledger/internal/domain/rules"
)

// Repository defines the complete storage interface.
// This interface allows swapping implementations (SQLite, in-memory)
// and makes testing with mocks straightforward.
type Repository interface {
	AccountRepository
	LedgerRepository
	BankRepository
	RuleRepository
	SessionRepository
	EventRepository
	Close() error
}

// AccountRepository handles the chart of accounts.
type AccountRepository interface {
	// SaveAccount creates or updates an account
	SaveAccount(ctx context.Context, account *ledger.Account) error

	// GetAccount retrieves an account by ID, or ErrNotFound
	GetAccount(ctx context.Context, org ledger.OrganizationContext, accountID string) (*ledger.Account, error)

	// ListAccounts returns every account of the organization
	ListAccounts(ctx context.Context, org ledger.OrganizationContext) ([]*ledger.Account, error)
}

// LedgerRepository is the ledger store. Journal entries are written only
// through CreateJournalEntry; balances are read from pre-aggregated tables.
type LedgerRepository interface {
	// CreateJournalEntry writes an entry and updates the balance aggregates
	// atomically. Entries whose postings do not sum to zero are rejected
	// with an UNBALANCED_ENTRY error.
	CreateJournalEntry(ctx context.Context, org ledger.OrganizationContext, draft ledger.JournalEntryDraft) (*ledger.JournalEntry, error)

	// GetJournalEntry retrieves an entry with its postings, or ErrNotFound
	GetJournalEntry(ctx context.Context, org ledger.OrganizationContext, entryID string) (*ledger.JournalEntry, error)

	// ListEntriesInWindow returns entries dated within [from, to], oldest first
	ListEntriesInWindow(ctx context.Context, org ledger.OrganizationContext, from, to time.Time) ([]*ledger.JournalEntry, error)

	// ListPostings returns postings matching the filter, oldest first
	ListPostings(ctx context.Context, org ledger.OrganizationContext, filter PostingFilter) ([]ledger.LedgerPosting, error)

	// GetAccountBalance reads one account's running balance
	GetAccountBalance(ctx context.Context, org ledger.OrganizationContext, accountID string) (*ledger.AccountBalance, error)

	// GetSubtypeBalance reads the combined running balance of every account with the subtype
	GetSubtypeBalance(ctx context.Context, org ledger.OrganizationContext, subtype string) (*ledger.AccountBalance, error)

	// GetTrialBalanceAsOf returns debit/credit totals per account as of a date
	GetTrialBalanceAsOf(ctx context.Context, org ledger.OrganizationContext, asOf time.Time) ([]ledger.TrialBalanceRow, error)

	// GetAccountActivity returns one account's net change over [start, end]
	GetAccountActivity(ctx context.Context, org ledger.OrganizationContext, accountID string, start, end time.Time) (*ledger.AccountActivity, error)

	// ListAccountActivity returns per-account activity over a range, optionally scoped
	ListAccountActivity(ctx context.Context, org ledger.OrganizationContext, filter ActivityFilter) ([]ledger.AccountActivity, error)
}

// BankRepository handles bank transactions received from the feed.
// Transactions are never deleted.
type BankRepository interface {
	// SaveBankTransaction inserts a new transaction
	SaveBankTransaction(ctx context.Context, tx *ledger.BankTransaction) error

	// UpdateBankTransaction updates the mutable fields: cleared, status,
	// matched entry and reconciliation session
	UpdateBankTransaction(ctx context.Context, tx *ledger.BankTransaction) error

	// GetBankTransaction retrieves a transaction by ID, or ErrNotFound
	GetBankTransaction(ctx context.Context, org ledger.OrganizationContext, id string) (*ledger.BankTransaction, error)

	// FindByExternalID looks up a feed transaction, or ErrNotFound
	FindByExternalID(ctx context.Context, org ledger.OrganizationContext, bankAccountID, externalID string) (*ledger.BankTransaction, error)

	// ListBankTransactions returns transactions matching the filter, oldest first
	ListBankTransactions(ctx context.Context, org ledger.OrganizationContext, filter TransactionFilter) ([]ledger.BankTransaction, error)
}

// RuleRepository handles matching rules.
type RuleRepository interface {
	// SaveRule creates or updates a rule
	SaveRule(ctx context.Context, rule *rules.MatchingRule) error

	// GetRule retrieves a rule by ID, or ErrNotFound
	GetRule(ctx context.Context, org ledger.OrganizationContext, ruleID string) (*rules.MatchingRule, error)

	// ListRules returns every rule ordered by priority
	ListRules(ctx context.Context, org ledger.OrganizationContext) ([]*rules.MatchingRule, error)

	// RecordRuleMatch persists updated usage statistics
	RecordRuleMatch(ctx context.Context, org ledger.OrganizationContext, ruleID string, matchCount int, matchedAt time.Time) error
}

// SessionRepository handles reconciliation sessions.
type SessionRepository interface {
	// CreateSession inserts a new in-progress session. It returns
	// ErrSessionInProgress when the bank account already has one.
	CreateSession(ctx context.Context, session *reconcile.Session) error

	// UpdateSession persists a session's state
	UpdateSession(ctx context.Context, session *reconcile.Session) error

	// GetSession retrieves a session by ID, or ErrNotFound
	GetSession(ctx context.Context, org ledger.OrganizationContext, sessionID string) (*reconcile.Session, error)

	// ListSessions returns sessions for a bank account, newest first
	ListSessions(ctx context.Context, org ledger.OrganizationContext, bankAccountID string) ([]*reconcile.Session, error)
}

// EventRepository keeps an audit trail of emitted events.
type EventRepository interface {
	// SaveEvent records an event
	SaveEvent(ctx context.Context, event *EventRecord) error

	// ListEvents returns recent events, newest first. Empty name means all.
	ListEvents(ctx context.Context, org ledger.OrganizationContext, name string, limit int) ([]*EventRecord, error)
}
