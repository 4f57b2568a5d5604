package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/money"
	"github.com/eshaffer321/propledger/internal/domain/reconcile"
	"github.com/eshaffer321/propledger/internal/domain/rules"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It stores all data in maps and slices, making tests fast and isolated.
// Balances are aggregated on write, like the SQLite store.
type MockRepository struct {
	mu sync.Mutex

	accounts     map[string]*ledger.Account
	entries      []*ledger.JournalEntry
	balances     map[string]*ledger.AccountBalance
	daily        map[activityKey][2]decimal.Decimal
	transactions []*ledger.BankTransaction
	rules        map[string]*rules.MatchingRule
	sessions     map[string]*reconcile.Session
	events       []*EventRecord

	// Now stamps created records; defaults to time.Now.
	Now func() time.Time

	// Hooks for test assertions
	CreateEntryCalls     int
	LastEntryDraft       *ledger.JournalEntryDraft
	UpdateTxCalls        int
	RecordRuleMatchCalls int
	SaveEventCalls       int

	// Error injection for testing error paths
	CreateEntryErr     error
	GetEntryErr        error
	ListEntriesErr     error
	ListPostingsErr    error
	BalanceErr         error
	SaveTxErr          error
	UpdateTxErr        error
	ListTxErr          error
	ListRulesErr       error
	RecordRuleMatchErr error
	CreateSessionErr   error
	UpdateSessionErr   error
	SaveEventErr       error
}

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		accounts: make(map[string]*ledger.Account),
		balances: make(map[string]*ledger.AccountBalance),
		daily:    make(map[activityKey][2]decimal.Decimal),
		rules:    make(map[string]*rules.MatchingRule),
		sessions: make(map[string]*reconcile.Session),
		Now:      time.Now,
	}
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// Close does nothing for mock
func (m *MockRepository) Close() error {
	return nil
}

func orgKey(orgID, id string) string {
	return orgID + "/" + id
}

// ownedElsewhere reports whether id is already stored under another organization
func ownedElsewhere[T any](records map[string]T, orgID, id string) bool {
	suffix := "/" + id
	for key := range records {
		if strings.HasSuffix(key, suffix) && key != orgKey(orgID, id) {
			return true
		}
	}
	return false
}

// SaveAccount stores an account
func (m *MockRepository) SaveAccount(_ context.Context, account *ledger.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ownedElsewhere(m.accounts, account.OrganizationID, account.ID) {
		return accountNotFound(account.ID)
	}
	copied := *account
	m.accounts[orgKey(account.OrganizationID, account.ID)] = &copied
	return nil
}

// GetAccount retrieves an account
func (m *MockRepository) GetAccount(_ context.Context, org ledger.OrganizationContext, accountID string) (*ledger.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[orgKey(org.OrganizationID, accountID)]
	if !ok {
		return nil, accountNotFound(accountID)
	}
	copied := *a
	return &copied, nil
}

// ListAccounts returns the organization's accounts sorted by ID
func (m *MockRepository) ListAccounts(_ context.Context, org ledger.OrganizationContext) ([]*ledger.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listAccounts(org), nil
}

func (m *MockRepository) listAccounts(org ledger.OrganizationContext) []*ledger.Account {
	var out []*ledger.Account
	for _, a := range m.accounts {
		if a.OrganizationID == org.OrganizationID {
			copied := *a
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MockRepository) accountMap(org ledger.OrganizationContext) map[string]*ledger.Account {
	accounts := make(map[string]*ledger.Account)
	for _, a := range m.listAccounts(org) {
		accounts[a.ID] = a
	}
	return accounts
}

// CreateJournalEntry validates and stores an entry and updates the aggregates
func (m *MockRepository) CreateJournalEntry(_ context.Context, org ledger.OrganizationContext, draft ledger.JournalEntryDraft) (*ledger.JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateEntryCalls++
	d := draft
	m.LastEntryDraft = &d
	if m.CreateEntryErr != nil {
		return nil, m.CreateEntryErr
	}

	entry, err := newJournalEntry(org, draft, m.accountMap(org), m.Now())
	if err != nil {
		return nil, err
	}

	for _, p := range entry.Postings {
		debit, credit := sides(p.Amount)

		key := orgKey(org.OrganizationID, p.AccountID)
		b, ok := m.balances[key]
		if !ok {
			b = &ledger.AccountBalance{OrganizationID: org.OrganizationID, AccountID: p.AccountID}
			m.balances[key] = b
		}
		b.Debit = b.Debit.Add(debit)
		b.Credit = b.Credit.Add(credit)
		b.UpdatedAt = entry.CreatedAt

		dk := activityKey{accountID: orgKey(org.OrganizationID, p.AccountID), propertyID: p.PropertyID, ownerID: p.OwnerID, day: dayKey(p.Date)}
		totals := m.daily[dk]
		m.daily[dk] = [2]decimal.Decimal{totals[0].Add(debit), totals[1].Add(credit)}
	}

	m.entries = append(m.entries, entry)
	return copyEntry(entry), nil
}

func copyEntry(e *ledger.JournalEntry) *ledger.JournalEntry {
	copied := *e
	copied.Postings = append([]ledger.LedgerPosting(nil), e.Postings...)
	return &copied
}

// GetJournalEntry retrieves an entry
func (m *MockRepository) GetJournalEntry(_ context.Context, org ledger.OrganizationContext, entryID string) (*ledger.JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetEntryErr != nil {
		return nil, m.GetEntryErr
	}
	for _, e := range m.entries {
		if e.OrganizationID == org.OrganizationID && e.ID == entryID {
			return copyEntry(e), nil
		}
	}
	return nil, fmt.Errorf("journal entry %s: %w", entryID, ErrNotFound)
}

// AddJournalEntry stores a pre-built entry without validation or aggregation.
// Intended for arranging fuzzy-match candidates in tests.
func (m *MockRepository) AddJournalEntry(entry *ledger.JournalEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	m.entries = append(m.entries, copyEntry(entry))
}

// ListEntriesInWindow returns entries dated within [from, to], oldest first
func (m *MockRepository) ListEntriesInWindow(_ context.Context, org ledger.OrganizationContext, from, to time.Time) ([]*ledger.JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListEntriesErr != nil {
		return nil, m.ListEntriesErr
	}

	from, until := ledger.Day(from), ledger.Day(to).AddDate(0, 0, 1)
	var out []*ledger.JournalEntry
	for _, e := range m.entries {
		if e.OrganizationID != org.OrganizationID || e.EntryDate.Before(from) || !e.EntryDate.Before(until) {
			continue
		}
		out = append(out, copyEntry(e))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EntryDate.Before(out[j].EntryDate) })
	return out, nil
}

// ListPostings returns postings matching the filter, oldest first
func (m *MockRepository) ListPostings(_ context.Context, org ledger.OrganizationContext, filter PostingFilter) ([]ledger.LedgerPosting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListPostingsErr != nil {
		return nil, m.ListPostingsErr
	}

	accounts := m.accountMap(org)
	start, end := rangeKeys(filter.Start, filter.End)

	var out []ledger.LedgerPosting
	for _, e := range m.entries {
		if e.OrganizationID != org.OrganizationID {
			continue
		}
		if filter.entryID != "" && e.ID != filter.entryID {
			continue
		}
		for _, p := range e.Postings {
			if len(filter.AccountIDs) > 0 && !contains(filter.AccountIDs, p.AccountID) {
				continue
			}
			if len(filter.Subtypes) > 0 {
				a, ok := accounts[p.AccountID]
				if !ok || !contains(filter.Subtypes, a.Subtype) {
					continue
				}
			}
			if filter.FundBucket != ledger.BucketNone && p.FundBucket != filter.FundBucket {
				continue
			}
			if filter.Source != "" && p.Source != filter.Source {
				continue
			}
			if filter.Reference != "" && p.Reference != filter.Reference {
				continue
			}
			if !inRange(dayKey(p.Date), start, end) {
				continue
			}
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// GetAccountBalance reads one account's running balance
func (m *MockRepository) GetAccountBalance(_ context.Context, org ledger.OrganizationContext, accountID string) (*ledger.AccountBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BalanceErr != nil {
		return nil, m.BalanceErr
	}

	a, ok := m.accounts[orgKey(org.OrganizationID, accountID)]
	if !ok {
		return nil, accountNotFound(accountID)
	}
	b := m.balanceOf(org, a)
	return &b, nil
}

// GetSubtypeBalance reads the combined balance of accounts with the subtype
func (m *MockRepository) GetSubtypeBalance(_ context.Context, org ledger.OrganizationContext, subtype string) (*ledger.AccountBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BalanceErr != nil {
		return nil, m.BalanceErr
	}

	var balances []ledger.AccountBalance
	for _, a := range m.listAccounts(org) {
		if a.Subtype == subtype {
			balances = append(balances, m.balanceOf(org, a))
		}
	}
	return combineBalances(org, subtype, balances), nil
}

func (m *MockRepository) balanceOf(org ledger.OrganizationContext, a *ledger.Account) ledger.AccountBalance {
	b := ledger.AccountBalance{
		OrganizationID: org.OrganizationID,
		AccountID:      a.ID,
		AccountName:    a.Name,
		AccountType:    a.Type,
		Subtype:        a.Subtype,
		FundBucket:     a.FundBucket,
	}
	if stored, ok := m.balances[orgKey(org.OrganizationID, a.ID)]; ok {
		b.Debit = money.Ledger(stored.Debit)
		b.Credit = money.Ledger(stored.Credit)
		b.UpdatedAt = stored.UpdatedAt
	}
	b.Balance = money.Ledger(b.Debit.Sub(b.Credit))
	return b
}

// GetTrialBalanceAsOf returns debit/credit totals per account as of a date
func (m *MockRepository) GetTrialBalanceAsOf(_ context.Context, org ledger.OrganizationContext, asOf time.Time) ([]ledger.TrialBalanceRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BalanceErr != nil {
		return nil, m.BalanceErr
	}
	totals := m.readActivity(org, ActivityFilter{End: asOf}, "")
	return totals.trialBalance(m.accountMap(org)), nil
}

// GetAccountActivity returns one account's net change over [start, end]
func (m *MockRepository) GetAccountActivity(_ context.Context, org ledger.OrganizationContext, accountID string, start, end time.Time) (*ledger.AccountActivity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BalanceErr != nil {
		return nil, m.BalanceErr
	}

	accounts := m.accountMap(org)
	a, ok := accounts[accountID]
	if !ok {
		return nil, accountNotFound(accountID)
	}

	activity := m.readActivity(org, ActivityFilter{Start: start, End: end}, accountID).activity(accounts)
	if len(activity) == 0 {
		return &ledger.AccountActivity{
			AccountID:   a.ID,
			AccountName: a.Name,
			AccountType: a.Type,
			Subtype:     a.Subtype,
		}, nil
	}
	return &activity[0], nil
}

// ListAccountActivity returns per-account activity over a range
func (m *MockRepository) ListAccountActivity(_ context.Context, org ledger.OrganizationContext, filter ActivityFilter) ([]ledger.AccountActivity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BalanceErr != nil {
		return nil, m.BalanceErr
	}
	return m.readActivity(org, filter, "").activity(m.accountMap(org)), nil
}

func (m *MockRepository) readActivity(org ledger.OrganizationContext, filter ActivityFilter, accountID string) *activityTotals {
	start, end := rangeKeys(filter.Start, filter.End)
	prefix := orgKey(org.OrganizationID, "")

	keys := make([]activityKey, 0, len(m.daily))
	for k := range m.daily {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].accountID != keys[j].accountID {
			return keys[i].accountID < keys[j].accountID
		}
		return keys[i].day < keys[j].day
	})

	totals := newActivityTotals()
	for _, k := range keys {
		if len(k.accountID) <= len(prefix) || k.accountID[:len(prefix)] != prefix {
			continue
		}
		id := k.accountID[len(prefix):]
		if accountID != "" && id != accountID {
			continue
		}
		if filter.PropertyID != "" && k.propertyID != filter.PropertyID {
			continue
		}
		if filter.OwnerID != "" && k.ownerID != filter.OwnerID {
			continue
		}
		if !inRange(k.day, start, end) {
			continue
		}
		v := m.daily[k]
		totals.add(id, v[0], v[1])
	}
	return totals
}

// SaveBankTransaction inserts a transaction
func (m *MockRepository) SaveBankTransaction(_ context.Context, tx *ledger.BankTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveTxErr != nil {
		return m.SaveTxErr
	}

	for _, existing := range m.transactions {
		if existing.ID == tx.ID ||
			(tx.ExternalID != "" && existing.OrganizationID == tx.OrganizationID &&
				existing.BankAccountID == tx.BankAccountID && existing.ExternalID == tx.ExternalID) {
			return fmt.Errorf("bank transaction %s: %w", tx.ID, ErrDuplicateTransaction)
		}
	}

	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = m.Now()
	}
	if tx.Status == "" {
		tx.Status = ledger.StatusUnmatched
	}
	copied := *tx
	m.transactions = append(m.transactions, &copied)
	return nil
}

// UpdateBankTransaction updates the mutable fields of a transaction
func (m *MockRepository) UpdateBankTransaction(_ context.Context, tx *ledger.BankTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateTxCalls++
	if m.UpdateTxErr != nil {
		return m.UpdateTxErr
	}

	for _, existing := range m.transactions {
		if existing.OrganizationID == tx.OrganizationID && existing.ID == tx.ID {
			existing.Cleared = tx.Cleared
			existing.Status = tx.Status
			existing.MatchedEntryID = tx.MatchedEntryID
			existing.ReconciliationID = tx.ReconciliationID
			return nil
		}
	}
	return fmt.Errorf("bank transaction %s: %w", tx.ID, ErrNotFound)
}

// GetBankTransaction retrieves a transaction
func (m *MockRepository) GetBankTransaction(_ context.Context, org ledger.OrganizationContext, id string) (*ledger.BankTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range m.transactions {
		if tx.OrganizationID == org.OrganizationID && tx.ID == id {
			copied := *tx
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("bank transaction %s: %w", id, ErrNotFound)
}

// FindByExternalID looks up a feed transaction
func (m *MockRepository) FindByExternalID(_ context.Context, org ledger.OrganizationContext, bankAccountID, externalID string) (*ledger.BankTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range m.transactions {
		if tx.OrganizationID == org.OrganizationID && tx.BankAccountID == bankAccountID && tx.ExternalID == externalID {
			copied := *tx
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("external transaction %s: %w", externalID, ErrNotFound)
}

// ListBankTransactions returns transactions matching the filter, oldest first
func (m *MockRepository) ListBankTransactions(_ context.Context, org ledger.OrganizationContext, filter TransactionFilter) ([]ledger.BankTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListTxErr != nil {
		return nil, m.ListTxErr
	}

	var out []ledger.BankTransaction
	for _, tx := range m.transactions {
		if tx.OrganizationID != org.OrganizationID {
			continue
		}
		if filter.BankAccountID != "" && tx.BankAccountID != filter.BankAccountID {
			continue
		}
		if !hasStatus(filter.Statuses, tx.Status) {
			continue
		}
		if !filter.Before.IsZero() && ledger.Day(tx.Date).After(ledger.Day(filter.Before)) {
			continue
		}
		out = append(out, *tx)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// SaveRule stores a rule
func (m *MockRepository) SaveRule(_ context.Context, rule *rules.MatchingRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if ownedElsewhere(m.rules, rule.OrganizationID, rule.ID) {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrNotFound)
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now
	copied := *rule
	m.rules[orgKey(rule.OrganizationID, rule.ID)] = &copied
	return nil
}

// GetRule retrieves a rule
func (m *MockRepository) GetRule(_ context.Context, org ledger.OrganizationContext, ruleID string) (*rules.MatchingRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[orgKey(org.OrganizationID, ruleID)]
	if !ok {
		return nil, fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}
	copied := *r
	return &copied, nil
}

// ListRules returns rules ordered by priority, then name
func (m *MockRepository) ListRules(_ context.Context, org ledger.OrganizationContext) ([]*rules.MatchingRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListRulesErr != nil {
		return nil, m.ListRulesErr
	}

	var out []*rules.MatchingRule
	for _, r := range m.rules {
		if r.OrganizationID == org.OrganizationID {
			copied := *r
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// RecordRuleMatch persists updated usage statistics
func (m *MockRepository) RecordRuleMatch(_ context.Context, org ledger.OrganizationContext, ruleID string, matchCount int, matchedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RecordRuleMatchCalls++
	if m.RecordRuleMatchErr != nil {
		return m.RecordRuleMatchErr
	}
	r, ok := m.rules[orgKey(org.OrganizationID, ruleID)]
	if !ok {
		return fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}
	r.MatchCount = matchCount
	at := matchedAt
	r.LastMatchedAt = &at
	return nil
}

// CreateSession stores a new session, enforcing one open session per bank account
func (m *MockRepository) CreateSession(_ context.Context, session *reconcile.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateSessionErr != nil {
		return m.CreateSessionErr
	}
	for _, existing := range m.sessions {
		if existing.OrganizationID == session.OrganizationID &&
			existing.BankAccountID == session.BankAccountID &&
			existing.Status == reconcile.StatusInProgress &&
			session.Status == reconcile.StatusInProgress {
			return fmt.Errorf("bank account %s: %w", session.BankAccountID, ErrSessionInProgress)
		}
	}
	copied := *session
	m.sessions[orgKey(session.OrganizationID, session.ID)] = &copied
	return nil
}

// UpdateSession persists a session
func (m *MockRepository) UpdateSession(_ context.Context, session *reconcile.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateSessionErr != nil {
		return m.UpdateSessionErr
	}
	key := orgKey(session.OrganizationID, session.ID)
	if _, ok := m.sessions[key]; !ok {
		return fmt.Errorf("session %s: %w", session.ID, ErrNotFound)
	}
	copied := *session
	m.sessions[key] = &copied
	return nil
}

// GetSession retrieves a session
func (m *MockRepository) GetSession(_ context.Context, org ledger.OrganizationContext, sessionID string) (*reconcile.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[orgKey(org.OrganizationID, sessionID)]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	copied := *s
	return &copied, nil
}

// ListSessions returns sessions for a bank account, newest first
func (m *MockRepository) ListSessions(_ context.Context, org ledger.OrganizationContext, bankAccountID string) ([]*reconcile.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*reconcile.Session
	for _, s := range m.sessions {
		if s.OrganizationID == org.OrganizationID && s.BankAccountID == bankAccountID {
			copied := *s
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

// SaveEvent records an event
func (m *MockRepository) SaveEvent(_ context.Context, event *EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveEventCalls++
	if m.SaveEventErr != nil {
		return m.SaveEventErr
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = m.Now()
	}
	copied := *event
	m.events = append(m.events, &copied)
	return nil
}

// ListEvents returns recent events, newest first
func (m *MockRepository) ListEvents(_ context.Context, org ledger.OrganizationContext, name string, limit int) ([]*EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	var out []*EventRecord
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.events[i]
		if e.OrganizationID != org.OrganizationID || (name != "" && e.Name != name) {
			continue
		}
		copied := *e
		out = append(out, &copied)
	}
	return out, nil
}
