// Package matching orchestrates bank-transaction matching.
//
// Each transaction goes through the rule engine first. When no rule matches,
// the fuzzy matcher looks for an existing ledger entry. Rule statistics are
// persisted as soon as a rule matches, before any journal entry is created.
//
// The steps match → post → status update are not atomic. RepairDanglingState
// walks transactions left between steps and moves them to a consistent state.
package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eshaffer321/propledger/internal/adapters/events"
	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/matcher"
	"github.com/eshaffer321/propledger/internal/domain/reconcile"
	"github.com/eshaffer321/propledger/internal/domain/rules"
	"github.com/eshaffer321/propledger/internal/infrastructure/storage"
)

// metaBankTransactionID links a journal entry back to its bank transaction
const metaBankTransactionID = "bank_transaction_id"

// Config holds matching options
type Config struct {
	AutoPost bool           // Create the rule's journal entry and move the transaction to posted
	Matcher  matcher.Config // Fuzzy matcher settings
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		AutoPost: false,
		Matcher:  matcher.DefaultConfig(),
	}
}

// Service matches bank transactions against rules and existing entries
type Service struct {
	store    storage.Repository
	engine   *rules.Engine
	matcher  *matcher.Matcher
	events   events.Sink
	logger   *slog.Logger
	cfg      Config
	onPosted func(ledger.OrganizationContext)
}

// NewService creates a matching service
func NewService(store storage.Repository, sink events.Sink, logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = events.Nop{}
	}
	return &Service{
		store:   store,
		engine:  rules.NewEngine(logger),
		matcher: matcher.NewMatcher(cfg.Matcher),
		events:  sink,
		logger:  logger,
		cfg:     cfg,
	}
}

// WithClock overrides the clock used for rule statistics
func (s *Service) WithClock(now func() time.Time) *Service {
	s.engine.WithClock(now)
	return s
}

// OnPosted registers a callback run after a journal entry is created
func (s *Service) OnPosted(fn func(ledger.OrganizationContext)) {
	s.onPosted = fn
}

// MatchTransaction runs rule matching, then fuzzy matching, and persists the
// transaction's new status. An unmatched transaction is a normal result.
func (s *Service) MatchTransaction(ctx context.Context, org ledger.OrganizationContext, tx *ledger.BankTransaction) (*rules.MatchResult, error) {
	if err := reconcile.RequireOrganization(org); err != nil {
		return nil, err
	}

	activeRules, err := s.store.ListRules(ctx, org)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	result, rule := s.engine.Match(*tx, activeRules, s.scopeOf(ctx, org, tx))
	if result.Matched {
		return s.applyRuleMatch(ctx, org, tx, result, rule)
	}

	fuzzy := s.FuzzyMatchExisting(ctx, org, tx)
	if fuzzy == nil {
		s.logger.Debug("transaction unmatched", "transaction_id", tx.ID)
		return rules.NoMatch(), nil
	}

	// The entry already exists in the ledger, so the transaction is posted.
	tx.MatchedEntryID = fuzzy.MatchedEntryID
	if err := s.setStatus(ctx, tx, ledger.StatusPosted); err != nil {
		return nil, err
	}
	return fuzzy, nil
}

// scopeOf derives the rule scope from the transaction's bank account. A lookup
// failure leaves the scope empty so only unscoped rules apply.
func (s *Service) scopeOf(ctx context.Context, org ledger.OrganizationContext, tx *ledger.BankTransaction) rules.Scope {
	account, err := s.store.GetAccount(ctx, org, tx.BankAccountID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("failed to load bank account for rule scope",
				"bank_account_id", tx.BankAccountID,
				"error", err)
		}
		return rules.Scope{}
	}
	return rules.Scope{PropertyID: account.PropertyID}
}

// MatchByID loads a stored transaction and matches it
func (s *Service) MatchByID(ctx context.Context, org ledger.OrganizationContext, transactionID string) (*rules.MatchResult, error) {
	tx, err := s.store.GetBankTransaction(ctx, org, transactionID)
	if err != nil {
		return nil, err
	}
	return s.MatchTransaction(ctx, org, tx)
}

func (s *Service) applyRuleMatch(
	ctx context.Context,
	org ledger.OrganizationContext,
	tx *ledger.BankTransaction,
	result *rules.MatchResult,
	rule *rules.MatchingRule,
) (*rules.MatchResult, error) {
	// Statistics are persisted even if no entry is ever created.
	if err := s.store.RecordRuleMatch(ctx, org, rule.ID, rule.MatchCount, *rule.LastMatchedAt); err != nil {
		return nil, fmt.Errorf("failed to record match for rule %s: %w", rule.ID, err)
	}
	s.emit(ctx, events.New(org, events.RuleMatched, map[string]any{
		"rule_id":        rule.ID,
		"transaction_id": tx.ID,
		"confidence":     result.Confidence,
	}))

	if err := s.setStatus(ctx, tx, ledger.StatusMatched); err != nil {
		return nil, err
	}

	if !s.cfg.AutoPost || result.Draft == nil {
		return result, nil
	}

	entry, err := s.store.CreateJournalEntry(ctx, org, *result.Draft)
	if err != nil {
		return result, fmt.Errorf("failed to post entry for transaction %s: %w", tx.ID, err)
	}
	result.MatchedEntryID = entry.ID
	tx.MatchedEntryID = entry.ID
	s.posted(ctx, org, entry)

	if err := s.setStatus(ctx, tx, ledger.StatusPosted); err != nil {
		return result, err
	}
	return result, nil
}

// FuzzyMatchExisting looks for an existing entry matching tx. Store failures
// are logged and treated as no match.
func (s *Service) FuzzyMatchExisting(ctx context.Context, org ledger.OrganizationContext, tx *ledger.BankTransaction) *rules.MatchResult {
	window := s.matcher.Config().DateTolerance
	day := ledger.Day(tx.Date)

	entries, err := s.store.ListEntriesInWindow(ctx, org, day.AddDate(0, 0, -window), day.AddDate(0, 0, window))
	if err != nil {
		s.logger.Warn("fuzzy match lookup failed", "transaction_id", tx.ID, "error", err)
		return nil
	}
	if len(entries) == 0 {
		return nil
	}

	used, err := s.usedEntryIDs(ctx, org, tx)
	if err != nil {
		s.logger.Warn("fuzzy match lookup failed", "transaction_id", tx.ID, "error", err)
		return nil
	}

	match := s.matcher.FindMatch(*tx, entries, used)
	if match == nil {
		return nil
	}

	s.logger.Debug("fuzzy match",
		"transaction_id", tx.ID,
		"entry_id", match.Entry.ID,
		"similarity", match.Similarity)

	return &rules.MatchResult{
		Matched:        true,
		Confidence:     match.Confidence,
		Source:         rules.SourceFuzzy,
		MatchedEntryID: match.Entry.ID,
		Similarity:     match.Similarity,
	}
}

// usedEntryIDs collects entries already linked to another transaction
func (s *Service) usedEntryIDs(ctx context.Context, org ledger.OrganizationContext, tx *ledger.BankTransaction) (map[string]bool, error) {
	linked, err := s.store.ListBankTransactions(ctx, org, storage.TransactionFilter{
		BankAccountID: tx.BankAccountID,
		Statuses:      []ledger.TransactionStatus{ledger.StatusMatched, ledger.StatusPosted, ledger.StatusReconciled},
	})
	if err != nil {
		return nil, err
	}
	used := make(map[string]bool, len(linked))
	for _, other := range linked {
		if other.ID != tx.ID && other.MatchedEntryID != "" {
			used[other.MatchedEntryID] = true
		}
	}
	return used, nil
}

// BatchSummary counts the outcome of matching many transactions
type BatchSummary struct {
	Processed    int `json:"processed"`
	RuleMatched  int `json:"rule_matched"`
	FuzzyMatched int `json:"fuzzy_matched"`
	Posted       int `json:"posted"`
	Unmatched    int `json:"unmatched"`
	Failed       int `json:"failed"`
}

// MatchUnmatched matches every unmatched transaction of a bank account in
// date order. A failure on one transaction is logged and counted.
func (s *Service) MatchUnmatched(ctx context.Context, org ledger.OrganizationContext, bankAccountID string) (*BatchSummary, error) {
	if err := reconcile.RequireOrganization(org); err != nil {
		return nil, err
	}

	txs, err := s.store.ListBankTransactions(ctx, org, storage.TransactionFilter{
		BankAccountID: bankAccountID,
		Statuses:      []ledger.TransactionStatus{ledger.StatusUnmatched},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list unmatched transactions: %w", err)
	}

	summary := &BatchSummary{}
	for i := range txs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		result, err := s.MatchTransaction(ctx, org, &txs[i])
		if err != nil {
			s.logger.Warn("failed to match transaction", "transaction_id", txs[i].ID, "error", err)
		}
		summary.Add(result, err)
	}
	return summary, nil
}

// Add records the outcome of one match
func (b *BatchSummary) Add(result *rules.MatchResult, err error) {
	b.Processed++
	switch {
	case err != nil:
		b.Failed++
	case result == nil || !result.Matched:
		b.Unmatched++
	case result.Source == rules.SourceFuzzy:
		b.FuzzyMatched++
	default:
		b.RuleMatched++
		if result.MatchedEntryID != "" {
			b.Posted++
		}
	}
}

func (s *Service) setStatus(ctx context.Context, tx *ledger.BankTransaction, next ledger.TransactionStatus) error {
	if tx.Status == "" {
		tx.Status = ledger.StatusUnmatched
	}
	if !tx.Status.CanTransition(next) {
		return nil
	}
	tx.Status = next
	if err := s.store.UpdateBankTransaction(ctx, tx); err != nil {
		return fmt.Errorf("failed to update transaction %s: %w", tx.ID, err)
	}
	return nil
}

func (s *Service) posted(ctx context.Context, org ledger.OrganizationContext, entry *ledger.JournalEntry) {
	s.emit(ctx, events.New(org, events.JournalPosted, map[string]any{
		"entry_id":   entry.ID,
		"entry_type": entry.EntryType,
	}))
	if s.onPosted != nil {
		s.onPosted(org)
	}
}

func (s *Service) emit(ctx context.Context, event events.Event) {
	if err := s.events.Emit(ctx, event); err != nil {
		s.logger.Warn("failed to emit event", "event", event.Name, "error", err)
	}
}

// RepairReport counts transactions moved by a repair pass
type RepairReport struct {
	Promoted int `json:"promoted"` // matched → posted
	Linked   int `json:"linked"`   // entry id recovered from entry metadata
	Demoted  int `json:"demoted"`  // posted without an entry → matched
}

// RepairDanglingState fixes transactions left between match and post.
// A matched transaction whose entry exists becomes posted; a posted
// transaction whose entry is missing goes back to matched. Running it twice
// changes nothing the second time.
func (s *Service) RepairDanglingState(ctx context.Context, org ledger.OrganizationContext) (*RepairReport, error) {
	if err := reconcile.RequireOrganization(org); err != nil {
		return nil, err
	}

	report := &RepairReport{}

	matched, err := s.store.ListBankTransactions(ctx, org, storage.TransactionFilter{
		Statuses: []ledger.TransactionStatus{ledger.StatusMatched},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list matched transactions: %w", err)
	}
	for i := range matched {
		tx := &matched[i]
		entryID, linked, err := s.findEntry(ctx, org, tx)
		if err != nil {
			return report, err
		}
		if entryID == "" {
			continue
		}
		tx.MatchedEntryID = entryID
		tx.Status = ledger.StatusPosted
		if err := s.store.UpdateBankTransaction(ctx, tx); err != nil {
			return report, fmt.Errorf("failed to repair transaction %s: %w", tx.ID, err)
		}
		report.Promoted++
		if linked {
			report.Linked++
		}
	}

	posted, err := s.store.ListBankTransactions(ctx, org, storage.TransactionFilter{
		Statuses: []ledger.TransactionStatus{ledger.StatusPosted},
	})
	if err != nil {
		return report, fmt.Errorf("failed to list posted transactions: %w", err)
	}
	for i := range posted {
		tx := &posted[i]
		exists, err := s.entryExists(ctx, org, tx.MatchedEntryID)
		if err != nil {
			return report, err
		}
		if exists {
			continue
		}
		// Deliberate backwards move; the forward-only check does not apply here.
		tx.MatchedEntryID = ""
		tx.Status = ledger.StatusMatched
		if err := s.store.UpdateBankTransaction(ctx, tx); err != nil {
			return report, fmt.Errorf("failed to repair transaction %s: %w", tx.ID, err)
		}
		report.Demoted++
	}

	if report.Promoted+report.Demoted > 0 {
		s.logger.Info("repaired dangling transactions",
			"organization_id", org.OrganizationID,
			"promoted", report.Promoted,
			"linked", report.Linked,
			"demoted", report.Demoted)
	}
	return report, nil
}

// findEntry returns the id of tx's journal entry. linked is true when the id
// was recovered from entry metadata rather than the transaction itself.
func (s *Service) findEntry(ctx context.Context, org ledger.OrganizationContext, tx *ledger.BankTransaction) (entryID string, linked bool, err error) {
	if tx.MatchedEntryID != "" {
		exists, err := s.entryExists(ctx, org, tx.MatchedEntryID)
		if err != nil || !exists {
			return "", false, err
		}
		return tx.MatchedEntryID, false, nil
	}

	window := s.matcher.Config().DateTolerance
	day := ledger.Day(tx.Date)
	entries, err := s.store.ListEntriesInWindow(ctx, org, day.AddDate(0, 0, -window), day.AddDate(0, 0, window))
	if err != nil {
		return "", false, fmt.Errorf("failed to search entries for transaction %s: %w", tx.ID, err)
	}
	for _, e := range entries {
		if e.Metadata[metaBankTransactionID] == tx.ID {
			return e.ID, true, nil
		}
	}
	return "", false, nil
}

func (s *Service) entryExists(ctx context.Context, org ledger.OrganizationContext, entryID string) (bool, error) {
	if entryID == "" {
		return false, nil
	}
	_, err := s.store.GetJournalEntry(ctx, org, entryID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load entry %s: %w", entryID, err)
	}
	return true, nil
}
