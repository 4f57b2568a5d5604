// Package ingest imports bank-feed transactions into the store and runs them
// through matching.
//
// Import is idempotent: feed transactions already stored (same bank account
// and external id) are counted as duplicates and skipped.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/eshaffer321/propledger/internal/adapters/bankfeed"
	"github.com/eshaffer321/propledger/internal/adapters/events"
	"github.com/eshaffer321/propledger/internal/application/matching"
	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/reconcile"
	"github.com/eshaffer321/propledger/internal/domain/rules"
	"github.com/eshaffer321/propledger/internal/infrastructure/storage"
)

// Store is the part of the repository the importer needs
type Store interface {
	storage.AccountRepository
	storage.BankRepository
}

// Matcher matches a stored bank transaction
type Matcher interface {
	MatchTransaction(ctx context.Context, org ledger.OrganizationContext, tx *ledger.BankTransaction) (*rules.MatchResult, error)
}

// Options holds import configuration
type Options struct {
	BankAccountID string
	Since         time.Time // zero = use LookbackDays
	LookbackDays  int       // 0 with a zero Since = everything the feed has
	DryRun        bool
	SkipMatching  bool
}

// Result holds import results
type Result struct {
	Source     string                `json:"source"`
	Fetched    int                   `json:"fetched"`
	Imported   int                   `json:"imported"`
	Duplicates int                   `json:"duplicates"`
	Matching   matching.BatchSummary `json:"matching"`
	Errors     []error               `json:"-"`
}

// Service runs imports
type Service struct {
	source  bankfeed.Source
	store   Store
	matcher Matcher
	events  events.Sink
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates an importer. A nil matcher stores transactions without matching.
func NewService(source bankfeed.Source, store Store, matcher Matcher, sink events.Sink, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = events.Nop{}
	}
	return &Service{
		source:  source,
		store:   store,
		matcher: matcher,
		events:  sink,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the importer clock
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Import fetches the feed for one bank account, stores new transactions and
// matches each one. Per-transaction failures are collected in Result.Errors.
func (s *Service) Import(ctx context.Context, org ledger.OrganizationContext, opts Options) (*Result, error) {
	if err := reconcile.RequireOrganization(org); err != nil {
		return nil, err
	}
	account, err := s.store.GetAccount(ctx, org, opts.BankAccountID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && !account.BankAccount) {
		return nil, reconcile.AccountNotFound(opts.BankAccountID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load bank account: %w", err)
	}

	existing, err := s.store.ListBankTransactions(ctx, org, storage.TransactionFilter{BankAccountID: account.ID, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to list bank transactions: %w", err)
	}
	firstImport := len(existing) == 0

	since := opts.Since
	if since.IsZero() && opts.LookbackDays > 0 {
		since = ledger.Day(s.now()).AddDate(0, 0, -opts.LookbackDays)
	}

	s.logger.Debug("starting import",
		"source", s.source.Name(),
		"bank_account_id", account.ID,
		"since", since.Format("2006-01-02"),
		"dry_run", opts.DryRun)

	feed, err := s.source.FetchTransactions(ctx, account.ID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}

	result := &Result{Source: s.source.Name(), Fetched: len(feed)}
	for _, record := range feed {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		s.importOne(ctx, org, account.ID, record, opts, result)
	}

	if !opts.DryRun {
		if firstImport && result.Imported > 0 {
			s.emit(ctx, events.New(org, events.BankConnected, map[string]any{
				"bank_account_id": account.ID,
				"source":          s.source.Name(),
			}))
		}
		if result.Imported > 0 {
			s.emit(ctx, events.New(org, events.BankTransactionsImported, map[string]any{
				"bank_account_id": account.ID,
				"source":          s.source.Name(),
				"imported":        result.Imported,
				"duplicates":      result.Duplicates,
				"matched":         result.Matching.RuleMatched + result.Matching.FuzzyMatched,
			}))
		}
	}

	s.logger.Info("import complete",
		"source", result.Source,
		"bank_account_id", account.ID,
		"fetched", result.Fetched,
		"imported", result.Imported,
		"duplicates", result.Duplicates,
		"unmatched", result.Matching.Unmatched,
		"errors", len(result.Errors))

	return result, nil
}

func (s *Service) importOne(
	ctx context.Context,
	org ledger.OrganizationContext,
	bankAccountID string,
	record bankfeed.FeedTransaction,
	opts Options,
	result *Result,
) {
	_, err := s.store.FindByExternalID(ctx, org, bankAccountID, record.ID)
	switch {
	case err == nil:
		result.Duplicates++
		return
	case !errors.Is(err, storage.ErrNotFound):
		result.Errors = append(result.Errors, fmt.Errorf("transaction %s: %w", record.ID, err))
		return
	}

	tx := record.ToBankTransaction(org, bankAccountID)
	tx.ID = uuid.NewString()
	tx.CreatedAt = s.now()

	if opts.DryRun {
		result.Imported++
		return
	}

	if err := s.store.SaveBankTransaction(ctx, tx); err != nil {
		if errors.Is(err, storage.ErrDuplicateTransaction) {
			result.Duplicates++
			return
		}
		result.Errors = append(result.Errors, fmt.Errorf("transaction %s: %w", record.ID, err))
		return
	}
	result.Imported++

	if s.matcher == nil || opts.SkipMatching {
		return
	}
	match, err := s.matcher.MatchTransaction(ctx, org, tx)
	if err != nil {
		s.logger.Warn("failed to match imported transaction", "transaction_id", tx.ID, "error", err)
		result.Errors = append(result.Errors, fmt.Errorf("transaction %s: %w", record.ID, err))
	}
	result.Matching.Add(match, err)
}

func (s *Service) emit(ctx context.Context, event events.Event) {
	if err := s.events.Emit(ctx, event); err != nil {
		s.logger.Warn("failed to emit event", "event", event.Name, "error", err)
	}
}
