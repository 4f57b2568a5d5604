// Package reconciliation runs bank reconciliation sessions against the ledger
// store.
//
// A session is started against a bank statement, snapshotting unreconciled
// transactions and outstanding items, and completed with optional
// adjustments. An unbalanced completion is a normal result (status variance),
// not an error. Missing accounts and sessions are typed errors.
//
// Example usage:
//
//	svc := reconciliation.NewService(store, sink, logger, reconciliation.DefaultConfig())
//	session, err := svc.StartReconciliation(ctx, org, "trust-bank", statementDate, balance)
//	result, err := svc.CompleteReconciliation(ctx, org, session.ID, adjustments)
//	if !result.Success {
//		// inspect result.Variance
//	}
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eshaffer321/propledger/internal/adapters/events"
	"github.com/eshaffer321/propledger/internal/domain/discrepancy"
	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/matcher"
	"github.com/eshaffer321/propledger/internal/domain/money"
	"github.com/eshaffer321/propledger/internal/domain/reconcile"
	"github.com/eshaffer321/propledger/internal/infrastructure/storage"
)

// Config holds reconciliation thresholds
type Config struct {
	NSFFee                 decimal.Decimal
	LargeVarianceThreshold decimal.Decimal
	Matcher                matcher.Config
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		NSFFee:                 discrepancy.DefaultNSFFee,
		LargeVarianceThreshold: discrepancy.LargeVarianceThreshold,
		Matcher:                matcher.DefaultConfig(),
	}
}

// Service runs reconciliation sessions
type Service struct {
	store    storage.Repository
	events   events.Sink
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
	onPosted func(ledger.OrganizationContext)
}

// NewService creates a reconciliation service
func NewService(store storage.Repository, sink events.Sink, logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = events.Nop{}
	}
	return &Service{
		store:  store,
		events: sink,
		logger: logger,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// OnPosted registers a callback run after an adjustment entry is created
func (s *Service) OnPosted(fn func(ledger.OrganizationContext)) {
	s.onPosted = fn
}

// StartReconciliation opens an in-progress session for a bank statement.
// The book balance is read from the pre-aggregated account balance.
func (s *Service) StartReconciliation(
	ctx context.Context,
	org ledger.OrganizationContext,
	bankAccountID string,
	statementDate time.Time,
	statementBalance decimal.Decimal,
) (*reconcile.Session, error) {
	if err := reconcile.RequireOrganization(org); err != nil {
		return nil, err
	}
	if _, err := s.bankAccount(ctx, org, bankAccountID); err != nil {
		return nil, err
	}

	txs, items, err := s.outstanding(ctx, org, bankAccountID, statementDate)
	if err != nil {
		return nil, err
	}

	balance, err := s.store.GetAccountBalance(ctx, org, bankAccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to read book balance: %w", err)
	}

	adjusted := reconcile.AdjustedBankBalance(statementBalance, items)
	session := &reconcile.Session{
		ID:                       uuid.NewString(),
		OrganizationID:           org.OrganizationID,
		BankAccountID:            bankAccountID,
		StatementDate:            ledger.Day(statementDate),
		StatementBalance:         money.Ledger(statementBalance),
		BookBalance:              balance.Balance,
		ClearedBalance:           money.Ledger(statementBalance),
		AdjustedBankBalance:      adjusted,
		Variance:                 money.Ledger(money.Diff(adjusted, balance.Balance)),
		UnreconciledTransactions: reconcile.Unreconciled(txs, statementDate),
		OutstandingItems:         items,
		Status:                   reconcile.StatusInProgress,
		StartedAt:                s.now(),
	}

	if err := s.store.CreateSession(ctx, session); err != nil {
		if errors.Is(err, storage.ErrSessionInProgress) {
			return nil, reconcile.SessionInProgress(bankAccountID)
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("reconciliation started",
		"session_id", session.ID,
		"bank_account_id", bankAccountID,
		"statement_balance", money.FormatDisplay(session.StatementBalance),
		"book_balance", money.FormatDisplay(session.BookBalance),
		"unreconciled", len(session.UnreconciledTransactions),
		"outstanding", len(items))

	return session, nil
}

// GetSession loads a session
func (s *Service) GetSession(ctx context.Context, org ledger.OrganizationContext, sessionID string) (*reconcile.Session, error) {
	if err := reconcile.RequireOrganization(org); err != nil {
		return nil, err
	}
	session, err := s.store.GetSession(ctx, org, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, reconcile.SessionNotFound(sessionID)
	}
	return session, err
}

// ListSessions returns sessions for a bank account, newest first
func (s *Service) ListSessions(ctx context.Context, org ledger.OrganizationContext, bankAccountID string) ([]*reconcile.Session, error) {
	if err := reconcile.RequireOrganization(org); err != nil {
		return nil, err
	}
	return s.store.ListSessions(ctx, org, bankAccountID)
}

// CompleteReconciliation applies adjustments and closes the session.
// Everything the adjustments need is loaded before anything is written.
// Adjustment entries are keyed by session and position, so a retry after a
// partial failure never books the same adjustment twice.
func (s *Service) CompleteReconciliation(
	ctx context.Context,
	org ledger.OrganizationContext,
	sessionID string,
	adjustments []reconcile.Adjustment,
) (*reconcile.CompletionResult, error) {
	session, err := s.GetSession(ctx, org, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		return nil, reconcile.SessionClosed(session.ID, session.Status)
	}

	plan, err := s.planAdjustments(ctx, org, session, adjustments)
	if err != nil {
		return nil, err
	}

	booked, err := s.bookedAdjustments(ctx, org, session)
	if err != nil {
		return nil, err
	}

	posted := 0
	for _, draft := range plan.entries {
		if booked[draft.Metadata[metaAdjustment]] {
			s.logger.Info("adjustment already booked",
				"session_id", session.ID,
				"adjustment", draft.Metadata[metaAdjustment])
			continue
		}
		entry, err := s.store.CreateJournalEntry(ctx, org, draft)
		if err != nil {
			return nil, fmt.Errorf("failed to book adjustment: %w", err)
		}
		s.emit(ctx, events.New(org, events.JournalPosted, map[string]any{
			"entry_id":   entry.ID,
			"entry_type": entry.EntryType,
			"session_id": session.ID,
		}))
		posted++
	}
	if posted > 0 && s.onPosted != nil {
		s.onPosted(org)
	}

	for _, tx := range plan.transactions {
		tx.Status = ledger.StatusReconciled
		tx.ReconciliationID = session.ID
		if err := s.store.UpdateBankTransaction(ctx, tx); err != nil {
			return nil, fmt.Errorf("failed to mark transaction %s reconciled: %w", tx.ID, err)
		}
	}

	_, items, err := s.outstanding(ctx, org, session.BankAccountID, session.StatementDate)
	if err != nil {
		return nil, err
	}
	balance, err := s.store.GetAccountBalance(ctx, org, session.BankAccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to read book balance: %w", err)
	}

	session.OutstandingItems = items
	if err := session.Close(reconcile.AdjustedBankBalance(session.ClearedBalance, items), balance.Balance, s.now()); err != nil {
		return nil, err
	}
	if err := s.store.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	result := &reconcile.CompletionResult{
		Success:  session.Status == reconcile.StatusCompleted,
		Variance: session.Variance,
		Session:  session,
	}

	if result.Success {
		s.emit(ctx, events.New(org, events.ReconciliationCompleted, map[string]any{
			"session_id":      session.ID,
			"bank_account_id": session.BankAccountID,
			"variance":        money.FormatLedger(session.Variance),
		}))
		s.logger.Info("reconciliation completed", "session_id", session.ID)
	} else {
		s.logger.Warn("reconciliation closed with variance",
			"session_id", session.ID,
			"variance", money.FormatDisplay(session.Variance))
	}

	return result, nil
}

type adjustmentPlan struct {
	entries      []ledger.JournalEntryDraft
	transactions []*ledger.BankTransaction
}

// planAdjustments resolves accounts and transactions for every adjustment
func (s *Service) planAdjustments(
	ctx context.Context,
	org ledger.OrganizationContext,
	session *reconcile.Session,
	adjustments []reconcile.Adjustment,
) (*adjustmentPlan, error) {
	plan := &adjustmentPlan{}
	var accounts []*ledger.Account

	for i, adj := range adjustments {
		if adj.Type.CreatesEntry() {
			if accounts == nil {
				list, err := s.store.ListAccounts(ctx, org)
				if err != nil {
					return nil, fmt.Errorf("failed to load accounts: %w", err)
				}
				accounts = list
			}
			draft, err := adjustmentDraft(session, adj, accounts)
			if err != nil {
				return nil, fmt.Errorf("adjustment %d: %w", i, err)
			}
			draft.Metadata[metaAdjustment] = fmt.Sprintf("%d:%s:%s", i, adj.Type, money.FormatLedger(adj.Amount.Abs()))
			plan.entries = append(plan.entries, draft)
		}

		if adj.TransactionID != "" {
			tx, err := s.store.GetBankTransaction(ctx, org, adj.TransactionID)
			if err != nil {
				return nil, fmt.Errorf("adjustment %d: %w", i, err)
			}
			plan.transactions = append(plan.transactions, tx)
		}
	}
	return plan, nil
}

// Journal entry metadata keys of adjustment entries
const (
	metaSessionID  = "session_id"
	metaAdjustment = "adjustment"
)

// bookedAdjustments returns the adjustment keys already booked for the session.
// Adjustment entries are dated on the statement date.
func (s *Service) bookedAdjustments(ctx context.Context, org ledger.OrganizationContext, session *reconcile.Session) (map[string]bool, error) {
	entries, err := s.store.ListEntriesInWindow(ctx, org, session.StatementDate, session.StatementDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load adjustment entries: %w", err)
	}
	booked := make(map[string]bool)
	for _, entry := range entries {
		if entry.Metadata[metaSessionID] == session.ID && entry.Metadata[metaAdjustment] != "" {
			booked[entry.Metadata[metaAdjustment]] = true
		}
	}
	return booked, nil
}

// adjustmentDraft books a fee (expense debit, bank credit) or interest
// (bank debit, income credit) against the session's bank account.
func adjustmentDraft(session *reconcile.Session, adj reconcile.Adjustment, accounts []*ledger.Account) (ledger.JournalEntryDraft, error) {
	subtype, entryType := ledger.SubtypeBankFees, ledger.EntryTypeBankFee
	if adj.Type == reconcile.AdjustmentInterest {
		subtype, entryType = ledger.SubtypeInterestIncome, ledger.EntryTypeInterest
	}

	var counter *ledger.Account
	for _, a := range accounts {
		if a.Subtype == subtype {
			counter = a
			break
		}
	}
	if counter == nil {
		return ledger.JournalEntryDraft{}, reconcile.NewError(reconcile.CodeAccountNotFound,
			"no "+subtype+" account for adjustment", map[string]any{"subtype": subtype})
	}

	amount := money.Ledger(adj.Amount.Abs())
	bankLeg := amount
	if adj.Type == reconcile.AdjustmentBankFee {
		bankLeg = amount.Neg()
	}

	description := adj.Description
	if description == "" {
		description = string(adj.Type) + " adjustment"
	}

	return ledger.JournalEntryDraft{
		EntryDate:   session.StatementDate,
		EntryType:   entryType,
		Description: description,
		Postings: []ledger.PostingDraft{
			{AccountID: session.BankAccountID, Amount: bankLeg, Source: ledger.SourceAdjustment},
			{AccountID: counter.ID, Amount: bankLeg.Neg(), Source: ledger.SourceAdjustment},
		},
		Metadata: map[string]string{metaSessionID: session.ID},
	}, nil
}

// outstanding loads the bank account's transactions up to the statement date
// and computes outstanding checks and deposits in transit.
func (s *Service) outstanding(
	ctx context.Context,
	org ledger.OrganizationContext,
	bankAccountID string,
	statementDate time.Time,
) ([]ledger.BankTransaction, []reconcile.OutstandingItem, error) {
	txs, err := s.store.ListBankTransactions(ctx, org, storage.TransactionFilter{
		BankAccountID: bankAccountID,
		Before:        statementDate,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list bank transactions: %w", err)
	}

	postings, err := s.store.ListPostings(ctx, org, storage.PostingFilter{
		AccountIDs: []string{bankAccountID},
		Source:     ledger.SourcePayment,
		End:        statementDate,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list postings: %w", err)
	}

	items := reconcile.OutstandingChecks(txs)
	items = append(items, reconcile.DepositsInTransit(postings, txs)...)
	return txs, items, nil
}

func (s *Service) bankAccount(ctx context.Context, org ledger.OrganizationContext, bankAccountID string) (*ledger.Account, error) {
	account, err := s.store.GetAccount(ctx, org, bankAccountID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && !account.BankAccount) {
		return nil, reconcile.AccountNotFound(bankAccountID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account %s: %w", bankAccountID, err)
	}
	return account, nil
}

func (s *Service) emit(ctx context.Context, event events.Event) {
	if err := s.events.Emit(ctx, event); err != nil {
		s.logger.Warn("failed to emit event", "event", event.Name, "error", err)
	}
}
