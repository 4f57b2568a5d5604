package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/propledger/internal/domain/discrepancy"
	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/reconcile"
	"github.com/eshaffer321/propledger/internal/infrastructure/storage"
)

// PerformTrustOperatingReconciliation reads the trust and operating bank
// balances separately and checks postings for commingled funds.
// A zero asOf reads the current balances.
func (s *Service) PerformTrustOperatingReconciliation(
	ctx context.Context,
	org ledger.OrganizationContext,
	asOf time.Time,
) (*reconcile.TrustOperatingResult, error) {
	if err := reconcile.RequireOrganization(org); err != nil {
		return nil, err
	}

	trust, err := s.subtypeBalance(ctx, org, ledger.SubtypeTrustBank, asOf)
	if err != nil {
		return nil, err
	}
	operating, err := s.subtypeBalance(ctx, org, ledger.SubtypeOperatingBank, asOf)
	if err != nil {
		return nil, err
	}

	accounts, err := s.store.ListAccounts(ctx, org)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	buckets := make(map[string]ledger.FundBucket, len(accounts))
	for _, a := range accounts {
		buckets[a.ID] = a.FundBucket
	}

	postings, err := s.store.ListPostings(ctx, org, storage.PostingFilter{End: asOf})
	if err != nil {
		return nil, fmt.Errorf("failed to list postings: %w", err)
	}

	result := reconcile.NewTrustOperatingResult(trust, operating, postings, buckets)
	if result.Commingled {
		s.logger.Warn("possible commingling of trust and operating funds",
			"findings", len(result.Discrepancies))
	}
	return result, nil
}

func (s *Service) subtypeBalance(ctx context.Context, org ledger.OrganizationContext, subtype string, asOf time.Time) (decimal.Decimal, error) {
	if asOf.IsZero() {
		balance, err := s.store.GetSubtypeBalance(ctx, org, subtype)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to read %s balance: %w", subtype, err)
		}
		return balance.Balance, nil
	}

	rows, err := s.store.GetTrialBalanceAsOf(ctx, org, asOf)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read trial balance: %w", err)
	}
	total := decimal.Zero
	for _, row := range rows {
		if row.Subtype == subtype {
			total = total.Add(row.Debit).Sub(row.Credit)
		}
	}
	return total, nil
}

// Perform3WayReconciliation compares the bank feed, the bank account's
// pre-aggregated book balance and tenant-portal balances keyed by tenant.
func (s *Service) Perform3WayReconciliation(
	ctx context.Context,
	org ledger.OrganizationContext,
	bankAccountID string,
	portalBalances map[string]decimal.Decimal,
) (*reconcile.Result, error) {
	if err := reconcile.RequireOrganization(org); err != nil {
		return nil, err
	}
	snapshot, err := s.snapshot(ctx, org, bankAccountID)
	if err != nil {
		return nil, err
	}
	for tenantID, balance := range portalBalances {
		snapshot.SetPortalBalance(tenantID, balance)
	}

	result := snapshot.PerformReconciliation()
	s.logger.Info("3-way reconciliation",
		"bank_account_id", bankAccountID,
		"reconciled", result.IsReconciled,
		"discrepancies", len(result.Discrepancies))
	return result, nil
}

func (s *Service) snapshot(ctx context.Context, org ledger.OrganizationContext, bankAccountID string) (*reconcile.Snapshot, error) {
	if _, err := s.bankAccount(ctx, org, bankAccountID); err != nil {
		return nil, err
	}
	txs, err := s.store.ListBankTransactions(ctx, org, storage.TransactionFilter{BankAccountID: bankAccountID})
	if err != nil {
		return nil, fmt.Errorf("failed to list bank transactions: %w", err)
	}
	balance, err := s.store.GetAccountBalance(ctx, org, bankAccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to read book balance: %w", err)
	}

	snapshot := reconcile.NewSnapshot(reconcile.SnapshotConfig{
		NSFFee:                 s.cfg.NSFFee,
		LargeVarianceThreshold: s.cfg.LargeVarianceThreshold,
		Matcher:                s.cfg.Matcher,
		Now:                    s.now,
	})
	snapshot.AddTransactions(txs...)
	snapshot.SetLedgerBalance(balance.Balance)
	return snapshot, nil
}

// VoidCheck stores an offsetting credit for a check. It returns nil when the
// check is unknown or was already voided.
func (s *Service) VoidCheck(
	ctx context.Context,
	org ledger.OrganizationContext,
	bankAccountID, checkNumber string,
) (*ledger.BankTransaction, error) {
	txs, err := s.accountTransactions(ctx, org, bankAccountID)
	if err != nil {
		return nil, err
	}

	offset, ok := discrepancy.VoidCheck(txs, checkNumber, s.now())
	if !ok {
		s.logger.Info("no check to void", "bank_account_id", bankAccountID, "check_number", checkNumber)
		return nil, nil
	}
	if err := s.store.SaveBankTransaction(ctx, offset); err != nil {
		return nil, fmt.Errorf("failed to save void offset: %w", err)
	}

	s.logger.Info("check voided", "check_number", checkNumber, "offset_id", offset.ID)
	return offset, nil
}

// ProcessNSF stores the reversal and fee for a returned payment. Both flags of
// the result are false when the reference is unknown or already returned.
func (s *Service) ProcessNSF(
	ctx context.Context,
	org ledger.OrganizationContext,
	bankAccountID, reference string,
) (*discrepancy.NSFResult, error) {
	txs, err := s.accountTransactions(ctx, org, bankAccountID)
	if err != nil {
		return nil, err
	}

	result := discrepancy.ProcessNSF(txs, reference, s.cfg.NSFFee, s.now())
	if !result.Reversed {
		return result, nil
	}
	for _, tx := range []*ledger.BankTransaction{result.Reversal, result.Fee} {
		if err := s.store.SaveBankTransaction(ctx, tx); err != nil {
			return nil, fmt.Errorf("failed to save NSF transaction: %w", err)
		}
	}

	s.logger.Info("payment returned NSF", "reference", reference, "fee", result.Fee.Amount.Abs().StringFixed(2))
	return result, nil
}

func (s *Service) accountTransactions(ctx context.Context, org ledger.OrganizationContext, bankAccountID string) ([]ledger.BankTransaction, error) {
	if err := reconcile.RequireOrganization(org); err != nil {
		return nil, err
	}
	if _, err := s.bankAccount(ctx, org, bankAccountID); err != nil {
		return nil, err
	}
	txs, err := s.store.ListBankTransactions(ctx, org, storage.TransactionFilter{BankAccountID: bankAccountID})
	if err != nil {
		return nil, fmt.Errorf("failed to list bank transactions: %w", err)
	}
	return txs, nil
}
