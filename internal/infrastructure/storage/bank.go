package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/money"
)

const bankTransactionColumns = `
	id, organization_id, bank_account_id, external_id, txn_date, amount, direction,
	description, merchant_name, category, reference, check_number, cleared, status,
	matched_entry_id, reconciliation_id, created_at`

// SaveBankTransaction inserts a new transaction
func (s *Storage) SaveBankTransaction(ctx context.Context, tx *ledger.BankTransaction) error {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = s.now().UTC()
	}
	if tx.Status == "" {
		tx.Status = ledger.StatusUnmatched
	}

	_, err := s.db.ExecContext(ctx, `
	INSERT INTO bank_transactions (`+bankTransactionColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		tx.ID,
		tx.OrganizationID,
		tx.BankAccountID,
		tx.ExternalID,
		utc(tx.Date),
		money.FormatLedger(tx.Amount),
		string(tx.Direction),
		tx.Description,
		tx.MerchantName,
		tx.Category,
		tx.Reference,
		tx.CheckNumber,
		tx.Cleared,
		string(tx.Status),
		tx.MatchedEntryID,
		tx.ReconciliationID,
		utc(tx.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("bank transaction %s: %w", tx.ID, ErrDuplicateTransaction)
	}
	if err != nil {
		return fmt.Errorf("failed to save bank transaction %s: %w", tx.ID, err)
	}
	return nil
}

// UpdateBankTransaction updates the mutable fields of a transaction
func (s *Storage) UpdateBankTransaction(ctx context.Context, tx *ledger.BankTransaction) error {
	result, err := s.db.ExecContext(ctx, `
	UPDATE bank_transactions
	SET cleared = ?, status = ?, matched_entry_id = ?, reconciliation_id = ?
	WHERE organization_id = ? AND id = ?
	`, tx.Cleared, string(tx.Status), tx.MatchedEntryID, tx.ReconciliationID, tx.OrganizationID, tx.ID)
	if err != nil {
		return fmt.Errorf("failed to update bank transaction %s: %w", tx.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("bank transaction %s: %w", tx.ID, ErrNotFound)
	}
	return nil
}

// GetBankTransaction retrieves a transaction by ID
func (s *Storage) GetBankTransaction(ctx context.Context, org ledger.OrganizationContext, id string) (*ledger.BankTransaction, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT `+bankTransactionColumns+`
	FROM bank_transactions WHERE organization_id = ? AND id = ?
	`, org.OrganizationID, id)

	tx, err := scanBankTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bank transaction %s: %w", id, ErrNotFound)
	}
	return tx, err
}

// FindByExternalID looks up a feed transaction
func (s *Storage) FindByExternalID(ctx context.Context, org ledger.OrganizationContext, bankAccountID, externalID string) (*ledger.BankTransaction, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT `+bankTransactionColumns+`
	FROM bank_transactions
	WHERE organization_id = ? AND bank_account_id = ? AND external_id = ?
	`, org.OrganizationID, bankAccountID, externalID)

	tx, err := scanBankTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("external transaction %s: %w", externalID, ErrNotFound)
	}
	return tx, err
}

// ListBankTransactions returns transactions matching the filter, oldest first
func (s *Storage) ListBankTransactions(ctx context.Context, org ledger.OrganizationContext, filter TransactionFilter) ([]ledger.BankTransaction, error) {
	var (
		where = []string{"organization_id = ?"}
		args  = []any{org.OrganizationID}
	)

	if filter.BankAccountID != "" {
		where = append(where, "bank_account_id = ?")
		args = append(args, filter.BankAccountID)
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}
	if !filter.Before.IsZero() {
		where = append(where, "txn_date < ?")
		args = append(args, utc(ledger.Day(filter.Before).AddDate(0, 0, 1)))
	}

	query := `SELECT ` + bankTransactionColumns + `
	FROM bank_transactions
	WHERE ` + strings.Join(where, " AND ") + `
	ORDER BY txn_date, created_at, id`

	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var txs []ledger.BankTransaction
	for rows.Next() {
		tx, err := scanBankTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

func scanBankTransaction(row scanner) (*ledger.BankTransaction, error) {
	var (
		tx        ledger.BankTransaction
		direction string
		status    string
	)
	err := row.Scan(
		&tx.ID,
		&tx.OrganizationID,
		&tx.BankAccountID,
		&tx.ExternalID,
		&tx.Date,
		&tx.Amount,
		&direction,
		&tx.Description,
		&tx.MerchantName,
		&tx.Category,
		&tx.Reference,
		&tx.CheckNumber,
		&tx.Cleared,
		&status,
		&tx.MatchedEntryID,
		&tx.ReconciliationID,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	tx.Date = tx.Date.UTC()
	tx.CreatedAt = tx.CreatedAt.UTC()
	tx.Direction = ledger.Direction(direction)
	tx.Status = ledger.TransactionStatus(status)
	return &tx, nil
}
