package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/money"
	"github.com/eshaffer321/propledger/internal/domain/reconcile"
)

// sessionSnapshot holds the session's point-in-time lists.
type sessionSnapshot struct {
	UnreconciledTransactions []ledger.BankTransaction    `json:"unreconciled_transactions"`
	OutstandingItems         []reconcile.OutstandingItem `json:"outstanding_items"`
}

const sessionColumns = `
	id, organization_id, bank_account_id, statement_date, statement_balance, book_balance,
	cleared_balance, adjusted_bank_balance, variance, status, snapshot_json, started_at, completed_at`

// CreateSession inserts a new in-progress session
func (s *Storage) CreateSession(ctx context.Context, session *reconcile.Session) error {
	snapshotJSON, err := encodeSnapshot(session)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
	INSERT INTO reconciliation_sessions (`+sessionColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		session.ID,
		session.OrganizationID,
		session.BankAccountID,
		utc(session.StatementDate),
		money.FormatLedger(session.StatementBalance),
		money.FormatLedger(session.BookBalance),
		money.FormatLedger(session.ClearedBalance),
		money.FormatLedger(session.AdjustedBankBalance),
		money.FormatLedger(session.Variance),
		string(session.Status),
		snapshotJSON,
		utc(session.StartedAt),
		nullTime(session.CompletedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("bank account %s: %w", session.BankAccountID, ErrSessionInProgress)
	}
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// UpdateSession persists a session's state
func (s *Storage) UpdateSession(ctx context.Context, session *reconcile.Session) error {
	snapshotJSON, err := encodeSnapshot(session)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
	UPDATE reconciliation_sessions SET
		book_balance = ?, cleared_balance = ?, adjusted_bank_balance = ?, variance = ?,
		status = ?, snapshot_json = ?, completed_at = ?
	WHERE organization_id = ? AND id = ?
	`,
		money.FormatLedger(session.BookBalance),
		money.FormatLedger(session.ClearedBalance),
		money.FormatLedger(session.AdjustedBankBalance),
		money.FormatLedger(session.Variance),
		string(session.Status),
		snapshotJSON,
		nullTime(session.CompletedAt),
		session.OrganizationID,
		session.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", session.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", session.ID, ErrNotFound)
	}
	return nil
}

// GetSession retrieves a session by ID
func (s *Storage) GetSession(ctx context.Context, org ledger.OrganizationContext, sessionID string) (*reconcile.Session, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT `+sessionColumns+`
	FROM reconciliation_sessions WHERE organization_id = ? AND id = ?
	`, org.OrganizationID, sessionID)

	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return session, err
}

// ListSessions returns sessions for a bank account, newest first
func (s *Storage) ListSessions(ctx context.Context, org ledger.OrganizationContext, bankAccountID string) ([]*reconcile.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT `+sessionColumns+`
	FROM reconciliation_sessions
	WHERE organization_id = ? AND bank_account_id = ?
	ORDER BY started_at DESC
	`, org.OrganizationID, bankAccountID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sessions []*reconcile.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func encodeSnapshot(session *reconcile.Session) (string, error) {
	data, err := json.Marshal(sessionSnapshot{
		UnreconciledTransactions: session.UnreconciledTransactions,
		OutstandingItems:         session.OutstandingItems,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode session snapshot: %w", err)
	}
	return string(data), nil
}

func scanSession(row scanner) (*reconcile.Session, error) {
	var (
		session      reconcile.Session
		status       string
		snapshotJSON sql.NullString
		completedAt  sql.NullTime
	)
	err := row.Scan(
		&session.ID,
		&session.OrganizationID,
		&session.BankAccountID,
		&session.StatementDate,
		&session.StatementBalance,
		&session.BookBalance,
		&session.ClearedBalance,
		&session.AdjustedBankBalance,
		&session.Variance,
		&status,
		&snapshotJSON,
		&session.StartedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	session.Status = reconcile.Status(status)
	session.StatementDate = session.StatementDate.UTC()
	session.StartedAt = session.StartedAt.UTC()
	session.CompletedAt = timePtr(completedAt)

	if snapshotJSON.Valid && snapshotJSON.String != "" {
		var snap sessionSnapshot
		if err := json.Unmarshal([]byte(snapshotJSON.String), &snap); err != nil {
			return nil, fmt.Errorf("session %s: invalid snapshot: %w", session.ID, err)
		}
		session.UnreconciledTransactions = snap.UnreconciledTransactions
		session.OutstandingItems = snap.OutstandingItems
	}
	return &session, nil
}
