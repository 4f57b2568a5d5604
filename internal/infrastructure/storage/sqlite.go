package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/eshaffer321/propledger/internal/domain/ledger"
)

// Storage provides SQLite database access for the ledger, bank feed,
// rules and reconciliation sessions. It implements the Repository interface.
type Storage struct {
	db  *sql.DB
	now func() time.Time
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// NewStorage creates a new storage instance with SQLite database
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// A single connection serializes writers; SQLite locks the whole file anyway.
	db.SetMaxOpenConns(1)

	// Enable foreign key constraints (SQLite-specific)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Storage{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// SchemaVersion returns the applied migration version.
func (s *Storage) SchemaVersion() (int64, error) {
	return schemaVersion(s.db)
}

// Ping verifies the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveAccount creates or updates an account. Updating an id owned by another
// organization returns ErrNotFound.
func (s *Storage) SaveAccount(ctx context.Context, account *ledger.Account) error {
	result, err := s.db.ExecContext(ctx, `
	INSERT INTO accounts (id, organization_id, name, type, subtype, fund_bucket, bank_account, property_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		type = excluded.type,
		subtype = excluded.subtype,
		fund_bucket = excluded.fund_bucket,
		bank_account = excluded.bank_account,
		property_id = excluded.property_id
	WHERE accounts.organization_id = excluded.organization_id
	`,
		account.ID,
		account.OrganizationID,
		account.Name,
		string(account.Type),
		account.Subtype,
		string(account.FundBucket),
		account.BankAccount,
		account.PropertyID,
	)
	if err != nil {
		return fmt.Errorf("failed to save account %s: %w", account.ID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return accountNotFound(account.ID)
	}
	return nil
}

// GetAccount retrieves an account by ID
func (s *Storage) GetAccount(ctx context.Context, org ledger.OrganizationContext, accountID string) (*ledger.Account, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, organization_id, name, type, subtype, fund_bucket, bank_account, property_id
	FROM accounts WHERE organization_id = ? AND id = ?
	`, org.OrganizationID, accountID)

	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	return account, err
}

// ListAccounts returns every account of the organization
func (s *Storage) ListAccounts(ctx context.Context, org ledger.OrganizationContext) ([]*ledger.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, organization_id, name, type, subtype, fund_bucket, bank_account, property_id
	FROM accounts WHERE organization_id = ? ORDER BY id
	`, org.OrganizationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var accounts []*ledger.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*ledger.Account, error) {
	var (
		a           ledger.Account
		accountType string
		bucket      string
	)
	if err := row.Scan(&a.ID, &a.OrganizationID, &a.Name, &accountType, &a.Subtype, &bucket, &a.BankAccount, &a.PropertyID); err != nil {
		return nil, err
	}
	a.Type = ledger.AccountType(accountType)
	a.FundBucket = ledger.FundBucket(bucket)
	return &a, nil
}

// isUniqueViolation reports whether err is a SQLite unique constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func utc(t time.Time) time.Time {
	return t.UTC()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
