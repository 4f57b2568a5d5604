package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/money"
)

// CreateJournalEntry writes the entry, its postings and the balance
// aggregates in one transaction.
func (s *Storage) CreateJournalEntry(ctx context.Context, org ledger.OrganizationContext, draft ledger.JournalEntryDraft) (*ledger.JournalEntry, error) {
	accounts, err := s.accountMap(ctx, org)
	if err != nil {
		return nil, err
	}

	entry, err := newJournalEntry(org, draft, accounts, s.now())
	if err != nil {
		return nil, err
	}

	metadataJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entry metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO journal_entries (id, organization_id, entry_date, entry_type, description, metadata_json, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.OrganizationID, entry.EntryDate, entry.EntryType, entry.Description, string(metadataJSON), entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert journal entry: %w", err)
	}

	for i, p := range entry.Postings {
		_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_postings
		(id, entry_id, organization_id, seq, posting_date, amount, account_id,
		 reference, source, fund_bucket, property_id, owner_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			p.ID, entry.ID, entry.OrganizationID, i, p.Date, money.FormatLedger(p.Amount), p.AccountID,
			p.Reference, string(p.Source), string(p.FundBucket), p.PropertyID, p.OwnerID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert posting: %w", err)
		}

		if err := s.applyBalance(ctx, tx, entry.OrganizationID, p, entry.CreatedAt); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit journal entry: %w", err)
	}

	return entry, nil
}

// applyBalance adds a posting to account_balances and account_activity_daily.
func (s *Storage) applyBalance(ctx context.Context, tx *sql.Tx, orgID string, p ledger.LedgerPosting, at time.Time) error {
	debit, credit := sides(p.Amount)

	var curDebit, curCredit decimal.Decimal
	err := tx.QueryRowContext(ctx, `
	SELECT debit, credit FROM account_balances WHERE organization_id = ? AND account_id = ?
	`, orgID, p.AccountID).Scan(&curDebit, &curCredit)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read account balance: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO account_balances (organization_id, account_id, debit, credit, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(organization_id, account_id) DO UPDATE SET
		debit = excluded.debit,
		credit = excluded.credit,
		updated_at = excluded.updated_at
	`, orgID, p.AccountID,
		money.FormatLedger(curDebit.Add(debit)), money.FormatLedger(curCredit.Add(credit)), at)
	if err != nil {
		return fmt.Errorf("failed to update account balance: %w", err)
	}

	day := dayKey(p.Date)
	var dayDebit, dayCredit decimal.Decimal
	err = tx.QueryRowContext(ctx, `
	SELECT debit, credit FROM account_activity_daily
	WHERE organization_id = ? AND account_id = ? AND property_id = ? AND owner_id = ? AND day = ?
	`, orgID, p.AccountID, p.PropertyID, p.OwnerID, day).Scan(&dayDebit, &dayCredit)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read daily activity: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO account_activity_daily (organization_id, account_id, property_id, owner_id, day, debit, credit)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(organization_id, account_id, property_id, owner_id, day) DO UPDATE SET
		debit = excluded.debit,
		credit = excluded.credit
	`, orgID, p.AccountID, p.PropertyID, p.OwnerID, day,
		money.FormatLedger(dayDebit.Add(debit)), money.FormatLedger(dayCredit.Add(credit)))
	if err != nil {
		return fmt.Errorf("failed to update daily activity: %w", err)
	}

	return nil
}

// GetJournalEntry retrieves an entry with its postings
func (s *Storage) GetJournalEntry(ctx context.Context, org ledger.OrganizationContext, entryID string) (*ledger.JournalEntry, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, organization_id, entry_date, entry_type, description, metadata_json, created_at
	FROM journal_entries WHERE organization_id = ? AND id = ?
	`, org.OrganizationID, entryID)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("journal entry %s: %w", entryID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	entry.Postings, err = s.ListPostings(ctx, org, PostingFilter{entryID: entryID})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ListEntriesInWindow returns entries dated on the calendar days from..to
// inclusive, oldest first
func (s *Storage) ListEntriesInWindow(ctx context.Context, org ledger.OrganizationContext, from, to time.Time) ([]*ledger.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, organization_id, entry_date, entry_type, description, metadata_json, created_at
	FROM journal_entries
	WHERE organization_id = ? AND entry_date >= ? AND entry_date < ?
	ORDER BY entry_date, created_at
	`, org.OrganizationID, utc(ledger.Day(from)), utc(ledger.Day(to).AddDate(0, 0, 1)))
	if err != nil {
		return nil, err
	}

	var entries []*ledger.JournalEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for _, entry := range entries {
		entry.Postings, err = s.ListPostings(ctx, org, PostingFilter{entryID: entry.ID})
		if err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func scanEntry(row scanner) (*ledger.JournalEntry, error) {
	var (
		e            ledger.JournalEntry
		metadataJSON sql.NullString
	)
	if err := row.Scan(&e.ID, &e.OrganizationID, &e.EntryDate, &e.EntryType, &e.Description, &metadataJSON, &e.CreatedAt); err != nil {
		return nil, err
	}
	// Metadata is informational; a malformed blob must not hide the entry.
	if metadataJSON.Valid && metadataJSON.String != "" {
		_ = json.Unmarshal([]byte(metadataJSON.String), &e.Metadata)
	}
	e.EntryDate = e.EntryDate.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

// ListPostings returns postings matching the filter, oldest first
func (s *Storage) ListPostings(ctx context.Context, org ledger.OrganizationContext, filter PostingFilter) ([]ledger.LedgerPosting, error) {
	var (
		where = []string{"p.organization_id = ?"}
		args  = []any{org.OrganizationID}
	)

	if filter.entryID != "" {
		where = append(where, "p.entry_id = ?")
		args = append(args, filter.entryID)
	}
	if len(filter.AccountIDs) > 0 {
		where = append(where, "p.account_id IN ("+placeholders(len(filter.AccountIDs))+")")
		for _, id := range filter.AccountIDs {
			args = append(args, id)
		}
	}
	if len(filter.Subtypes) > 0 {
		where = append(where, "a.subtype IN ("+placeholders(len(filter.Subtypes))+")")
		for _, st := range filter.Subtypes {
			args = append(args, st)
		}
	}
	if filter.FundBucket != ledger.BucketNone {
		where = append(where, "p.fund_bucket = ?")
		args = append(args, string(filter.FundBucket))
	}
	if filter.Source != "" {
		where = append(where, "p.source = ?")
		args = append(args, string(filter.Source))
	}
	if filter.Reference != "" {
		where = append(where, "p.reference = ?")
		args = append(args, filter.Reference)
	}
	if !filter.Start.IsZero() {
		where = append(where, "p.posting_date >= ?")
		args = append(args, utc(ledger.Day(filter.Start)))
	}
	if !filter.End.IsZero() {
		where = append(where, "p.posting_date < ?")
		args = append(args, utc(ledger.Day(filter.End).AddDate(0, 0, 1)))
	}

	query := `
	SELECT p.id, p.entry_id, p.posting_date, p.amount, p.account_id, a.name,
	       p.reference, p.source, p.fund_bucket, p.property_id, p.owner_id
	FROM ledger_postings p
	JOIN accounts a ON a.id = p.account_id
	WHERE ` + strings.Join(where, " AND ") + `
	ORDER BY p.posting_date, p.entry_id, p.seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var postings []ledger.LedgerPosting
	for rows.Next() {
		var (
			p      ledger.LedgerPosting
			source string
			bucket string
		)
		if err := rows.Scan(&p.ID, &p.EntryID, &p.Date, &p.Amount, &p.AccountID, &p.AccountName,
			&p.Reference, &source, &bucket, &p.PropertyID, &p.OwnerID); err != nil {
			return nil, err
		}
		p.Date = p.Date.UTC()
		p.Source = ledger.SourceCategory(source)
		p.FundBucket = ledger.FundBucket(bucket)
		postings = append(postings, p)
	}
	return postings, rows.Err()
}

// GetAccountBalance reads one account's running balance
func (s *Storage) GetAccountBalance(ctx context.Context, org ledger.OrganizationContext, accountID string) (*ledger.AccountBalance, error) {
	balances, err := s.readBalances(ctx, org, "a.id = ?", accountID)
	if err != nil {
		return nil, err
	}
	if len(balances) == 0 {
		return nil, accountNotFound(accountID)
	}
	return &balances[0], nil
}

// GetSubtypeBalance reads the combined running balance of every account with the subtype
func (s *Storage) GetSubtypeBalance(ctx context.Context, org ledger.OrganizationContext, subtype string) (*ledger.AccountBalance, error) {
	balances, err := s.readBalances(ctx, org, "a.subtype = ?", subtype)
	if err != nil {
		return nil, err
	}
	return combineBalances(org, subtype, balances), nil
}

func (s *Storage) readBalances(ctx context.Context, org ledger.OrganizationContext, cond string, arg any) ([]ledger.AccountBalance, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT a.id, a.name, a.type, a.subtype, a.fund_bucket,
	       COALESCE(b.debit, '0'), COALESCE(b.credit, '0'), b.updated_at
	FROM accounts a
	LEFT JOIN account_balances b ON b.organization_id = a.organization_id AND b.account_id = a.id
	WHERE a.organization_id = ? AND `+cond+`
	ORDER BY a.id
	`, org.OrganizationID, arg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var balances []ledger.AccountBalance
	for rows.Next() {
		var (
			b           ledger.AccountBalance
			accountType string
			bucket      string
			updatedAt   sql.NullTime
		)
		if err := rows.Scan(&b.AccountID, &b.AccountName, &accountType, &b.Subtype, &bucket,
			&b.Debit, &b.Credit, &updatedAt); err != nil {
			return nil, err
		}
		b.OrganizationID = org.OrganizationID
		b.AccountType = ledger.AccountType(accountType)
		b.FundBucket = ledger.FundBucket(bucket)
		b.Balance = money.Ledger(b.Debit.Sub(b.Credit))
		if updatedAt.Valid {
			b.UpdatedAt = updatedAt.Time.UTC()
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

func combineBalances(org ledger.OrganizationContext, subtype string, balances []ledger.AccountBalance) *ledger.AccountBalance {
	combined := &ledger.AccountBalance{
		OrganizationID: org.OrganizationID,
		Subtype:        subtype,
		Debit:          decimal.Zero,
		Credit:         decimal.Zero,
	}
	for _, b := range balances {
		combined.Debit = combined.Debit.Add(b.Debit)
		combined.Credit = combined.Credit.Add(b.Credit)
		combined.AccountType = b.AccountType
		combined.FundBucket = b.FundBucket
		if b.UpdatedAt.After(combined.UpdatedAt) {
			combined.UpdatedAt = b.UpdatedAt
		}
	}
	if len(balances) == 1 {
		combined.AccountID = balances[0].AccountID
		combined.AccountName = balances[0].AccountName
	}
	combined.Balance = money.Ledger(combined.Debit.Sub(combined.Credit))
	return combined
}

// GetTrialBalanceAsOf returns debit/credit totals per account as of a date
func (s *Storage) GetTrialBalanceAsOf(ctx context.Context, org ledger.OrganizationContext, asOf time.Time) ([]ledger.TrialBalanceRow, error) {
	totals, accounts, err := s.readActivity(ctx, org, ActivityFilter{End: asOf}, "")
	if err != nil {
		return nil, err
	}
	return totals.trialBalance(accounts), nil
}

// GetAccountActivity returns one account's net change over [start, end]
func (s *Storage) GetAccountActivity(ctx context.Context, org ledger.OrganizationContext, accountID string, start, end time.Time) (*ledger.AccountActivity, error) {
	account, err := s.GetAccount(ctx, org, accountID)
	if err != nil {
		return nil, err
	}

	totals, accounts, err := s.readActivity(ctx, org, ActivityFilter{Start: start, End: end}, accountID)
	if err != nil {
		return nil, err
	}

	activity := totals.activity(accounts)
	if len(activity) == 0 {
		return &ledger.AccountActivity{
			AccountID:   account.ID,
			AccountName: account.Name,
			AccountType: account.Type,
			Subtype:     account.Subtype,
			Debit:       decimal.Zero,
			Credit:      decimal.Zero,
			NetChange:   decimal.Zero,
		}, nil
	}
	return &activity[0], nil
}

// ListAccountActivity returns per-account activity over a range, optionally scoped
func (s *Storage) ListAccountActivity(ctx context.Context, org ledger.OrganizationContext, filter ActivityFilter) ([]ledger.AccountActivity, error) {
	totals, accounts, err := s.readActivity(ctx, org, filter, "")
	if err != nil {
		return nil, err
	}
	return totals.activity(accounts), nil
}

// readActivity folds daily aggregate rows into per-account totals.
func (s *Storage) readActivity(ctx context.Context, org ledger.OrganizationContext, filter ActivityFilter, accountID string) (*activityTotals, map[string]*ledger.Account, error) {
	accounts, err := s.accountMap(ctx, org)
	if err != nil {
		return nil, nil, err
	}

	var (
		where = []string{"organization_id = ?"}
		args  = []any{org.OrganizationID}
	)
	start, end := rangeKeys(filter.Start, filter.End)
	if start != "" {
		where = append(where, "day >= ?")
		args = append(args, start)
	}
	if end != "" {
		where = append(where, "day <= ?")
		args = append(args, end)
	}
	if filter.PropertyID != "" {
		where = append(where, "property_id = ?")
		args = append(args, filter.PropertyID)
	}
	if filter.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if accountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, accountID)
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT account_id, debit, credit FROM account_activity_daily
	WHERE `+strings.Join(where, " AND ")+`
	ORDER BY account_id, day
	`, args...)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = rows.Close() }()

	totals := newActivityTotals()
	for rows.Next() {
		var (
			id            string
			debit, credit decimal.Decimal
		)
		if err := rows.Scan(&id, &debit, &credit); err != nil {
			return nil, nil, err
		}
		totals.add(id, debit, credit)
	}
	return totals, accounts, rows.Err()
}

func (s *Storage) accountMap(ctx context.Context, org ledger.OrganizationContext) (map[string]*ledger.Account, error) {
	list, err := s.ListAccounts(ctx, org)
	if err != nil {
		return nil, err
	}
	accounts := make(map[string]*ledger.Account, len(list))
	for _, a := range list {
		accounts[a.ID] = a
	}
	return accounts, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
