package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/money"
	"github.com/eshaffer321/propledger/internal/domain/reconcile"
	"github.com/eshaffer321/propledger/internal/infrastructure/storage"
)

var (
	org        = ledger.OrganizationContext{OrganizationID: "org-1"}
	monthStart = time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	monthEnd   = time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC)
)

func day(n int) time.Time {
	return monthStart.AddDate(0, 0, n-1)
}

type scope struct {
	property string
	owner    string
}

func post(t *testing.T, repo storage.Repository, date time.Time, debit, credit, amount string, sc scope) {
	t.Helper()
	amt := money.MustParse(amount)
	_, err := repo.CreateJournalEntry(context.Background(), org, ledger.JournalEntryDraft{
		EntryDate:   date,
		EntryType:   "test",
		Description: debit + " / " + credit,
		Postings: []ledger.PostingDraft{
			{AccountID: debit, Amount: amt, PropertyID: sc.property, OwnerID: sc.owner},
			{AccountID: credit, Amount: amt.Neg(), PropertyID: sc.property, OwnerID: sc.owner},
		},
	})
	require.NoError(t, err)
}

// setupLedger books one month of activity for two properties:
//
//	trust 1000 (deposit), operating 2500, revenue 2700, expenses 300,
//	owner o-1 contributed 500 and drew 400.
func setupLedger(t *testing.T) *storage.MockRepository {
	t.Helper()
	repo := storage.NewMockRepository()
	for _, a := range []*ledger.Account{
		{ID: "trust-bank", Name: "Trust Checking", Type: ledger.AccountAsset, Subtype: ledger.SubtypeTrustBank, FundBucket: ledger.BucketTrust, BankAccount: true},
		{ID: "operating-bank", Name: "Operating Checking", Type: ledger.AccountAsset, Subtype: ledger.SubtypeOperatingBank, FundBucket: ledger.BucketOperating, BankAccount: true},
		{ID: "deposits", Name: "Security Deposits", Type: ledger.AccountLiability, Subtype: ledger.SubtypeSecurityDeposits, FundBucket: ledger.BucketTrust},
		{ID: "prepaid", Name: "Prepaid Rent", Type: ledger.AccountLiability, Subtype: ledger.SubtypePrepaidRent, FundBucket: ledger.BucketTrust},
		{ID: "rent-income", Name: "Rental Income", Type: ledger.AccountRevenue, Subtype: "rental_income"},
		{ID: "repairs", Name: "Repairs", Type: ledger.AccountExpense, Subtype: "repairs"},
		{ID: "owner-equity", Name: "Owner Contributions", Type: ledger.AccountEquity, Subtype: ledger.SubtypeOwnerContribution},
		{ID: "owner-draws", Name: "Owner Distributions", Type: ledger.AccountEquity, Subtype: ledger.SubtypeOwnerDistribution},
	} {
		a.OrganizationID = org.OrganizationID
		require.NoError(t, repo.SaveAccount(context.Background(), a))
	}

	p1 := scope{property: "p-1", owner: "o-1"}
	post(t, repo, day(1), "trust-bank", "deposits", "1000.00", scope{property: "p-1"})
	post(t, repo, day(2), "operating-bank", "rent-income", "2000.00", p1)
	post(t, repo, day(3), "repairs", "operating-bank", "300.00", p1)
	post(t, repo, day(4), "operating-bank", "owner-equity", "500.00", scope{owner: "o-1"})
	post(t, repo, day(5), "owner-draws", "operating-bank", "400.00", scope{owner: "o-1"})
	post(t, repo, day(6), "operating-bank", "rent-income", "700.00", scope{property: "p-2", owner: "o-2"})
	return repo
}

func TestTrialBalance(t *testing.T) {
	ctx := context.Background()
	svc := NewService(setupLedger(t), 0, nil)

	t.Run("end of month", func(t *testing.T) {
		tb, err := svc.TrialBalance(ctx, org, monthEnd)

		require.NoError(t, err)
		assert.Len(t, tb.Rows, 7)
		assert.Equal(t, "4900.0000", money.FormatLedger(tb.TotalDebit))
		assert.Equal(t, "4900.0000", money.FormatLedger(tb.TotalCredit))
		assert.True(t, tb.Balanced)
		assert.Equal(t, monthEnd, tb.AsOf)
	})

	t.Run("as of first day", func(t *testing.T) {
		tb, err := svc.TrialBalance(ctx, org, day(1))

		require.NoError(t, err)
		assert.Len(t, tb.Rows, 2)
		assert.Equal(t, "1000.0000", money.FormatLedger(tb.TotalDebit))
	})

	t.Run("organization required", func(t *testing.T) {
		_, err := svc.TrialBalance(ctx, ledger.OrganizationContext{}, monthEnd)
		assert.True(t, reconcile.IsCode(err, reconcile.CodeOrgRequired))
	})
}

func TestBalanceSheet(t *testing.T) {
	// Arrange
	svc := NewService(setupLedger(t), 0, nil)

	// Act
	sheet, err := svc.BalanceSheet(context.Background(), org, monthEnd)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "3500.0000", money.FormatLedger(sheet.Assets.Total))
	assert.Equal(t, "1000.0000", money.FormatLedger(sheet.Liabilities.Total))
	assert.Equal(t, "2400.0000", money.FormatLedger(sheet.NetIncome))
	assert.Equal(t, "2500.0000", money.FormatLedger(sheet.Equity.Total), "contributions less draws plus net income")
	assert.Equal(t, "3500.0000", money.FormatLedger(sheet.TotalLiabilitiesAndEquity))
	assert.True(t, sheet.Balanced)
	assert.True(t, sheet.Difference.IsZero())

	assert.True(t, sheet.Diagnostic.Passed)
	assert.Equal(t, "1000.0000", money.FormatLedger(sheet.Diagnostic.TrustBalance))
	assert.Equal(t, "1000.0000", money.FormatLedger(sheet.Diagnostic.TrustLiabilities))

	last := sheet.Equity.Lines[len(sheet.Equity.Lines)-1]
	assert.Equal(t, "Current Net Income", last.AccountName)
}

func TestBalanceSheet_TrustShortfall(t *testing.T) {
	// Arrange: prepaid rent deposited into the operating account
	repo := setupLedger(t)
	post(t, repo, day(7), "operating-bank", "prepaid", "250.00", scope{})
	svc := NewService(repo, time.Minute, nil)

	// Act
	sheet, err := svc.BalanceSheet(context.Background(), org, monthEnd)

	// Assert
	assert.Nil(t, sheet)
	require.Error(t, err)
	var rerr *reconcile.Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, reconcile.CodeDiagnosticsFailed, rerr.Code)
	assert.Equal(t, "250.0000", rerr.Details["shortfall"])
	assert.Equal(t, 0, svc.cache.ItemCount(), "failed reports are not cached")
}

func TestDiagnoseTrust(t *testing.T) {
	tests := []struct {
		name   string
		rows   []ledger.TrialBalanceRow
		passed bool
	}{
		{
			name:   "no trust accounts",
			passed: true,
		},
		{
			name: "surplus is allowed",
			rows: []ledger.TrialBalanceRow{
				{Subtype: ledger.SubtypeTrustBank, Debit: money.MustParse("1500")},
				{Subtype: ledger.SubtypeSecurityDeposits, Credit: money.MustParse("1000")},
			},
			passed: true,
		},
		{
			name: "within a cent",
			rows: []ledger.TrialBalanceRow{
				{Subtype: ledger.SubtypeTrustBank, Debit: money.MustParse("999.99")},
				{Subtype: ledger.SubtypeSecurityDeposits, Credit: money.MustParse("1000")},
			},
			passed: true,
		},
		{
			name: "negative trust balance",
			rows: []ledger.TrialBalanceRow{
				{Subtype: ledger.SubtypeTrustBank, Credit: money.MustParse("10")},
			},
			passed: false,
		},
		{
			name: "shortfall",
			rows: []ledger.TrialBalanceRow{
				{Subtype: ledger.SubtypeTrustBank, Debit: money.MustParse("900")},
				{Subtype: ledger.SubtypePrepaidRent, Credit: money.MustParse("1000")},
			},
			passed: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := diagnoseTrust(tt.rows)
			assert.Equal(t, tt.passed, d.Passed)
			if !tt.passed {
				assert.NotEmpty(t, d.Issues)
			}
		})
	}
}

func TestIncomeStatement(t *testing.T) {
	svc := NewService(setupLedger(t), 0, nil)

	is, err := svc.IncomeStatement(context.Background(), org, monthStart, monthEnd)

	require.NoError(t, err)
	assert.Equal(t, "2700.0000", money.FormatLedger(is.Revenue.Total))
	assert.Equal(t, "300.0000", money.FormatLedger(is.Expenses.Total))
	assert.Equal(t, "2400.0000", money.FormatLedger(is.NetIncome))
	require.Len(t, is.Revenue.Lines, 1)
	assert.Equal(t, "Rental Income", is.Revenue.Lines[0].AccountName)

	t.Run("range excludes earlier activity", func(t *testing.T) {
		late, err := svc.IncomeStatement(context.Background(), org, day(4), monthEnd)
		require.NoError(t, err)
		assert.Equal(t, "700.0000", money.FormatLedger(late.NetIncome))
	})
}

func TestPropertyPnL(t *testing.T) {
	svc := NewService(setupLedger(t), 0, nil)

	pnl, err := svc.PropertyPnL(context.Background(), org, "p-1", monthStart, monthEnd)

	require.NoError(t, err)
	assert.Equal(t, "p-1", pnl.PropertyID)
	assert.Equal(t, "2000.0000", money.FormatLedger(pnl.Revenue.Total))
	assert.Equal(t, "300.0000", money.FormatLedger(pnl.Expenses.Total))
	assert.Equal(t, "1700.0000", money.FormatLedger(pnl.NetIncome))

	other, err := svc.PropertyPnL(context.Background(), org, "p-2", monthStart, monthEnd)
	require.NoError(t, err)
	assert.Equal(t, "700.0000", money.FormatLedger(other.NetIncome))
}

func TestOwnerStatement(t *testing.T) {
	svc := NewService(setupLedger(t), 0, nil)

	stmt, err := svc.OwnerStatement(context.Background(), org, "o-1", monthStart, monthEnd)

	require.NoError(t, err)
	assert.Equal(t, "o-1", stmt.OwnerID)
	assert.Equal(t, "1700.0000", money.FormatLedger(stmt.NetIncome))
	assert.Equal(t, "400.0000", money.FormatLedger(stmt.Distributions))
	assert.Equal(t, "500.0000", money.FormatLedger(stmt.Contributions))
	assert.Equal(t, "1800.0000", money.FormatLedger(stmt.NetOwnerActivity))
}

func TestAccountActivity(t *testing.T) {
	svc := NewService(setupLedger(t), 0, nil)

	activity, err := svc.AccountActivity(context.Background(), org, "operating-bank", monthStart, monthEnd)

	require.NoError(t, err)
	assert.Equal(t, "3200.0000", money.FormatLedger(activity.Debit))
	assert.Equal(t, "700.0000", money.FormatLedger(activity.Credit))
	assert.Equal(t, "2500.0000", money.FormatLedger(activity.NetChange))

	_, err = svc.AccountActivity(context.Background(), org, "nope", monthStart, monthEnd)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReportCache(t *testing.T) {
	ctx := context.Background()

	t.Run("serves cached report until invalidated", func(t *testing.T) {
		// Arrange
		repo := setupLedger(t)
		svc := NewService(repo, time.Minute, nil)
		first, err := svc.TrialBalance(ctx, org, monthEnd)
		require.NoError(t, err)

		// Act
		post(t, repo, day(10), "operating-bank", "rent-income", "100.00", scope{})
		stale, err := svc.TrialBalance(ctx, org, monthEnd)
		require.NoError(t, err)
		svc.Invalidate(org)
		fresh, err := svc.TrialBalance(ctx, org, monthEnd)
		require.NoError(t, err)

		// Assert
		assert.Same(t, first, stale)
		assert.Equal(t, "4900.0000", money.FormatLedger(stale.TotalDebit))
		assert.Equal(t, "5000.0000", money.FormatLedger(fresh.TotalDebit))
	})

	t.Run("invalidate only touches one organization", func(t *testing.T) {
		svc := NewService(setupLedger(t), time.Minute, nil)
		other := ledger.OrganizationContext{OrganizationID: "org-2"}
		_, err := svc.TrialBalance(ctx, org, monthEnd)
		require.NoError(t, err)
		_, err = svc.TrialBalance(ctx, other, monthEnd)
		require.NoError(t, err)
		require.Equal(t, 2, svc.cache.ItemCount())

		svc.Invalidate(other)

		assert.Equal(t, 1, svc.cache.ItemCount())
	})

	t.Run("store errors are not cached", func(t *testing.T) {
		repo := setupLedger(t)
		svc := NewService(repo, time.Minute, nil)
		repo.BalanceErr = errors.New("database is locked")

		_, err := svc.IncomeStatement(ctx, org, monthStart, monthEnd)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database is locked")

		repo.BalanceErr = nil
		is, err := svc.IncomeStatement(ctx, org, monthStart, monthEnd)
		require.NoError(t, err)
		assert.Equal(t, "2400.0000", money.FormatLedger(is.NetIncome))
	})

	t.Run("zero ttl disables caching", func(t *testing.T) {
		svc := NewService(setupLedger(t), 0, nil)
		a, err := svc.TrialBalance(ctx, org, monthEnd)
		require.NoError(t, err)
		b, err := svc.TrialBalance(ctx, org, monthEnd)
		require.NoError(t, err)
		assert.NotSame(t, a, b)
		svc.Invalidate(org)
	})
}
