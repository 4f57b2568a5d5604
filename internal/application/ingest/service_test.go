package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/propledger/internal/adapters/bankfeed"
	"github.com/eshaffer321/propledger/internal/adapters/events"
	"github.com/eshaffer321/propledger/internal/application/matching"
	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/money"
	"github.com/eshaffer321/propledger/internal/domain/reconcile"
	"github.com/eshaffer321/propledger/internal/domain/rules"
	"github.com/eshaffer321/propledger/internal/infrastructure/storage"
)

var (
	org     = ledger.OrganizationContext{OrganizationID: "org-1"}
	fixedAt = time.Date(2025, 10, 20, 9, 0, 0, 0, time.UTC)
)

const feed = `id,account_id,date,amount,description,pending,reference,check_number
f1,trust-bank,2025-10-01,1500.00,RENT PAYMENT UNIT 4,false,pay_1,
f2,trust-bank,2025-10-03,-250.00,CHECK 1001,true,,1001
f3,operating-bank,2025-10-04,-12.50,SERVICE FEE,false,,
f4,trust-bank,2025-10-05,900.00,RENT UNIT 7,false,pay_2,
`

type mockSink struct {
	mock.Mock
}

func (m *mockSink) Emit(ctx context.Context, event events.Event) error {
	return m.Called(ctx, event).Error(0)
}

func named(name string) any {
	return mock.MatchedBy(func(e events.Event) bool { return e.Name == name })
}

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Name() string {
	return "mock"
}

func (m *mockSource) FetchTransactions(ctx context.Context, bankAccountID string, since time.Time) ([]bankfeed.FeedTransaction, error) {
	args := m.Called(ctx, bankAccountID, since)
	txs, _ := args.Get(0).([]bankfeed.FeedTransaction)
	return txs, args.Error(1)
}

type mockMatcher struct {
	mock.Mock
}

func (m *mockMatcher) MatchTransaction(ctx context.Context, org ledger.OrganizationContext, tx *ledger.BankTransaction) (*rules.MatchResult, error) {
	args := m.Called(ctx, org, tx)
	result, _ := args.Get(0).(*rules.MatchResult)
	return result, args.Error(1)
}

func setupRepo(t *testing.T) *storage.MockRepository {
	t.Helper()
	repo := storage.NewMockRepository()
	repo.Now = func() time.Time { return fixedAt }
	for _, a := range []*ledger.Account{
		{ID: "trust-bank", Name: "Trust Checking", Type: ledger.AccountAsset, Subtype: ledger.SubtypeTrustBank, FundBucket: ledger.BucketTrust, BankAccount: true},
		{ID: "operating-bank", Name: "Operating Checking", Type: ledger.AccountAsset, Subtype: ledger.SubtypeOperatingBank, BankAccount: true},
		{ID: "rent-income", Name: "Rental Income", Type: ledger.AccountRevenue, Subtype: "rental_income"},
	} {
		a.OrganizationID = org.OrganizationID
		require.NoError(t, repo.SaveAccount(context.Background(), a))
	}
	require.NoError(t, repo.SaveRule(context.Background(), &rules.MatchingRule{
		ID:             "rule-rent",
		OrganizationID: org.OrganizationID,
		Name:           "Rent deposits",
		Priority:       1,
		Active:         true,
		Conditions:     []rules.Condition{{Field: rules.FieldDescription, Operator: rules.OpContains, Value: "rent"}},
		Actions: []rules.Action{
			{Type: rules.ActionDebit, AccountID: "trust-bank"},
			{Type: rules.ActionCredit, AccountID: "rent-income"},
		},
	}))
	return repo
}

func newImporter(repo *storage.MockRepository, sink events.Sink) *Service {
	matcher := matching.NewService(repo, nil, nil, matching.DefaultConfig()).
		WithClock(func() time.Time { return fixedAt })
	source := bankfeed.NewCSVSourceFromReader("feed.csv", []byte(feed))
	return NewService(source, repo, matcher, sink, nil).WithClock(func() time.Time { return fixedAt })
}

func TestImport_StoresAndMatches(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := setupRepo(t)
	sink := &mockSink{}
	sink.On("Emit", mock.Anything, named(events.BankConnected)).Return(nil).Once()
	sink.On("Emit", mock.Anything, named(events.BankTransactionsImported)).Return(nil).Once()
	svc := newImporter(repo, sink)

	// Act
	result, err := svc.Import(ctx, org, Options{BankAccountID: "trust-bank"})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "csv", result.Source)
	assert.Equal(t, 3, result.Fetched)
	assert.Equal(t, 3, result.Imported)
	assert.Equal(t, 0, result.Duplicates)
	assert.Empty(t, result.Errors)
	assert.Equal(t, matching.BatchSummary{Processed: 3, RuleMatched: 2, Unmatched: 1}, result.Matching)

	check, err := repo.FindByExternalID(ctx, org, "trust-bank", "f2")
	require.NoError(t, err)
	assert.False(t, check.Cleared)
	assert.Equal(t, ledger.Debit, check.Direction)
	assert.Equal(t, "1001", check.CheckNumber)
	assert.Equal(t, ledger.StatusUnmatched, check.Status)

	rent, err := repo.FindByExternalID(ctx, org, "trust-bank", "f1")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusMatched, rent.Status)
	assert.Equal(t, "pay_1", rent.Reference)
	sink.AssertExpectations(t)
}

func TestImport_IsIdempotent(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := setupRepo(t)
	_, err := newImporter(repo, nil).Import(ctx, org, Options{BankAccountID: "trust-bank"})
	require.NoError(t, err)

	sink := &mockSink{}
	sink.On("Emit", mock.Anything, mock.Anything).Return(nil)

	// Act
	result, err := newImporter(repo, sink).Import(ctx, org, Options{BankAccountID: "trust-bank"})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 3, result.Duplicates)
	assert.Equal(t, 0, result.Imported)
	assert.Equal(t, 0, result.Matching.Processed)
	sink.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything)

	txs, err := repo.ListBankTransactions(ctx, org, storage.TransactionFilter{BankAccountID: "trust-bank"})
	require.NoError(t, err)
	assert.Len(t, txs, 3)
}

func TestImport_DryRun(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)
	sink := &mockSink{}
	sink.On("Emit", mock.Anything, mock.Anything).Return(nil)

	result, err := newImporter(repo, sink).Import(ctx, org, Options{BankAccountID: "trust-bank", DryRun: true})

	require.NoError(t, err)
	assert.Equal(t, 3, result.Imported)
	assert.Equal(t, 0, result.Matching.Processed)
	sink.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything)

	txs, err := repo.ListBankTransactions(ctx, org, storage.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestImport_AccountNotFound(t *testing.T) {
	repo := setupRepo(t)
	svc := newImporter(repo, nil)

	for _, id := range []string{"missing", "rent-income"} {
		t.Run(id, func(t *testing.T) {
			_, err := svc.Import(context.Background(), org, Options{BankAccountID: id})
			assert.True(t, reconcile.IsCode(err, reconcile.CodeAccountNotFound))
		})
	}
}

func TestImport_LookbackAndSourceErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("lookback days set since", func(t *testing.T) {
		source := &mockSource{}
		source.On("FetchTransactions", mock.Anything, "trust-bank", time.Date(2025, 10, 13, 0, 0, 0, 0, time.UTC)).
			Return([]bankfeed.FeedTransaction{}, nil).Once()
		svc := NewService(source, setupRepo(t), nil, nil, nil).WithClock(func() time.Time { return fixedAt })

		result, err := svc.Import(ctx, org, Options{BankAccountID: "trust-bank", LookbackDays: 7})

		require.NoError(t, err)
		assert.Equal(t, 0, result.Fetched)
		source.AssertExpectations(t)
	})

	t.Run("fetch failure", func(t *testing.T) {
		source := &mockSource{}
		source.On("FetchTransactions", mock.Anything, "trust-bank", time.Time{}).
			Return(nil, errors.New("connection reset")).Once()
		svc := NewService(source, setupRepo(t), nil, nil, nil)

		_, err := svc.Import(ctx, org, Options{BankAccountID: "trust-bank"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to fetch transactions")
	})
}

func TestImport_MatchFailureIsCollected(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := setupRepo(t)
	source := &mockSource{}
	source.On("FetchTransactions", mock.Anything, "trust-bank", time.Time{}).Return([]bankfeed.FeedTransaction{
		{ID: "a", Date: fixedAt, Amount: money.MustParse("10"), Description: "one"},
		{ID: "b", Date: fixedAt, Amount: money.MustParse("20"), Description: "two"},
	}, nil)

	matcher := &mockMatcher{}
	matcher.On("MatchTransaction", mock.Anything, org, mock.MatchedBy(func(tx *ledger.BankTransaction) bool {
		return tx.ExternalID == "a"
	})).Return(nil, errors.New("rules unavailable"))
	matcher.On("MatchTransaction", mock.Anything, org, mock.MatchedBy(func(tx *ledger.BankTransaction) bool {
		return tx.ExternalID == "b"
	})).Return(&rules.MatchResult{}, nil)

	svc := NewService(source, repo, matcher, nil, nil)

	// Act
	result, err := svc.Import(ctx, org, Options{BankAccountID: "trust-bank"})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error(), "rules unavailable")
	assert.Equal(t, 1, result.Matching.Failed)
	assert.Equal(t, 1, result.Matching.Unmatched)
	matcher.AssertNumberOfCalls(t, "MatchTransaction", 2)
}
