package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/money"
	"github.com/eshaffer321/propledger/internal/domain/reconcile"
	"github.com/eshaffer321/propledger/internal/domain/rules"
)

var (
	testOrg = ledger.OrganizationContext{OrganizationID: "org-1", UserID: "user-1"}
	testDay = time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC)
)

// forEachRepository runs the same contract test against SQLite and the mock.
func forEachRepository(t *testing.T, fn func(t *testing.T, repo Repository)) {
	t.Run("sqlite", func(t *testing.T) {
		tmpDB := createTempDB(t)
		defer os.Remove(tmpDB)

		store, err := NewStorage(tmpDB)
		require.NoError(t, err)
		defer store.Close()

		fn(t, store)
	})

	t.Run("mock", func(t *testing.T) {
		fn(t, NewMockRepository())
	})
}

func seedAccounts(t *testing.T, repo Repository) {
	t.Helper()
	accounts := []*ledger.Account{
		{ID: "trust-bank", Name: "Trust Checking", Type: ledger.AccountAsset, Subtype: ledger.SubtypeTrustBank, FundBucket: ledger.BucketTrust, BankAccount: true},
		{ID: "operating-bank", Name: "Operating Checking", Type: ledger.AccountAsset, Subtype: ledger.SubtypeOperatingBank, FundBucket: ledger.BucketOperating, BankAccount: true},
		{ID: "deposits", Name: "Security Deposits Held", Type: ledger.AccountLiability, Subtype: ledger.SubtypeSecurityDeposits, FundBucket: ledger.BucketTrust},
		{ID: "rent-income", Name: "Rental Income", Type: ledger.AccountRevenue, Subtype: "rental_income"},
		{ID: "bank-fees", Name: "Bank Fees", Type: ledger.AccountExpense, Subtype: ledger.SubtypeBankFees},
	}
	for _, a := range accounts {
		a.OrganizationID = testOrg.OrganizationID
		require.NoError(t, repo.SaveAccount(context.Background(), a))
	}
}

func twoLegDraft(date time.Time, debitAccount, creditAccount, amount string) ledger.JournalEntryDraft {
	amt := money.MustParse(amount)
	return ledger.JournalEntryDraft{
		EntryDate:   date,
		EntryType:   "test",
		Description: "test entry",
		Postings: []ledger.PostingDraft{
			{AccountID: debitAccount, Amount: amt, Reference: "ref-1", Source: ledger.SourcePayment, PropertyID: "prop-1"},
			{AccountID: creditAccount, Amount: amt.Neg(), Reference: "ref-1", Source: ledger.SourcePayment, PropertyID: "prop-1"},
		},
		Metadata: map[string]string{"k": "v"},
	}
}

func TestRepository_CreateJournalEntry(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		seedAccounts(t, repo)

		// Act
		entry, err := repo.CreateJournalEntry(ctx, testOrg, twoLegDraft(testDay, "trust-bank", "rent-income", "1500.00"))

		// Assert
		require.NoError(t, err)
		require.Len(t, entry.Postings, 2)
		assert.NotEmpty(t, entry.ID)
		assert.Equal(t, "Trust Checking", entry.Postings[0].AccountName)
		assert.Equal(t, ledger.BucketTrust, entry.Postings[0].FundBucket, "bucket defaults from the account")

		loaded, err := repo.GetJournalEntry(ctx, testOrg, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, "v", loaded.Metadata["k"])
		require.Len(t, loaded.Postings, 2)
		assert.Equal(t, "1500.0000", money.FormatLedger(loaded.Postings[0].Amount))
		assert.Equal(t, "-1500.0000", money.FormatLedger(loaded.Postings[1].Amount))
	})
}

func TestRepository_RejectsUnbalancedEntry(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		seedAccounts(t, repo)

		draft := twoLegDraft(testDay, "trust-bank", "rent-income", "1500.00")
		draft.Postings[1].Amount = money.MustParse("-1499.99")

		_, err := repo.CreateJournalEntry(ctx, testOrg, draft)

		require.Error(t, err)
		assert.True(t, reconcile.IsCode(err, reconcile.CodeUnbalancedEntry))

		balance, err := repo.GetAccountBalance(ctx, testOrg, "trust-bank")
		require.NoError(t, err)
		assert.True(t, balance.Balance.IsZero(), "rejected entry must not touch balances")
	})
}

func TestRepository_UnknownAccount(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo Repository) {
		seedAccounts(t, repo)

		_, err := repo.CreateJournalEntry(context.Background(), testOrg, twoLegDraft(testDay, "trust-bank", "nope", "10"))
		assert.True(t, reconcile.IsCode(err, reconcile.CodeAccountNotFound))

		_, err = repo.GetAccountBalance(context.Background(), testOrg, "nope")
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestRepository_Balances(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		seedAccounts(t, repo)

		_, err := repo.CreateJournalEntry(ctx, testOrg, twoLegDraft(testDay, "trust-bank", "rent-income", "1500.00"))
		require.NoError(t, err)
		_, err = repo.CreateJournalEntry(ctx, testOrg, twoLegDraft(testDay.AddDate(0, 0, 1), "trust-bank", "deposits", "500.00"))
		require.NoError(t, err)
		_, err = repo.CreateJournalEntry(ctx, testOrg, twoLegDraft(testDay.AddDate(0, 0, 2), "bank-fees", "trust-bank", "12.50"))
		require.NoError(t, err)

		t.Run("account balance is debit minus credit", func(t *testing.T) {
			b, err := repo.GetAccountBalance(ctx, testOrg, "trust-bank")
			require.NoError(t, err)
			assert.Equal(t, "2000.0000", money.FormatLedger(b.Debit))
			assert.Equal(t, "12.5000", money.FormatLedger(b.Credit))
			assert.Equal(t, "1987.5000", money.FormatLedger(b.Balance))
		})

		t.Run("subtype balance", func(t *testing.T) {
			b, err := repo.GetSubtypeBalance(ctx, testOrg, ledger.SubtypeSecurityDeposits)
			require.NoError(t, err)
			assert.Equal(t, "-500.0000", money.FormatLedger(b.Balance))

			empty, err := repo.GetSubtypeBalance(ctx, testOrg, "nothing")
			require.NoError(t, err)
			assert.True(t, empty.Balance.IsZero())
		})

		t.Run("trial balance as of a date", func(t *testing.T) {
			rows, err := repo.GetTrialBalanceAsOf(ctx, testOrg, testDay)
			require.NoError(t, err)
			require.Len(t, rows, 2)

			total := money.Sum(rows[0].Debit, rows[1].Debit).Sub(money.Sum(rows[0].Credit, rows[1].Credit))
			assert.True(t, total.IsZero())

			all, err := repo.GetTrialBalanceAsOf(ctx, testOrg, testDay.AddDate(0, 0, 30))
			require.NoError(t, err)
			assert.Len(t, all, 4)
		})

		t.Run("account activity over a range", func(t *testing.T) {
			act, err := repo.GetAccountActivity(ctx, testOrg, "trust-bank", testDay.AddDate(0, 0, 1), testDay.AddDate(0, 0, 2))
			require.NoError(t, err)
			assert.Equal(t, "487.5000", money.FormatLedger(act.NetChange))

			none, err := repo.GetAccountActivity(ctx, testOrg, "rent-income", testDay.AddDate(0, 0, 5), testDay.AddDate(0, 0, 6))
			require.NoError(t, err)
			assert.True(t, none.NetChange.IsZero())
		})

		t.Run("scoped activity", func(t *testing.T) {
			list, err := repo.ListAccountActivity(ctx, testOrg, ActivityFilter{PropertyID: "prop-1"})
			require.NoError(t, err)
			assert.Len(t, list, 4)

			other, err := repo.ListAccountActivity(ctx, testOrg, ActivityFilter{PropertyID: "prop-2"})
			require.NoError(t, err)
			assert.Empty(t, other)
		})
	})
}

func TestRepository_ListPostingsAndEntries(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		seedAccounts(t, repo)

		_, err := repo.CreateJournalEntry(ctx, testOrg, twoLegDraft(testDay, "trust-bank", "rent-income", "100"))
		require.NoError(t, err)
		_, err = repo.CreateJournalEntry(ctx, testOrg, twoLegDraft(testDay.AddDate(0, 0, 10), "operating-bank", "rent-income", "50"))
		require.NoError(t, err)

		trust, err := repo.ListPostings(ctx, testOrg, PostingFilter{FundBucket: ledger.BucketTrust})
		require.NoError(t, err)
		require.Len(t, trust, 1)
		assert.Equal(t, "trust-bank", trust[0].AccountID)

		banks, err := repo.ListPostings(ctx, testOrg, PostingFilter{Subtypes: []string{ledger.SubtypeTrustBank, ledger.SubtypeOperatingBank}})
		require.NoError(t, err)
		assert.Len(t, banks, 2)

		early, err := repo.ListPostings(ctx, testOrg, PostingFilter{AccountIDs: []string{"rent-income"}, End: testDay})
		require.NoError(t, err)
		assert.Len(t, early, 1)

		entries, err := repo.ListEntriesInWindow(ctx, testOrg, testDay.AddDate(0, 0, -5), testDay.AddDate(0, 0, 5))
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Len(t, entries[0].Postings, 2)
	})
}

func TestRepository_ListEntriesInWindow_IncludesWholeLastDay(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo Repository) {
		// Arrange
		ctx := context.Background()
		seedAccounts(t, repo)
		lastDay := testDay.AddDate(0, 0, 5)
		_, err := repo.CreateJournalEntry(ctx, testOrg, twoLegDraft(lastDay.Add(15*time.Hour), "trust-bank", "rent-income", "100"))
		require.NoError(t, err)
		_, err = repo.CreateJournalEntry(ctx, testOrg, twoLegDraft(lastDay.AddDate(0, 0, 1), "trust-bank", "rent-income", "200"))
		require.NoError(t, err)

		// Act
		entries, err := repo.ListEntriesInWindow(ctx, testOrg, testDay, lastDay)

		// Assert
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "100.0000", money.FormatLedger(entries[0].Postings[0].Amount.Abs()))
	})
}

func TestRepository_BankTransactions(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()

		tx := &ledger.BankTransaction{
			ID:             "bt-1",
			OrganizationID: testOrg.OrganizationID,
			BankAccountID:  "trust-bank",
			ExternalID:     "feed-1",
			Date:           testDay,
			Amount:         money.MustParse("1500.00"),
			Direction:      ledger.Credit,
			Description:    "RENT PAYMENT",
			Reference:      "pay_101",
		}
		require.NoError(t, repo.SaveBankTransaction(ctx, tx))
		assert.Equal(t, ledger.StatusUnmatched, tx.Status)

		dup := *tx
		dup.ID = "bt-2"
		err := repo.SaveBankTransaction(ctx, &dup)
		assert.True(t, errors.Is(err, ErrDuplicateTransaction))

		later := &ledger.BankTransaction{
			ID:             "bt-3",
			OrganizationID: testOrg.OrganizationID,
			BankAccountID:  "trust-bank",
			Date:           testDay.AddDate(0, 0, 3),
			Amount:         money.MustParse("-75"),
			Direction:      ledger.Debit,
			CheckNumber:    "1001",
		}
		require.NoError(t, repo.SaveBankTransaction(ctx, later))

		found, err := repo.FindByExternalID(ctx, testOrg, "trust-bank", "feed-1")
		require.NoError(t, err)
		assert.Equal(t, "bt-1", found.ID)
		assert.Equal(t, "1500.0000", money.FormatLedger(found.Amount))

		tx.Status = ledger.StatusMatched
		tx.MatchedEntryID = "entry-1"
		require.NoError(t, repo.UpdateBankTransaction(ctx, tx))

		got, err := repo.GetBankTransaction(ctx, testOrg, "bt-1")
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusMatched, got.Status)
		assert.Equal(t, "entry-1", got.MatchedEntryID)

		matched, err := repo.ListBankTransactions(ctx, testOrg, TransactionFilter{Statuses: []ledger.TransactionStatus{ledger.StatusMatched}})
		require.NoError(t, err)
		require.Len(t, matched, 1)

		before, err := repo.ListBankTransactions(ctx, testOrg, TransactionFilter{BankAccountID: "trust-bank", Before: testDay})
		require.NoError(t, err)
		require.Len(t, before, 1)
		assert.Equal(t, "bt-1", before[0].ID)

		missing := &ledger.BankTransaction{ID: "nope", OrganizationID: testOrg.OrganizationID}
		assert.True(t, errors.Is(repo.UpdateBankTransaction(ctx, missing), ErrNotFound))
	})
}

func TestRepository_Rules(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()

		for _, r := range []*rules.MatchingRule{
			{Name: "b-rule", Priority: 20, Active: true},
			{Name: "a-rule", Priority: 10, Active: true, Conditions: []rules.Condition{
				{Field: rules.FieldDescription, Operator: rules.OpContains, Value: "rent"},
			}, Actions: []rules.Action{
				{Type: rules.ActionDebit, AccountID: "trust-bank"},
				{Type: rules.ActionCredit, AccountID: "rent-income"},
			}},
		} {
			r.OrganizationID = testOrg.OrganizationID
			require.NoError(t, repo.SaveRule(ctx, r))
			assert.NotEmpty(t, r.ID)
		}

		list, err := repo.ListRules(ctx, testOrg)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "a-rule", list[0].Name)
		require.Len(t, list[0].Conditions, 1)
		assert.Equal(t, rules.OpContains, list[0].Conditions[0].Operator)
		assert.True(t, list[0].CanAutoPost())

		matchedAt := testDay.Add(time.Hour)
		require.NoError(t, repo.RecordRuleMatch(ctx, testOrg, list[0].ID, 11, matchedAt))

		got, err := repo.GetRule(ctx, testOrg, list[0].ID)
		require.NoError(t, err)
		assert.Equal(t, 11, got.MatchCount)
		require.NotNil(t, got.LastMatchedAt)
		assert.True(t, matchedAt.Equal(*got.LastMatchedAt))

		assert.True(t, errors.Is(repo.RecordRuleMatch(ctx, testOrg, "nope", 1, matchedAt), ErrNotFound))
	})
}

func TestRepository_SaveDoesNotCrossOrganizations(t *testing.T) {
	other := ledger.OrganizationContext{OrganizationID: "org-2"}

	forEachRepository(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		seedAccounts(t, repo)
		require.NoError(t, repo.SaveRule(ctx, &rules.MatchingRule{
			ID: "r1", OrganizationID: testOrg.OrganizationID, Name: "rent", Priority: 1, Active: true,
			Conditions: []rules.Condition{{Field: rules.FieldDescription, Operator: rules.OpContains, Value: "rent"}},
		}))

		t.Run("rule", func(t *testing.T) {
			// Act
			err := repo.SaveRule(ctx, &rules.MatchingRule{
				ID: "r1", OrganizationID: other.OrganizationID, Name: "hijacked", Active: true,
				Conditions: []rules.Condition{{Field: rules.FieldDescription, Operator: rules.OpContains, Value: "zzz"}},
			})

			// Assert
			assert.True(t, errors.Is(err, ErrNotFound))
			got, err := repo.GetRule(ctx, testOrg, "r1")
			require.NoError(t, err)
			assert.Equal(t, "rent", got.Name)
			require.Len(t, got.Conditions, 1)
			assert.Equal(t, "rent", got.Conditions[0].Value)
			_, err = repo.GetRule(ctx, other, "r1")
			assert.True(t, errors.Is(err, ErrNotFound))
		})

		t.Run("account", func(t *testing.T) {
			err := repo.SaveAccount(ctx, &ledger.Account{
				ID: "trust-bank", OrganizationID: other.OrganizationID, Name: "Hijacked", Type: ledger.AccountExpense,
			})

			assert.True(t, errors.Is(err, ErrNotFound))
			got, err := repo.GetAccount(ctx, testOrg, "trust-bank")
			require.NoError(t, err)
			assert.Equal(t, "Trust Checking", got.Name)
			assert.Equal(t, ledger.AccountAsset, got.Type)
		})

		t.Run("owner can still update", func(t *testing.T) {
			require.NoError(t, repo.SaveRule(ctx, &rules.MatchingRule{
				ID: "r1", OrganizationID: testOrg.OrganizationID, Name: "rent v2", Priority: 1, Active: true,
			}))

			got, err := repo.GetRule(ctx, testOrg, "r1")
			require.NoError(t, err)
			assert.Equal(t, "rent v2", got.Name)
		})
	})
}

func TestRepository_Sessions(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()

		session := &reconcile.Session{
			ID:               "s-1",
			OrganizationID:   testOrg.OrganizationID,
			BankAccountID:    "trust-bank",
			StatementDate:    testDay,
			StatementBalance: money.MustParse("10000"),
			BookBalance:      money.MustParse("9950"),
			Status:           reconcile.StatusInProgress,
			StartedAt:        testDay,
			OutstandingItems: []reconcile.OutstandingItem{
				{Kind: reconcile.ItemCheck, TransactionID: "bt-9", Amount: money.MustParse("-50"), CheckNumber: "1001"},
			},
		}
		require.NoError(t, repo.CreateSession(ctx, session))

		second := *session
		second.ID = "s-2"
		err := repo.CreateSession(ctx, &second)
		assert.True(t, errors.Is(err, ErrSessionInProgress), "one open session per bank account")

		require.NoError(t, session.Close(money.MustParse("9950"), money.MustParse("9950"), testDay.Add(time.Hour)))
		require.NoError(t, repo.UpdateSession(ctx, session))

		got, err := repo.GetSession(ctx, testOrg, "s-1")
		require.NoError(t, err)
		assert.Equal(t, reconcile.StatusCompleted, got.Status)
		require.NotNil(t, got.CompletedAt)
		require.Len(t, got.OutstandingItems, 1)
		assert.Equal(t, "1001", got.OutstandingItems[0].CheckNumber)

		require.NoError(t, repo.CreateSession(ctx, &second), "closed session frees the account")

		list, err := repo.ListSessions(ctx, testOrg, "trust-bank")
		require.NoError(t, err)
		assert.Len(t, list, 2)

		_, err = repo.GetSession(ctx, testOrg, "nope")
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestRepository_Events(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()

		for i, name := range []string{"journal.posted", "reconciliation.completed", "journal.posted"} {
			require.NoError(t, repo.SaveEvent(ctx, &EventRecord{
				OrganizationID: testOrg.OrganizationID,
				Name:           name,
				Payload:        map[string]any{"n": float64(i)},
				OccurredAt:     testDay.Add(time.Duration(i) * time.Minute),
			}))
		}

		posted, err := repo.ListEvents(ctx, testOrg, "journal.posted", 10)
		require.NoError(t, err)
		require.Len(t, posted, 2)
		assert.Equal(t, float64(2), posted[0].Payload["n"], "newest first")

		all, err := repo.ListEvents(ctx, testOrg, "", 0)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}
