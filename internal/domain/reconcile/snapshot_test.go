package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/propledger/internal/domain/discrepancy"
	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/money"
)

// Friday.
var now = time.Date(2025, 10, 31, 15, 0, 0, 0, time.UTC)

func newSnapshot() *Snapshot {
	return NewSnapshot(SnapshotConfig{Now: func() time.Time { return now }})
}

func credit(id, amount string) ledger.BankTransaction {
	return ledger.BankTransaction{
		ID:        id,
		Date:      now,
		Amount:    money.MustParse(amount),
		Direction: ledger.Credit,
		Cleared:   true,
		Status:    ledger.StatusUnmatched,
	}
}

func cashPosting(id, amount string, bucket ledger.FundBucket) ledger.LedgerPosting {
	return ledger.LedgerPosting{
		ID:         id,
		Date:       now,
		Amount:     money.MustParse(amount),
		AccountID:  string(bucket) + "-bank",
		Source:     ledger.SourcePayment,
		FundBucket: bucket,
	}
}

func TestSnapshot_PerformReconciliation_Tolerance(t *testing.T) {
	tests := []struct {
		name       string
		bank       string
		reconciled bool
	}{
		{"exact", "100.00", true},
		{"one cent is reconciled", "100.01", true},
		{"two cents is a variance", "100.02", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			s := newSnapshot()
			s.AddTransactions(credit("bt1", tt.bank))
			s.AddPostings(cashPosting("p1", "100.00", ledger.BucketTrust))

			// Act
			result := s.PerformReconciliation()

			// Assert
			assert.Equal(t, tt.reconciled, result.IsReconciled)
		})
	}
}

func TestSnapshot_SetLedgerBalance(t *testing.T) {
	s := newSnapshot()
	s.AddTransactions(credit("bt1", "250.00"))
	s.AddPostings(cashPosting("p1", "100.00", ledger.BucketTrust))

	s.SetLedgerBalance(money.MustParse("250.004"))
	result := s.PerformReconciliation()

	assert.Equal(t, "250.0040", money.FormatLedger(s.LedgerBalance()))
	assert.True(t, result.IsReconciled)
}

func TestSnapshot_PerformReconciliation_SmallVarianceIsWarning(t *testing.T) {
	s := newSnapshot()
	s.AddTransactions(credit("bt1", "100.50"))
	s.AddPostings(cashPosting("p1", "100.00", ledger.BucketTrust))

	result := s.PerformReconciliation()

	assert.False(t, result.IsReconciled)
	require.Len(t, result.Discrepancies, 1)
	assert.Equal(t, discrepancy.KindVariance, result.Discrepancies[0].Kind)
	assert.Equal(t, discrepancy.SeverityWarning, result.Discrepancies[0].Severity)
}

func TestSnapshot_PerformReconciliation_LargeVariance(t *testing.T) {
	// Arrange
	s := newSnapshot()
	s.AddTransactions(credit("bt1", "15000.00"))
	s.AddPostings(cashPosting("p1", "9999.00", ledger.BucketTrust))

	// Act
	result := s.PerformReconciliation()

	// Assert
	assert.False(t, result.IsReconciled)
	assert.True(t, result.Variance.GreaterThanOrEqual(money.MustParse("5000")))

	var critical *discrepancy.Discrepancy
	for i, d := range result.Discrepancies {
		if d.Kind == discrepancy.KindVariance && d.Severity == discrepancy.SeverityCritical {
			critical = &result.Discrepancies[i]
		}
	}
	require.NotNil(t, critical, "expected a critical variance discrepancy")
	assert.Equal(t, 1, result.Summary.Critical)
}

func TestSnapshot_PerformReconciliation_Duplicates(t *testing.T) {
	s := newSnapshot()
	s.AddTransactions(credit("bt1", "500.00"), credit("bt2", "500.00"))
	s.AddPostings(cashPosting("p1", "1000.00", ledger.BucketTrust))

	result := s.PerformReconciliation()

	assert.True(t, result.IsReconciled)
	require.Len(t, result.Discrepancies, 1)
	assert.Equal(t, discrepancy.KindDuplicate, result.Discrepancies[0].Kind)
}

func TestSnapshot_PerformReconciliation_Portal(t *testing.T) {
	t.Run("matching portal balance", func(t *testing.T) {
		s := newSnapshot()
		s.AddTransactions(credit("bt1", "1200.00"))
		s.AddPostings(cashPosting("p1", "1200.00", ledger.BucketTrust))
		s.SetPortalBalance("tenant-1", money.MustParse("700.00"))
		s.SetPortalBalance("tenant-2", money.MustParse("500.00"))

		result := s.PerformReconciliation()

		assert.True(t, result.IsReconciled)
		require.NotNil(t, result.PortalBalance)
		assert.Equal(t, "1200.0000", money.FormatLedger(*result.PortalBalance))
	})

	t.Run("portal disagreeing with ledger", func(t *testing.T) {
		s := newSnapshot()
		s.AddTransactions(credit("bt1", "1200.00"))
		s.AddPostings(cashPosting("p1", "1200.00", ledger.BucketTrust))
		s.SetPortalBalance("tenant-1", money.MustParse("1000.00"))

		result := s.PerformReconciliation()

		assert.False(t, result.IsReconciled)
		require.Len(t, result.Discrepancies, 1)
		assert.Equal(t, discrepancy.KindAmountMismatch, result.Discrepancies[0].Kind)
	})
}

func TestSnapshot_VoidCheck(t *testing.T) {
	check := ledger.BankTransaction{
		ID:          "chk",
		Date:        now.AddDate(0, 0, -3),
		Amount:      money.MustParse("-250.00"),
		Direction:   ledger.Debit,
		CheckNumber: "1042",
	}

	t.Run("nonexistent check leaves balance unchanged", func(t *testing.T) {
		s := newSnapshot()
		s.AddTransactions(check)
		before := s.BankBalance()

		ok := s.VoidCheck("9999")

		assert.False(t, ok)
		assert.Equal(t, before.String(), s.BankBalance().String())
		assert.Len(t, s.Transactions(), 1)
	})

	t.Run("voided check nets to zero", func(t *testing.T) {
		s := newSnapshot()
		s.AddTransactions(check)

		require.True(t, s.VoidCheck("1042"))

		assert.Equal(t, "0.0000", money.FormatLedger(s.BankBalance()))
		txs := s.Transactions()
		require.Len(t, txs, 2)
		assert.Equal(t, now, txs[1].Date)
		assert.Equal(t, "-250.00", money.FormatDisplay(txs[0].Amount), "original is untouched")
	})
}

func TestSnapshot_ProcessNSF(t *testing.T) {
	// Arrange
	s := newSnapshot()
	payment := credit("bt1", "1500.00")
	payment.Reference = "pay_101"
	s.AddTransactions(payment)

	// Act
	result := s.ProcessNSF("pay_101")

	// Assert
	assert.True(t, result.Reversed)
	assert.True(t, result.FeeCharged)
	assert.Equal(t, "-35.0000", money.FormatLedger(s.BankBalance()))
	assert.Len(t, s.Transactions(), 3)

	missing := s.ProcessNSF("pay_999")
	assert.False(t, missing.Reversed)
	assert.False(t, missing.FeeCharged)
}

func TestSnapshot_TrustOperating(t *testing.T) {
	s := newSnapshot()
	s.AddPostings(
		cashPosting("p1", "3000.00", ledger.BucketTrust),
		cashPosting("p2", "2000.00", ledger.BucketTrust),
		cashPosting("p3", "3000.00", ledger.BucketOperating),
	)

	result := s.TrustOperating()

	assert.Equal(t, "5000.0000", money.FormatLedger(result.TrustBalance))
	assert.Equal(t, "3000.0000", money.FormatLedger(result.OperatingBalance))
	assert.Equal(t, "8000.0000", money.FormatLedger(result.CombinedBalance))
	assert.False(t, result.Commingled)
}

func TestSnapshot_PendingACH(t *testing.T) {
	// Arrange
	s := newSnapshot()
	ach := ledger.BankTransaction{
		ID:          "ach1",
		Date:        now.AddDate(0, 0, -1),
		Amount:      money.MustParse("-800.00"),
		Direction:   ledger.Debit,
		Description: "ACH DEBIT MORTGAGE",
	}
	old := ach
	old.ID = "ach2"
	old.Date = now.AddDate(0, 0, -10)
	s.AddTransactions(ach, old)

	// Act
	items := s.PendingACH()

	// Assert
	require.Len(t, items, 1)
	assert.Equal(t, "ach1", items[0].TransactionID)
	assert.Equal(t, ItemACHPending, items[0].Kind)
	require.NotNil(t, items[0].ExpectedClearDate)
	// Thursday + 3 business days skips the weekend.
	assert.Equal(t, time.Date(2025, 11, 4, 0, 0, 0, 0, time.UTC), *items[0].ExpectedClearDate)
}

func TestSnapshot_MatchBatchDeposits(t *testing.T) {
	s := newSnapshot()
	batch := credit("bt1", "4500.00")
	batch.Reference = "batch_001"
	s.AddTransactions(batch)
	for _, id := range []string{"p1", "p2", "p3"} {
		p := cashPosting(id, "1500.00", ledger.BucketTrust)
		p.Reference = "batch_001"
		s.AddPostings(p)
	}

	result := s.MatchBatchDeposits()

	assert.Equal(t, 1, result.Matched)
	assert.Empty(t, result.Unmatched)
}

func TestSnapshot_OutstandingItems(t *testing.T) {
	s := newSnapshot()
	s.AddTransactions(ledger.BankTransaction{
		ID:          "chk",
		Date:        now.AddDate(0, 0, -20),
		Amount:      money.MustParse("-75.00"),
		Direction:   ledger.Debit,
		CheckNumber: "2001",
	})
	s.AddPostings(cashPosting("p1", "900.00", ledger.BucketTrust))

	items := s.OutstandingItems()

	require.Len(t, items, 2)
	assert.Equal(t, ItemCheck, items[0].Kind)
	assert.Equal(t, ItemDeposit, items[1].Kind)
}
