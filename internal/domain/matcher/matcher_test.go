package matcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/money"
)

var baseDate = time.Date(2025, 10, 10, 0, 0, 0, 0, time.UTC)

// Helper to create test transaction
func makeTransaction(id, description, amount string, date time.Time) ledger.BankTransaction {
	amt := money.MustParse(amount)
	return ledger.BankTransaction{
		ID:          id,
		Date:        date,
		Amount:      amt,
		Direction:   ledger.DirectionOf(amt),
		Description: description,
	}
}

// Helper to create a balanced two-posting entry
func makeEntry(id, description, amount string, date time.Time) *ledger.JournalEntry {
	amt := money.MustParse(amount)
	return &ledger.JournalEntry{
		ID:          id,
		EntryDate:   date,
		Description: description,
		Postings: []ledger.LedgerPosting{
			{ID: id + "-1", AccountID: "bank", Amount: amt},
			{ID: id + "-2", AccountID: "rent", Amount: amt.Neg()},
		},
	}
}

func TestMatcher_ExactMatch(t *testing.T) {
	// Arrange
	m := NewMatcher(DefaultConfig())
	tx := makeTransaction("tx1", "Rent payment - Unit 4B", "1500.00", baseDate)

	entries := []*ledger.JournalEntry{
		makeEntry("je1", "Rent payment - Unit 4B", "1500.00", baseDate),
	}

	// Act
	result := m.FindMatch(tx, entries, nil)

	// Assert
	require.NotNil(t, result)
	assert.Equal(t, "je1", result.Entry.ID)
	assert.Equal(t, 0, result.DateDiff)
	assert.InDelta(t, 1.0, result.Similarity, 0.0001)
	assert.InDelta(t, 0.8, result.Confidence, 0.0001, "fuzzy matches are capped at 80%")
}

func TestMatcher_NegativeTransactionMatchesAbsoluteAmount(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	tx := makeTransaction("tx1", "City water utility", "-82.40", baseDate)

	result := m.FindMatch(tx, []*ledger.JournalEntry{makeEntry("je1", "city water utility", "82.40", baseDate)}, nil)

	require.NotNil(t, result)
	assert.Equal(t, "je1", result.Entry.ID)
}

func TestMatcher_AmountToleranceIsExclusive(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	tx := makeTransaction("tx1", "Rent payment", "100.00", baseDate)

	t.Run("within a fraction of a cent matches", func(t *testing.T) {
		result := m.FindMatch(tx, []*ledger.JournalEntry{makeEntry("je1", "Rent payment", "100.005", baseDate)}, nil)
		assert.NotNil(t, result)
	})

	t.Run("exactly one cent does not match", func(t *testing.T) {
		result := m.FindMatch(tx, []*ledger.JournalEntry{makeEntry("je1", "Rent payment", "100.01", baseDate)}, nil)
		assert.Nil(t, result)
	})
}

func TestMatcher_DateTolerance(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	tx := makeTransaction("tx1", "Rent payment", "100.00", baseDate)

	within := []*ledger.JournalEntry{makeEntry("je1", "Rent payment", "100.00", baseDate.AddDate(0, 0, 5))}
	assert.NotNil(t, m.FindMatch(tx, within, nil), "5 days is inside the window")

	before := []*ledger.JournalEntry{makeEntry("je1", "Rent payment", "100.00", baseDate.AddDate(0, 0, -5))}
	assert.NotNil(t, m.FindMatch(tx, before, nil))

	beyond := []*ledger.JournalEntry{makeEntry("je1", "Rent payment", "100.00", baseDate.AddDate(0, 0, 6))}
	assert.Nil(t, m.FindMatch(tx, beyond, nil), "6 days is outside the window")
}

func TestMatcher_SimilarityThreshold(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	tx := makeTransaction("tx1", "Rent payment", "100.00", baseDate)

	result := m.FindMatch(tx, []*ledger.JournalEntry{makeEntry("je1", "Landscaping invoice", "100.00", baseDate)}, nil)
	assert.Nil(t, result, "same amount but unrelated description")
}

func TestMatcher_FirstQualifyingEntryWins(t *testing.T) {
	// Arrange: the second entry is a better (exact) match but the first qualifies.
	m := NewMatcher(DefaultConfig())
	tx := makeTransaction("tx1", "rent payment unit 4b", "100.00", baseDate)

	entries := []*ledger.JournalEntry{
		makeEntry("je-first", "rent payment unit 4", "100.00", baseDate.AddDate(0, 0, -2)),
		makeEntry("je-best", "rent payment unit 4b", "100.00", baseDate),
	}

	// Act
	result := m.FindMatch(tx, entries, nil)

	// Assert
	require.NotNil(t, result)
	assert.Equal(t, "je-first", result.Entry.ID)
	assert.Less(t, result.Similarity, 1.0)
}

func TestMatcher_AlreadyUsed_Skipped(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	tx := makeTransaction("tx1", "Rent payment", "100.00", baseDate)

	entries := []*ledger.JournalEntry{makeEntry("je1", "Rent payment", "100.00", baseDate)}

	result := m.FindMatch(tx, entries, map[string]bool{"je1": true})
	assert.Nil(t, result)
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("abc", "abc"), 0.0001)
	assert.InDelta(t, 0.0, Similarity("", ""), 0.0001)
	assert.InDelta(t, 0.0, Similarity("abc", ""), 0.0001)
	// kitten → sitting is the textbook distance of 3 over 7 runes
	assert.InDelta(t, 1-3.0/7.0, Similarity("kitten", "sitting"), 0.0001)
}
