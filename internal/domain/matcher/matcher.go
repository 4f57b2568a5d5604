// Package matcher provides fuzzy matching of bank transactions against
// existing ledger entries, used when no matching rule applies.
//
// The matcher uses strict matching criteria:
//   - Entry must be dated within ±5 calendar days (configurable)
//   - Some posting's absolute amount must differ by less than 1 cent
//   - Descriptions must be more than 60% similar (Levenshtein based)
//   - Entry must not be already used
//
// The first qualifying entry wins. Candidates are visited in the order the
// ledger store returns them (ascending date); there is no search for the most
// similar entry.
//
// Example usage:
//
//	m := matcher.NewMatcher(matcher.DefaultConfig())
//	result := m.FindMatch(tx, entries, usedIDs)
//	if result != nil {
//		// Found a match!
//		entry := result.Entry
//	}
package matcher

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/money"
)

// Unit-cost edit distance (the library default charges 2 for substitutions).
var editOptions = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

// Matcher matches bank transactions with ledger entries
type Matcher struct {
	config Config
}

// NewMatcher creates a new matcher with the given config
func NewMatcher(config Config) *Matcher {
	return &Matcher{
		config: config,
	}
}

// Config returns the matcher configuration.
func (m *Matcher) Config() Config {
	return m.config
}

// FindMatch returns the first entry that matches tx, or nil.
func (m *Matcher) FindMatch(
	tx ledger.BankTransaction,
	entries []*ledger.JournalEntry,
	usedEntryIDs map[string]bool,
) *MatchResult {
	txAmount := tx.Amount.Abs()
	description := strings.ToLower(tx.Description)

	for _, entry := range entries {
		if entry == nil {
			continue
		}

		// Skip if already used
		if usedEntryIDs[entry.ID] {
			continue
		}

		dateDiff := ledger.DaysBetween(entry.EntryDate, tx.Date)
		if dateDiff > m.config.DateTolerance {
			continue
		}

		posting := m.findAmountMatch(entry, txAmount)
		if posting == nil {
			continue
		}

		similarity := Similarity(description, strings.ToLower(entry.Description))
		if similarity <= m.config.SimilarityThreshold {
			continue
		}

		return &MatchResult{
			Entry:      entry,
			Posting:    posting,
			DateDiff:   dateDiff,
			AmountDiff: money.Diff(txAmount, posting.Amount.Abs()),
			Similarity: similarity,
			Confidence: similarity * m.config.ConfidenceCap,
		}
	}

	return nil
}

// findAmountMatch returns the first posting whose absolute amount differs
// from amount by less than the amount tolerance.
func (m *Matcher) findAmountMatch(entry *ledger.JournalEntry, amount decimal.Decimal) *ledger.LedgerPosting {
	for i := range entry.Postings {
		p := &entry.Postings[i]
		if money.Diff(p.Amount.Abs(), amount).LessThan(m.config.AmountTolerance) {
			return p
		}
	}
	return nil
}

// Similarity returns 1 - editDistance/max(len(a), len(b)) over runes.
// Two empty strings have no similarity.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 0
	}

	distance := levenshtein.DistanceForStrings(ra, rb, editOptions)
	return 1 - float64(distance)/float64(longest)
}
