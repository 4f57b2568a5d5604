package matcher

import (
	"github.com/shopspring/decimal"

	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/money"
)

// Config holds matcher configuration
type Config struct {
	AmountTolerance     decimal.Decimal // Default: 0.01, exclusive (difference must be below it)
	DateTolerance       int             // Calendar days either side (default: 5)
	SimilarityThreshold float64         // Descriptions must be strictly more similar than this (default: 0.6)
	ConfidenceCap       float64         // Fuzzy confidence = similarity * cap (default: 0.8)
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		AmountTolerance:     money.Tolerance,
		DateTolerance:       5,
		SimilarityThreshold: 0.6,
		ConfidenceCap:       0.8,
	}
}

// MatchResult contains match information
type MatchResult struct {
	Entry      *ledger.JournalEntry
	Posting    *ledger.LedgerPosting // The posting whose amount matched
	DateDiff   int                   // Calendar days difference
	AmountDiff decimal.Decimal       // Absolute amount difference
	Similarity float64               // Description similarity, 0-1
	Confidence float64               // Similarity scaled by ConfidenceCap
}

// BatchResult contains results from batch deposit matching
type BatchResult struct {
	Matched   int                      `json:"matched"`
	Unmatched []ledger.BankTransaction `json:"unmatched"`
	Groups    []BatchGroup             `json:"groups,omitempty"`
}

// BatchGroup links one bank deposit to the ledger payments it settles
type BatchGroup struct {
	TransactionID string                 `json:"transaction_id"`
	Reference     string                 `json:"reference"`
	Total         decimal.Decimal        `json:"total"`
	Postings      []ledger.LedgerPosting `json:"postings"`
}
