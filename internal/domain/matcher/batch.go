package matcher

import (
	"github.com/shopspring/decimal"

	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/validator"
)

// MatchBatchDeposits matches bank credits against groups of ledger payment
// postings that share the credit's reference.
//
// Property managers commonly deposit several tenant payments as one bank
// deposit: a $4,500 deposit referenced "batch_001" settles three $1,500 rent
// payments recorded with the same reference. A group matches when its sum is
// within tolerance of the deposit. Each group settles at most one deposit.
func (m *Matcher) MatchBatchDeposits(
	credits []ledger.BankTransaction,
	postings []ledger.LedgerPosting,
) *BatchResult {
	result := &BatchResult{
		Unmatched: make([]ledger.BankTransaction, 0),
	}

	groups := groupPaymentsByReference(postings)

	// Track groups settled in this operation to prevent duplicates
	settled := make(map[string]bool)

	for _, tx := range credits {
		if tx.Direction != ledger.Credit {
			continue
		}

		group, ok := groups[tx.Reference]
		if tx.Reference == "" || !ok || settled[tx.Reference] {
			result.Unmatched = append(result.Unmatched, tx)
			continue
		}

		amounts := make([]decimal.Decimal, 0, len(group))
		for _, p := range group {
			amounts = append(amounts, p.Amount)
		}

		validation := validator.ValidateTotals(amounts, tx.Amount.Abs())
		if !validation.Valid {
			result.Unmatched = append(result.Unmatched, tx)
			continue
		}

		settled[tx.Reference] = true
		result.Matched++
		result.Groups = append(result.Groups, BatchGroup{
			TransactionID: tx.ID,
			Reference:     tx.Reference,
			Total:         validation.Total,
			Postings:      group,
		})
	}

	return result
}

// groupPaymentsByReference collects positive payment postings by reference.
func groupPaymentsByReference(postings []ledger.LedgerPosting) map[string][]ledger.LedgerPosting {
	groups := make(map[string][]ledger.LedgerPosting)
	for _, p := range postings {
		if p.Source != ledger.SourcePayment || p.Reference == "" || !p.Amount.IsPositive() {
			continue
		}
		groups[p.Reference] = append(groups[p.Reference], p)
	}
	return groups
}
