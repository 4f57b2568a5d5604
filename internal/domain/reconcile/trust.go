package reconcile

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/propledger/internal/domain/discrepancy"
	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/money"
)

// TrustOperatingResult compares trust and operating funds. The two balances
// are always computed separately; Combined is their sum.
type TrustOperatingResult struct {
	TrustBalance     decimal.Decimal           `json:"trust_balance"`
	OperatingBalance decimal.Decimal           `json:"operating_balance"`
	CombinedBalance  decimal.Decimal           `json:"combined_balance"`
	Commingled       bool                      `json:"commingled"`
	Discrepancies    []discrepancy.Discrepancy `json:"discrepancies"`
}

// NewTrustOperatingResult builds a result from independently computed balances
// and the postings of both buckets.
func NewTrustOperatingResult(
	trust, operating decimal.Decimal,
	postings []ledger.LedgerPosting,
	accountBuckets map[string]ledger.FundBucket,
) *TrustOperatingResult {
	found := DetectCommingling(postings, accountBuckets)
	return &TrustOperatingResult{
		TrustBalance:     money.Ledger(trust),
		OperatingBalance: money.Ledger(operating),
		CombinedBalance:  money.Ledger(trust.Add(operating)),
		Commingled:       len(found) > 0,
		Discrepancies:    found,
	}
}

// DetectCommingling flags postings that appear to mix trust and operating
// funds. Two checks run:
//   - a posting whose reference names the other bucket (heuristic, may produce
//     false positives on legitimate transfers);
//   - a posting whose FundBucket disagrees with its account's bucket.
//
// Findings are for human review and prove nothing about actual separation.
func DetectCommingling(postings []ledger.LedgerPosting, accountBuckets map[string]ledger.FundBucket) []discrepancy.Discrepancy {
	var found []discrepancy.Discrepancy

	for _, p := range postings {
		bucket := p.FundBucket
		accountBucket := accountBuckets[p.AccountID]
		if bucket == ledger.BucketNone {
			bucket = accountBucket
		}
		if bucket == ledger.BucketNone {
			continue
		}

		if accountBucket != ledger.BucketNone && p.FundBucket != ledger.BucketNone && accountBucket != p.FundBucket {
			found = append(found, commingled(p, fmt.Sprintf(
				"posting %s tagged %s on %s account %s", p.ID, p.FundBucket, accountBucket, p.AccountName)))
			continue
		}

		other := string(bucket.Other())
		if p.Reference != "" && strings.Contains(strings.ToLower(p.Reference), other) {
			found = append(found, commingled(p, fmt.Sprintf(
				"%s posting %s references %s funds (%s)", bucket, p.ID, other, p.Reference)))
		}
	}

	return found
}

func commingled(p ledger.LedgerPosting, description string) discrepancy.Discrepancy {
	return discrepancy.Discrepancy{
		Kind:        discrepancy.KindCommingled,
		Severity:    discrepancy.SeverityCritical,
		Description: description,
		Amount:      p.Amount.Abs(),
		PostingID:   p.ID,
	}
}
