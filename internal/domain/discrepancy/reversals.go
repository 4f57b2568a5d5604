package discrepancy

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eshaffer321/propledger/internal/domain/ledger"
)

// DefaultNSFFee is charged when a tenant payment is returned unpaid.
var DefaultNSFFee = decimal.New(35, 0)

// Reference prefixes for offsetting transactions. They make reversals
// idempotent: a transaction is voided or returned at most once.
const (
	voidRefPrefix = "void:"
	nsfRefPrefix  = "nsf:"
	feeRefPrefix  = "nsf-fee:"
)

// VoidCheck locates the check by number and returns the offsetting credit
// dated at voidedAt. ok is false when no original check exists or it was
// already voided. The original transaction is never modified.
func VoidCheck(txs []ledger.BankTransaction, checkNumber string, voidedAt time.Time) (offset *ledger.BankTransaction, ok bool) {
	if strings.TrimSpace(checkNumber) == "" {
		return nil, false
	}

	var original *ledger.BankTransaction
	for i := range txs {
		if txs[i].CheckNumber == checkNumber && txs[i].Direction == ledger.Debit {
			original = &txs[i]
			break
		}
	}
	if original == nil || hasReference(txs, voidRefPrefix+original.ID) {
		return nil, false
	}

	return &ledger.BankTransaction{
		ID:             uuid.NewString(),
		OrganizationID: original.OrganizationID,
		BankAccountID:  original.BankAccountID,
		Date:           voidedAt,
		Amount:         original.Amount.Abs(),
		Direction:      ledger.Credit,
		Description:    fmt.Sprintf("VOID check #%s", checkNumber),
		Reference:      voidRefPrefix + original.ID,
		CheckNumber:    checkNumber,
		Cleared:        true,
		Status:         ledger.StatusUnmatched,
		CreatedAt:      voidedAt,
	}, true
}

// NSFResult holds the transactions produced by an NSF return.
type NSFResult struct {
	Reversed   bool                    `json:"reversed"`
	FeeCharged bool                    `json:"fee_charged"`
	Reversal   *ledger.BankTransaction `json:"reversal,omitempty"`
	Fee        *ledger.BankTransaction `json:"fee,omitempty"`
}

// ProcessNSF locates the original credit by reference and returns a debit
// reversal for the same amount plus a separate debit fee. Both flags are false
// when the payment reference cannot be found or was already returned.
// A zero fee selects DefaultNSFFee.
func ProcessNSF(txs []ledger.BankTransaction, reference string, fee decimal.Decimal, returnedAt time.Time) *NSFResult {
	if fee.IsZero() {
		fee = DefaultNSFFee
	}
	if strings.TrimSpace(reference) == "" {
		return &NSFResult{}
	}

	var original *ledger.BankTransaction
	for i := range txs {
		if txs[i].Reference == reference && txs[i].Direction == ledger.Credit {
			original = &txs[i]
			break
		}
	}
	if original == nil || hasReference(txs, nsfRefPrefix+original.ID) {
		return &NSFResult{}
	}

	reversal := &ledger.BankTransaction{
		ID:             uuid.NewString(),
		OrganizationID: original.OrganizationID,
		BankAccountID:  original.BankAccountID,
		Date:           returnedAt,
		Amount:         original.Amount.Abs().Neg(),
		Direction:      ledger.Debit,
		Description:    fmt.Sprintf("NSF return %s", reference),
		Reference:      nsfRefPrefix + original.ID,
		Cleared:        true,
		Status:         ledger.StatusUnmatched,
		CreatedAt:      returnedAt,
	}

	feeTx := &ledger.BankTransaction{
		ID:             uuid.NewString(),
		OrganizationID: original.OrganizationID,
		BankAccountID:  original.BankAccountID,
		Date:           returnedAt,
		Amount:         fee.Abs().Neg(),
		Direction:      ledger.Debit,
		Description:    fmt.Sprintf("NSF fee %s", reference),
		Reference:      feeRefPrefix + original.ID,
		Cleared:        true,
		Status:         ledger.StatusUnmatched,
		CreatedAt:      returnedAt,
	}

	return &NSFResult{
		Reversed:   true,
		FeeCharged: true,
		Reversal:   reversal,
		Fee:        feeTx,
	}
}

func hasReference(txs []ledger.BankTransaction, reference string) bool {
	for _, tx := range txs {
		if tx.Reference == reference {
			return true
		}
	}
	return false
}
