package discrepancy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/money"
)

func TestVoidCheck(t *testing.T) {
	check := bankTx("chk", "-250.00", day)
	check.CheckNumber = "1042"
	txs := []ledger.BankTransaction{check}

	t.Run("appends an offsetting credit", func(t *testing.T) {
		voidedAt := day.AddDate(0, 0, 2)

		offset, ok := VoidCheck(txs, "1042", voidedAt)

		require.True(t, ok)
		assert.Equal(t, ledger.Credit, offset.Direction)
		assert.Equal(t, "250.00", money.FormatDisplay(offset.Amount))
		assert.Equal(t, voidedAt, offset.Date)
		assert.Equal(t, "1042", offset.CheckNumber)
		assert.NotEqual(t, check.ID, offset.ID)
	})

	t.Run("unknown check number fails", func(t *testing.T) {
		offset, ok := VoidCheck(txs, "9999", day)
		assert.False(t, ok)
		assert.Nil(t, offset)
	})

	t.Run("already voided check fails", func(t *testing.T) {
		offset, ok := VoidCheck(txs, "1042", day)
		require.True(t, ok)

		again, ok := VoidCheck(append(txs, *offset), "1042", day)
		assert.False(t, ok)
		assert.Nil(t, again)
	})
}

func TestProcessNSF(t *testing.T) {
	payment := bankTx("pay", "1500.00", day)
	payment.Reference = "pay_101"
	txs := []ledger.BankTransaction{payment}

	t.Run("reverses the payment and charges the default fee", func(t *testing.T) {
		result := ProcessNSF(txs, "pay_101", decimal.Zero, day)

		require.True(t, result.Reversed)
		require.True(t, result.FeeCharged)
		assert.Equal(t, ledger.Debit, result.Reversal.Direction)
		assert.Equal(t, "-1500.00", money.FormatDisplay(result.Reversal.Amount))
		assert.Equal(t, ledger.Debit, result.Fee.Direction)
		assert.Equal(t, "-35.00", money.FormatDisplay(result.Fee.Amount))

		balance := money.Sum(payment.SignedAmount(), result.Reversal.SignedAmount(), result.Fee.SignedAmount())
		assert.Equal(t, "-35.0000", money.FormatLedger(balance))
	})

	t.Run("custom fee", func(t *testing.T) {
		result := ProcessNSF(txs, "pay_101", money.MustParse("50"), day)
		assert.Equal(t, "-50.00", money.FormatDisplay(result.Fee.Amount))
	})

	t.Run("unknown reference fails both flags", func(t *testing.T) {
		result := ProcessNSF(txs, "pay_404", decimal.Zero, day)
		assert.False(t, result.Reversed)
		assert.False(t, result.FeeCharged)
		assert.Nil(t, result.Reversal)
	})

	t.Run("a payment is returned only once", func(t *testing.T) {
		first := ProcessNSF(txs, "pay_101", decimal.Zero, day)
		again := ProcessNSF(append(txs, *first.Reversal, *first.Fee), "pay_101", decimal.Zero, day)
		assert.False(t, again.Reversed)
	})
}
