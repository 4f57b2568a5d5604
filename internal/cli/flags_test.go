package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/propledger/internal/domain/money"
	"github.com/eshaffer321/propledger/internal/domain/reconcile"
)

func TestParseImportFlags(t *testing.T) {
	t.Run("parses all flags", func(t *testing.T) {
		flags, err := ParseImportFlags([]string{
			"-org", "org-1", "-file", "feed.csv", "-account", "trust-bank",
			"-days", "30", "-dry-run", "-auto-post",
		})

		require.NoError(t, err)
		assert.Equal(t, "org-1", flags.Org().OrganizationID)
		assert.True(t, flags.AutoPost)

		opts := flags.ToImportOptions()
		assert.Equal(t, "trust-bank", opts.BankAccountID)
		assert.Equal(t, 30, opts.LookbackDays)
		assert.True(t, opts.DryRun)
		assert.False(t, opts.SkipMatching)
	})

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing org", []string{"-file", "f.csv", "-account", "a"}, "-org is required"},
		{"missing file", []string{"-org", "o", "-account", "a"}, "-file is required"},
		{"missing account", []string{"-org", "o", "-file", "f.csv"}, "-account is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseImportFlags(tt.args)
			assert.EqualError(t, err, tt.want)
		})
	}
}

func TestParseReconcileFlags(t *testing.T) {
	t.Run("start a session", func(t *testing.T) {
		flags, err := ParseReconcileFlags([]string{
			"-org", "org-1", "-account", "trust-bank", "-date", "2025-10-31", "-balance", "1500.00",
		})

		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC), flags.StatementDate)
		assert.True(t, flags.StatementBalance.Equal(money.MustParse("1500")))
		assert.False(t, flags.Complete)
		assert.Empty(t, flags.Adjustments())
	})

	t.Run("complete an existing session with adjustments", func(t *testing.T) {
		flags, err := ParseReconcileFlags([]string{
			"-org", "org-1", "-session", "s-1", "-fee", "-12.50", "-interest", "2.25",
		})

		require.NoError(t, err)
		assert.True(t, flags.Complete)

		adjustments := flags.Adjustments()
		require.Len(t, adjustments, 2)
		assert.Equal(t, reconcile.AdjustmentBankFee, adjustments[0].Type)
		assert.True(t, adjustments[0].Amount.Equal(money.MustParse("12.50")))
		assert.Equal(t, reconcile.AdjustmentInterest, adjustments[1].Type)
	})

	t.Run("rejects bad input", func(t *testing.T) {
		_, err := ParseReconcileFlags([]string{"-org", "o", "-account", "a", "-date", "31/10/2025", "-balance", "1"})
		assert.EqualError(t, err, "-date must be YYYY-MM-DD")

		_, err = ParseReconcileFlags([]string{"-org", "o", "-account", "a", "-date", "2025-10-31", "-balance", "lots"})
		assert.Error(t, err)

		_, err = ParseReconcileFlags([]string{"-org", "o", "-session", "s", "-fee", "x"})
		assert.Error(t, err)
	})
}

func TestParseServeFlags(t *testing.T) {
	flags, err := ParseServeFlags([]string{"-port", "9090", "-verbose"})

	require.NoError(t, err)
	assert.Equal(t, 9090, flags.Port)
	assert.True(t, flags.Verbose)
	assert.Equal(t, "config.yaml", flags.ConfigPath)
}
