package reporting

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/money"
)

// Line is one account on a financial statement. Amount is signed by the
// account's normal balance: positive means a normal balance.
type Line struct {
	AccountID   string          `json:"account_id"`
	AccountName string          `json:"account_name"`
	Subtype     string          `json:"subtype"`
	Amount      decimal.Decimal `json:"amount"`
}

// Section groups statement lines with their total.
type Section struct {
	Lines []Line          `json:"lines"`
	Total decimal.Decimal `json:"total"`
}

func (s *Section) add(line Line) {
	line.Amount = money.Ledger(line.Amount)
	s.Lines = append(s.Lines, line)
	s.Total = money.Ledger(s.Total.Add(line.Amount))
}

// TrialBalance lists debit and credit totals per account as of a date.
type TrialBalance struct {
	AsOf        time.Time                `json:"as_of"`
	Rows        []ledger.TrialBalanceRow `json:"rows"`
	TotalDebit  decimal.Decimal          `json:"total_debit"`
	TotalCredit decimal.Decimal          `json:"total_credit"`
	Balanced    bool                     `json:"balanced"`
}

// TrustDiagnostic is the trust-integrity precondition of the balance sheet.
// Trust money must never be negative and must cover what is owed to tenants.
type TrustDiagnostic struct {
	Passed           bool            `json:"passed"`
	TrustBalance     decimal.Decimal `json:"trust_balance"`
	TrustLiabilities decimal.Decimal `json:"trust_liabilities"`
	Shortfall        decimal.Decimal `json:"shortfall"`
	Issues           []string        `json:"issues,omitempty"`
}

// BalanceSheet reports assets, liabilities and equity as of a date.
// Current-period net income is folded into equity.
type BalanceSheet struct {
	AsOf                      time.Time       `json:"as_of"`
	Assets                    Section         `json:"assets"`
	Liabilities               Section         `json:"liabilities"`
	Equity                    Section         `json:"equity"`
	NetIncome                 decimal.Decimal `json:"net_income"`
	TotalLiabilitiesAndEquity decimal.Decimal `json:"total_liabilities_and_equity"`
	Balanced                  bool            `json:"balanced"`
	Difference                decimal.Decimal `json:"difference"`
	Diagnostic                TrustDiagnostic `json:"diagnostic"`
}

// IncomeStatement nets revenue against expenses over a date range.
type IncomeStatement struct {
	Start     time.Time       `json:"start"`
	End       time.Time       `json:"end"`
	Revenue   Section         `json:"revenue"`
	Expenses  Section         `json:"expenses"`
	NetIncome decimal.Decimal `json:"net_income"`
}

// PropertyPnL is an income statement scoped to one property.
type PropertyPnL struct {
	PropertyID string `json:"property_id"`
	IncomeStatement
}

// OwnerStatement is an income statement scoped to one owner, plus the owner's
// equity movements over the period.
type OwnerStatement struct {
	OwnerID string `json:"owner_id"`
	IncomeStatement
	Distributions decimal.Decimal `json:"distributions"`
	Contributions decimal.Decimal `json:"contributions"`
	// NetOwnerActivity is net income plus contributions less distributions
	NetOwnerActivity decimal.Decimal `json:"net_owner_activity"`
}

// normalAmount converts debit/credit totals to an amount signed by the
// account type's normal balance.
func normalAmount(t ledger.AccountType, debit, credit decimal.Decimal) decimal.Decimal {
	if t.DebitNormal() {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

func buildTrialBalance(asOf time.Time, rows []ledger.TrialBalanceRow) *TrialBalance {
	tb := &TrialBalance{
		AsOf:        asOf,
		Rows:        rows,
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
	}
	for _, row := range rows {
		tb.TotalDebit = tb.TotalDebit.Add(row.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(row.Credit)
	}
	tb.TotalDebit = money.Ledger(tb.TotalDebit)
	tb.TotalCredit = money.Ledger(tb.TotalCredit)
	tb.Balanced = money.WithinTolerance(tb.TotalDebit, tb.TotalCredit)
	return tb
}

// diagnoseTrust checks the trust bank against security deposits and prepaid
// rent, the money held on behalf of tenants.
func diagnoseTrust(rows []ledger.TrialBalanceRow) TrustDiagnostic {
	trust, liabilities := decimal.Zero, decimal.Zero
	for _, row := range rows {
		switch row.Subtype {
		case ledger.SubtypeTrustBank:
			trust = trust.Add(row.Debit).Sub(row.Credit)
		case ledger.SubtypeSecurityDeposits, ledger.SubtypePrepaidRent:
			liabilities = liabilities.Add(row.Credit).Sub(row.Debit)
		}
	}

	d := TrustDiagnostic{
		Passed:           true,
		TrustBalance:     money.Ledger(trust),
		TrustLiabilities: money.Ledger(liabilities),
		Shortfall:        decimal.Zero,
	}
	if trust.IsNegative() {
		d.Passed = false
		d.Issues = append(d.Issues, "trust bank balance is negative: $"+money.FormatDisplay(trust))
	}
	if shortfall := liabilities.Sub(trust); shortfall.GreaterThan(money.Tolerance) {
		d.Passed = false
		d.Shortfall = money.Ledger(shortfall)
		d.Issues = append(d.Issues, "trust bank is short of tenant liabilities by $"+money.FormatDisplay(shortfall))
	}
	return d
}

func buildIncomeStatement(start, end time.Time, activity []ledger.AccountActivity) IncomeStatement {
	is := IncomeStatement{Start: start, End: end}
	for _, a := range activity {
		line := Line{AccountID: a.AccountID, AccountName: a.AccountName, Subtype: a.Subtype,
			Amount: normalAmount(a.AccountType, a.Debit, a.Credit)}
		switch a.AccountType {
		case ledger.AccountRevenue:
			is.Revenue.add(line)
		case ledger.AccountExpense:
			is.Expenses.add(line)
		}
	}
	is.NetIncome = money.Ledger(is.Revenue.Total.Sub(is.Expenses.Total))
	return is
}
