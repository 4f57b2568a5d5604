// Package reporting generates financial statements from the ledger store's
// pre-aggregated balances. Reports never sum raw postings.
//
// Generated reports are cached per organization until the TTL expires or
// Invalidate is called after a posting.
package reporting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/money"
	"github.com/eshaffer321/propledger/internal/domain/reconcile"
	"github.com/eshaffer321/propledger/internal/domain/validator"
	"github.com/eshaffer321/propledger/internal/infrastructure/storage"
)

// Report names used in cache keys
const (
	reportTrialBalance    = "trial-balance"
	reportBalanceSheet    = "balance-sheet"
	reportIncomeStatement = "income-statement"
	reportPropertyPnL     = "property-pnl"
	reportOwnerStatement  = "owner-statement"
)

// Service builds reports
type Service struct {
	store  storage.LedgerRepository
	cache  *cache.Cache
	logger *slog.Logger
}

// NewService creates a reporting service. A zero or negative ttl disables caching.
func NewService(store storage.LedgerRepository, ttl time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{store: store, logger: logger}
	if ttl > 0 {
		s.cache = cache.New(ttl, 2*ttl)
	}
	return s
}

// Invalidate drops every cached report of the organization
func (s *Service) Invalidate(org ledger.OrganizationContext) {
	if s.cache == nil {
		return
	}
	prefix := org.OrganizationID + "|"
	for key := range s.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			s.cache.Delete(key)
		}
	}
}

func cacheKey(org ledger.OrganizationContext, report string, params ...string) string {
	return org.OrganizationID + "|" + report + "|" + strings.Join(params, "|")
}

func dayParam(t time.Time) string {
	return ledger.Day(t).Format("2006-01-02")
}

// cached returns a cached report or builds and stores it. Build errors are
// never cached.
func cached[T any](s *Service, key string, build func() (*T, error)) (*T, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			if report, ok := v.(*T); ok {
				return report, nil
			}
		}
	}
	report, err := build()
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.SetDefault(key, report)
	}
	return report, nil
}

// TrialBalance reports debit and credit totals per account as of a date
func (s *Service) TrialBalance(ctx context.Context, org ledger.OrganizationContext, asOf time.Time) (*TrialBalance, error) {
	if err := reconcile.RequireOrganization(org); err != nil {
		return nil, err
	}
	return cached(s, cacheKey(org, reportTrialBalance, dayParam(asOf)), func() (*TrialBalance, error) {
		rows, err := s.store.GetTrialBalanceAsOf(ctx, org, asOf)
		if err != nil {
			return nil, fmt.Errorf("failed to read trial balance: %w", err)
		}
		return buildTrialBalance(ledger.Day(asOf), rows), nil
	})
}

// BalanceSheet reports the financial position as of a date. It fails with
// DIAGNOSTICS_FAILED when trust funds do not cover tenant liabilities.
func (s *Service) BalanceSheet(ctx context.Context, org ledger.OrganizationContext, asOf time.Time) (*BalanceSheet, error) {
	if err := reconcile.RequireOrganization(org); err != nil {
		return nil, err
	}
	return cached(s, cacheKey(org, reportBalanceSheet, dayParam(asOf)), func() (*BalanceSheet, error) {
		rows, err := s.store.GetTrialBalanceAsOf(ctx, org, asOf)
		if err != nil {
			return nil, fmt.Errorf("failed to read trial balance: %w", err)
		}

		diagnostic := diagnoseTrust(rows)
		if !diagnostic.Passed {
			s.logger.Warn("trust integrity diagnostic failed",
				"organization_id", org.OrganizationID,
				"trust_balance", money.FormatDisplay(diagnostic.TrustBalance),
				"trust_liabilities", money.FormatDisplay(diagnostic.TrustLiabilities))
			return nil, reconcile.NewError(reconcile.CodeDiagnosticsFailed,
				"trust integrity diagnostic failed", map[string]any{
					"trust_balance":     money.FormatLedger(diagnostic.TrustBalance),
					"trust_liabilities": money.FormatLedger(diagnostic.TrustLiabilities),
					"shortfall":         money.FormatLedger(diagnostic.Shortfall),
					"issues":            diagnostic.Issues,
				})
		}

		sheet := &BalanceSheet{AsOf: ledger.Day(asOf), Diagnostic: diagnostic}
		for _, row := range rows {
			line := Line{AccountID: row.AccountID, AccountName: row.AccountName, Subtype: row.Subtype,
				Amount: normalAmount(row.AccountType, row.Debit, row.Credit)}
			switch row.AccountType {
			case ledger.AccountAsset:
				sheet.Assets.add(line)
			case ledger.AccountLiability:
				sheet.Liabilities.add(line)
			case ledger.AccountEquity:
				sheet.Equity.add(line)
			case ledger.AccountRevenue:
				sheet.NetIncome = sheet.NetIncome.Add(line.Amount)
			case ledger.AccountExpense:
				sheet.NetIncome = sheet.NetIncome.Sub(line.Amount)
			}
		}
		sheet.NetIncome = money.Ledger(sheet.NetIncome)
		if !sheet.NetIncome.IsZero() {
			sheet.Equity.add(Line{AccountName: "Current Net Income", Amount: sheet.NetIncome})
		}

		check := validator.ValidateEquation(sheet.Assets.Total, sheet.Liabilities.Total, sheet.Equity.Total)
		sheet.TotalLiabilitiesAndEquity = money.Ledger(sheet.Liabilities.Total.Add(sheet.Equity.Total))
		sheet.Balanced = check.Valid
		sheet.Difference = check.Difference
		if !check.Valid {
			s.logger.Warn("balance sheet out of balance", "reason", check.Reason)
		}
		return sheet, nil
	})
}

// IncomeStatement nets revenue against expenses over [start, end]
func (s *Service) IncomeStatement(ctx context.Context, org ledger.OrganizationContext, start, end time.Time) (*IncomeStatement, error) {
	if err := reconcile.RequireOrganization(org); err != nil {
		return nil, err
	}
	return cached(s, cacheKey(org, reportIncomeStatement, dayParam(start), dayParam(end)), func() (*IncomeStatement, error) {
		is, err := s.incomeStatement(ctx, org, storage.ActivityFilter{Start: start, End: end})
		if err != nil {
			return nil, err
		}
		return &is, nil
	})
}

// PropertyPnL is the income statement of one property over [start, end]
func (s *Service) PropertyPnL(ctx context.Context, org ledger.OrganizationContext, propertyID string, start, end time.Time) (*PropertyPnL, error) {
	if err := reconcile.RequireOrganization(org); err != nil {
		return nil, err
	}
	return cached(s, cacheKey(org, reportPropertyPnL, propertyID, dayParam(start), dayParam(end)), func() (*PropertyPnL, error) {
		is, err := s.incomeStatement(ctx, org, storage.ActivityFilter{Start: start, End: end, PropertyID: propertyID})
		if err != nil {
			return nil, err
		}
		return &PropertyPnL{PropertyID: propertyID, IncomeStatement: is}, nil
	})
}

// OwnerStatement reports one owner's income, distributions and
// contributions over [start, end]
func (s *Service) OwnerStatement(ctx context.Context, org ledger.OrganizationContext, ownerID string, start, end time.Time) (*OwnerStatement, error) {
	if err := reconcile.RequireOrganization(org); err != nil {
		return nil, err
	}
	return cached(s, cacheKey(org, reportOwnerStatement, ownerID, dayParam(start), dayParam(end)), func() (*OwnerStatement, error) {
		activity, err := s.store.ListAccountActivity(ctx, org, storage.ActivityFilter{Start: start, End: end, OwnerID: ownerID})
		if err != nil {
			return nil, fmt.Errorf("failed to read owner activity: %w", err)
		}

		stmt := &OwnerStatement{
			OwnerID:         ownerID,
			IncomeStatement: buildIncomeStatement(ledger.Day(start), ledger.Day(end), activity),
		}
		for _, a := range activity {
			switch a.Subtype {
			case ledger.SubtypeOwnerDistribution:
				stmt.Distributions = stmt.Distributions.Add(a.Debit.Sub(a.Credit))
			case ledger.SubtypeOwnerContribution:
				stmt.Contributions = stmt.Contributions.Add(a.Credit.Sub(a.Debit))
			}
		}
		stmt.Distributions = money.Ledger(stmt.Distributions)
		stmt.Contributions = money.Ledger(stmt.Contributions)
		stmt.NetOwnerActivity = money.Ledger(stmt.NetIncome.Add(stmt.Contributions).Sub(stmt.Distributions))
		return stmt, nil
	})
}

func (s *Service) incomeStatement(ctx context.Context, org ledger.OrganizationContext, filter storage.ActivityFilter) (IncomeStatement, error) {
	activity, err := s.store.ListAccountActivity(ctx, org, filter)
	if err != nil {
		return IncomeStatement{}, fmt.Errorf("failed to read account activity: %w", err)
	}
	return buildIncomeStatement(ledger.Day(filter.Start), ledger.Day(filter.End), activity), nil
}

// AccountActivity reports one account's net change over [start, end]
func (s *Service) AccountActivity(ctx context.Context, org ledger.OrganizationContext, accountID string, start, end time.Time) (*ledger.AccountActivity, error) {
	if err := reconcile.RequireOrganization(org); err != nil {
		return nil, err
	}
	activity, err := s.store.GetAccountActivity(ctx, org, accountID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to read activity of %s: %w", accountID, err)
	}
	return activity, nil
}
