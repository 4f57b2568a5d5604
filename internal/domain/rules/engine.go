// Package rules evaluates bank transactions against ordered matching rules to
// categorize them and draft the balancing journal entry.
//
// Evaluation is first-match-wins:
//   - Active rules are visited in ascending priority order
//   - A rule matches only if all of its conditions pass
//   - The first matching rule is returned; later rules are never evaluated
//
// Example usage:
//
//	engine := rules.NewEngine(logger)
//	result, rule := engine.Match(tx, activeRules, rules.Scope{})
//	if result.Matched {
//		// persist rule.MatchCount / rule.LastMatchedAt, then post result.Draft
//	}
package rules

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/money"
)

// Confidence weights.
const (
	baseConfidence      = 0.70
	perConditionBonus   = 0.05
	perEqualsBonus      = 0.10
	frequentUseBonus    = 0.05
	frequentUseMinCount = 10
)

const dateLayout = "2006-01-02"

// Scope narrows which scoped rules apply to a transaction. PropertyID is the
// property of the transaction's bank account, if any.
type Scope struct {
	PropertyID string
}

// Engine evaluates rules. It holds no rule state of its own.
type Engine struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates a rule engine.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the clock used to stamp LastMatchedAt.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// SortByPriority orders rules ascending by priority. Ties keep their input order.
func SortByPriority(rules []*MatchingRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority < rules[j].Priority
	})
}

// Match evaluates tx against rules and returns the result together with the
// winning rule. The winning rule's usage statistics are updated in place so the
// caller can persist them whether or not the draft is ever posted.
// When nothing matches, the returned rule is nil.
func (e *Engine) Match(tx ledger.BankTransaction, rules []*MatchingRule, scope Scope) (*MatchResult, *MatchingRule) {
	ordered := make([]*MatchingRule, 0, len(rules))
	for _, r := range rules {
		if r != nil && r.Active && r.applies(tx, scope) {
			ordered = append(ordered, r)
		}
	}
	SortByPriority(ordered)

	for _, rule := range ordered {
		if !e.matchesAll(tx, rule) {
			continue
		}

		result := &MatchResult{
			Matched:    true,
			Confidence: Confidence(rule),
			Source:     SourceRule,
			RuleID:     rule.ID,
			RuleName:   rule.Name,
			Draft:      BuildDraft(tx, rule),
		}

		now := e.now()
		rule.MatchCount++
		rule.LastMatchedAt = &now

		e.logger.Debug("rule matched",
			"rule_id", rule.ID,
			"rule", rule.Name,
			"transaction_id", tx.ID,
			"confidence", result.Confidence)

		return result, rule
	}

	return NoMatch(), nil
}

// applies checks the rule's optional scoping.
func (r *MatchingRule) applies(tx ledger.BankTransaction, scope Scope) bool {
	if r.BankAccountID != "" && r.BankAccountID != tx.BankAccountID {
		return false
	}
	if r.PropertyID != "" && r.PropertyID != scope.PropertyID {
		return false
	}
	return true
}

// matchesAll reports whether every condition passes. A rule without
// conditions never matches.
func (e *Engine) matchesAll(tx ledger.BankTransaction, rule *MatchingRule) bool {
	if len(rule.Conditions) == 0 {
		return false
	}
	for _, cond := range rule.Conditions {
		if !e.evaluate(tx, rule, cond) {
			return false
		}
	}
	return true
}

// Confidence scores a rule match:
// 0.70 + 0.05 per condition + 0.10 per equals condition + 0.05 for rules used
// more than 10 times, capped at 1.0. The usage bonus looks at the count before
// the current match is recorded.
func Confidence(rule *MatchingRule) float64 {
	score := baseConfidence + perConditionBonus*float64(len(rule.Conditions))
	for _, c := range rule.Conditions {
		if c.Operator == OpEquals {
			score += perEqualsBonus
		}
	}
	if rule.MatchCount > frequentUseMinCount {
		score += frequentUseBonus
	}
	return math.Min(score, 1.0)
}

// BuildDraft creates the two-posting journal entry for a matched transaction.
// The rule's debit account receives the signed external amount and the credit
// account its negation, so a negative (outgoing) transaction flips both legs.
// Returns nil if the rule cannot auto-post.
func BuildDraft(tx ledger.BankTransaction, rule *MatchingRule) *ledger.JournalEntryDraft {
	debit, credit, ok := rule.postingActions()
	if !ok {
		return nil
	}

	amount := money.Ledger(tx.SignedAmount())

	source := ledger.SourceDeposit
	if tx.Direction == ledger.Debit {
		source = ledger.SourceCharge
	}

	return &ledger.JournalEntryDraft{
		EntryDate:   ledger.Day(tx.Date),
		EntryType:   ledger.EntryTypeBankMatch,
		Description: tx.Description,
		Postings: []ledger.PostingDraft{
			{
				AccountID:   debit.AccountID,
				AccountName: debit.AccountName,
				Amount:      amount,
				Reference:   tx.Reference,
				Source:      source,
				PropertyID:  rule.PropertyID,
			},
			{
				AccountID:   credit.AccountID,
				AccountName: credit.AccountName,
				Amount:      amount.Neg(),
				Reference:   tx.Reference,
				Source:      source,
				PropertyID:  rule.PropertyID,
			},
		},
		Metadata: map[string]string{
			"bank_transaction_id": tx.ID,
			"bank_account_id":     tx.BankAccountID,
			"rule_id":             rule.ID,
		},
	}
}

// evaluate runs one condition. Malformed condition values are non-matches.
func (e *Engine) evaluate(tx ledger.BankTransaction, rule *MatchingRule, cond Condition) bool {
	switch cond.Field {
	case FieldDescription:
		return e.compareString(tx.Description, rule, cond)
	case FieldMerchantName:
		return e.compareString(tx.MerchantName, rule, cond)
	case FieldCategory:
		return e.compareString(tx.Category, rule, cond)
	case FieldAmount:
		return e.compareAmount(tx.Amount.Abs(), rule, cond)
	case FieldDate:
		return e.compareDate(ledger.Day(tx.Date), rule, cond)
	}
	return false
}

func (e *Engine) compareString(value string, rule *MatchingRule, cond Condition) bool {
	switch cond.Operator {
	case OpEquals:
		return strings.EqualFold(strings.TrimSpace(value), strings.TrimSpace(cond.Value))
	case OpContains:
		return strings.Contains(strings.ToLower(value), strings.ToLower(cond.Value))
	case OpStartsWith:
		return strings.HasPrefix(strings.ToLower(value), strings.ToLower(cond.Value))
	case OpRegex:
		return e.matchRegex(value, rule, cond)
	}
	return false
}

func (e *Engine) compareAmount(value decimal.Decimal, rule *MatchingRule, cond Condition) bool {
	switch cond.Operator {
	case OpContains, OpStartsWith, OpRegex:
		return e.compareString(money.FormatDisplay(value), rule, cond)
	}

	target, err := money.Parse(cond.Value)
	if err != nil {
		return false
	}

	switch cond.Operator {
	case OpEquals:
		return value.Equal(target)
	case OpGreaterThan:
		return value.GreaterThan(target)
	case OpLessThan:
		return value.LessThan(target)
	case OpBetween:
		upper, err := money.Parse(cond.Value2)
		if err != nil {
			return false
		}
		return value.GreaterThanOrEqual(target) && value.LessThanOrEqual(upper)
	}
	return false
}

func (e *Engine) compareDate(value time.Time, rule *MatchingRule, cond Condition) bool {
	switch cond.Operator {
	case OpContains, OpStartsWith, OpRegex:
		return e.compareString(value.Format(dateLayout), rule, cond)
	}

	target, err := time.Parse(dateLayout, strings.TrimSpace(cond.Value))
	if err != nil {
		return false
	}

	switch cond.Operator {
	case OpEquals:
		return value.Equal(target)
	case OpGreaterThan:
		return value.After(target)
	case OpLessThan:
		return value.Before(target)
	case OpBetween:
		upper, err := time.Parse(dateLayout, strings.TrimSpace(cond.Value2))
		if err != nil {
			return false
		}
		return !value.Before(target) && !value.After(upper)
	}
	return false
}

// matchRegex treats an invalid pattern as a non-match.
func (e *Engine) matchRegex(value string, rule *MatchingRule, cond Condition) bool {
	re, err := regexp.Compile(cond.Value)
	if err != nil {
		e.logger.Warn("invalid regex condition treated as non-match",
			"rule_id", rule.ID,
			"pattern", cond.Value,
			"error", err)
		return false
	}
	return re.MatchString(value)
}

// Validate checks a rule before it is saved.
func Validate(rule *MatchingRule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return fmt.Errorf("rule name is required")
	}
	if len(rule.Conditions) == 0 {
		return fmt.Errorf("rule %q has no conditions", rule.Name)
	}

	for i, c := range rule.Conditions {
		if err := validateCondition(c); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}

	for i, a := range rule.Actions {
		if a.Type != ActionDebit && a.Type != ActionCredit {
			return fmt.Errorf("action %d: invalid type %q", i, a.Type)
		}
		if a.AccountID == "" {
			return fmt.Errorf("action %d: account is required", i)
		}
	}

	return nil
}

func validateCondition(c Condition) error {
	switch c.Field {
	case FieldDescription, FieldMerchantName, FieldAmount, FieldCategory, FieldDate:
	default:
		return fmt.Errorf("invalid field %q", c.Field)
	}

	switch c.Operator {
	case OpEquals, OpContains, OpStartsWith, OpGreaterThan, OpLessThan:
	case OpRegex:
		if _, err := regexp.Compile(c.Value); err != nil {
			return fmt.Errorf("invalid regex %q: %w", c.Value, err)
		}
	case OpBetween:
		if c.Value2 == "" {
			return fmt.Errorf("between requires value2")
		}
	default:
		return fmt.Errorf("invalid operator %q", c.Operator)
	}

	return nil
}
