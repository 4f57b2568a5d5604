package rules

import (
	"time"

	"github.com/eshaffer321/propledger/internal/domain/ledger"
)

// Field names a bank-transaction attribute a condition can test.
type Field string

const (
	FieldDescription  Field = "description"
	FieldMerchantName Field = "merchant_name"
	FieldAmount       Field = "amount"
	FieldCategory     Field = "category"
	FieldDate         Field = "date"
)

// Operator is a condition comparison.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpContains    Operator = "contains"
	OpStartsWith  Operator = "starts_with"
	OpRegex       Operator = "regex"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpBetween     Operator = "between"
)

// ActionType is the side of the journal entry an action writes.
type ActionType string

const (
	ActionDebit  ActionType = "debit"
	ActionCredit ActionType = "credit"
)

// Condition tests one field of a bank transaction.
// Value2 is only used by OpBetween (inclusive upper bound).
type Condition struct {
	Field    Field    `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    string   `json:"value" yaml:"value"`
	Value2   string   `json:"value2,omitempty" yaml:"value2,omitempty"`
}

// Action maps a matched transaction to a ledger account.
type Action struct {
	Type        ActionType `json:"type" yaml:"type"`
	AccountID   string     `json:"account_id" yaml:"account_id"`
	AccountName string     `json:"account_name" yaml:"account_name"`
}

// MatchingRule is an ordered condition → action mapping.
// Lower Priority values are evaluated first.
type MatchingRule struct {
	ID             string      `json:"id" yaml:"id"`
	OrganizationID string      `json:"organization_id" yaml:"-"`
	Name           string      `json:"name" yaml:"name"`
	Priority       int         `json:"priority" yaml:"priority"`
	Active         bool        `json:"active" yaml:"active"`
	Conditions     []Condition `json:"conditions" yaml:"conditions"`
	Actions        []Action    `json:"actions" yaml:"actions"`

	// Optional scoping; empty means the rule applies everywhere.
	BankAccountID string `json:"bank_account_id,omitempty" yaml:"bank_account_id,omitempty"`
	PropertyID    string `json:"property_id,omitempty" yaml:"property_id,omitempty"`

	// Usage statistics, updated on every successful match.
	MatchCount    int        `json:"match_count" yaml:"-"`
	LastMatchedAt *time.Time `json:"last_matched_at,omitempty" yaml:"-"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// postingActions returns the single debit and credit actions of the rule.
// ok is false unless there is exactly one of each.
func (r *MatchingRule) postingActions() (debit, credit Action, ok bool) {
	var debits, credits int
	for _, a := range r.Actions {
		switch a.Type {
		case ActionDebit:
			debit = a
			debits++
		case ActionCredit:
			credit = a
			credits++
		}
	}
	return debit, credit, debits == 1 && credits == 1
}

// CanAutoPost reports whether the rule resolves to exactly one debit and one
// credit action.
func (r *MatchingRule) CanAutoPost() bool {
	_, _, ok := r.postingActions()
	return ok
}

// Source identifies which component produced a match.
type Source string

const (
	SourceRule  Source = "rule"
	SourceFuzzy Source = "fuzzy"
)

// MatchResult is the outcome of matching one bank transaction.
// An unmatched transaction is a normal result, not an error.
type MatchResult struct {
	Matched        bool                      `json:"matched"`
	Confidence     float64                   `json:"confidence"`
	Source         Source                    `json:"source,omitempty"`
	RuleID         string                    `json:"rule_id,omitempty"`
	RuleName       string                    `json:"rule_name,omitempty"`
	MatchedEntryID string                    `json:"matched_entry_id,omitempty"`
	Similarity     float64                   `json:"similarity,omitempty"`
	Draft          *ledger.JournalEntryDraft `json:"journal_entry_data,omitempty"`
}

// NoMatch is the result for a transaction nothing matched.
func NoMatch() *MatchResult {
	return &MatchResult{Matched: false}
}
