package storage

import (
	"errors"
	"time"

	"github.com/eshaffer321/propledger/internal/domain/ledger"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrSessionInProgress is returned when a bank account already has an
	// open reconciliation session.
	ErrSessionInProgress = errors.New("storage: reconciliation session already in progress")

	// ErrDuplicateTransaction is returned when a feed transaction was already imported.
	ErrDuplicateTransaction = errors.New("storage: duplicate bank transaction")
)

// PostingFilter selects ledger postings. Zero values match everything.
type PostingFilter struct {
	AccountIDs []string
	Subtypes   []string
	FundBucket ledger.FundBucket
	Source     ledger.SourceCategory
	Reference  string
	Start      time.Time
	End        time.Time

	entryID string
}

// ActivityFilter selects pre-aggregated activity over an inclusive date range.
type ActivityFilter struct {
	Start      time.Time
	End        time.Time
	PropertyID string // empty = all properties
	OwnerID    string // empty = all owners
}

// TransactionFilter selects bank transactions.
type TransactionFilter struct {
	BankAccountID string                     // empty = all accounts
	Statuses      []ledger.TransactionStatus // empty = all statuses
	Before        time.Time                  // zero = no upper bound (inclusive, by day)
	Limit         int                        // 0 = no limit
	Offset        int
}

// EventRecord is a persisted event.
type EventRecord struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	Name           string         `json:"name"`
	Payload        map[string]any `json:"payload,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

const dayLayout = "2006-01-02"

func dayKey(t time.Time) string {
	return ledger.Day(t).Format(dayLayout)
}

func hasStatus(statuses []ledger.TransactionStatus, s ledger.TransactionStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, want := range statuses {
		if want == s {
			return true
		}
	}
	return false
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
