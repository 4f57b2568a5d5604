package dto

import (
	"time"

	"github.com/eshaffer321/propledger/internal/application/matching"
	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/reconcile"
	"github.com/eshaffer321/propledger/internal/domain/rules"
	"github.com/eshaffer321/propledger/internal/infrastructure/storage"
)

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status        string `json:"status"`
	Timestamp     string `json:"timestamp"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// NewHealthResponse creates a health response with current timestamp.
func NewHealthResponse() HealthResponse {
	return HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// RuleListResponse is returned when listing matching rules.
type RuleListResponse struct {
	Rules []*rules.MatchingRule `json:"rules"`
	Count int                   `json:"count"`
}

// TransactionListResponse is returned when listing bank transactions.
type TransactionListResponse struct {
	Transactions []ledger.BankTransaction `json:"transactions"`
	Count        int                      `json:"count"`
	Limit        int                      `json:"limit"`
	Offset       int                      `json:"offset"`
}

// MatchResponse is returned after matching one transaction.
type MatchResponse struct {
	TransactionID string             `json:"transaction_id"`
	Result        *rules.MatchResult `json:"result"`
}

// BatchMatchResponse is returned after matching every unmatched transaction
// of a bank account.
type BatchMatchResponse struct {
	BankAccountID string                `json:"bank_account_id"`
	Summary       matching.BatchSummary `json:"summary"`
}

// SessionListResponse is returned when listing reconciliation sessions.
type SessionListResponse struct {
	Sessions []*reconcile.Session `json:"sessions"`
	Count    int                  `json:"count"`
}

// VoidCheckResponse is returned by the void-check endpoint. Voided is
// false when there was nothing to void.
type VoidCheckResponse struct {
	Voided bool                    `json:"voided"`
	Offset *ledger.BankTransaction `json:"offset,omitempty"`
}

// EventListResponse is returned when listing events.
type EventListResponse struct {
	Events []*storage.EventRecord `json:"events"`
	Count  int                    `json:"count"`
}
