package reconcile

import (
	"errors"
	"fmt"

	"github.com/eshaffer321/propledger/internal/domain/ledger"
)

// Error codes for precondition failures. Business outcomes such as a variance
// are never reported as errors.
const (
	CodeAccountNotFound   = "ACCOUNT_NOT_FOUND"
	CodeSessionNotFound   = "SESSION_NOT_FOUND"
	CodeDiagnosticsFailed = "DIAGNOSTICS_FAILED"
	CodeSessionClosed     = "SESSION_CLOSED"
	CodeUnbalancedEntry   = "UNBALANCED_ENTRY"
	CodeSessionInProgress = "SESSION_IN_PROGRESS"
	CodeOrgRequired       = "ORGANIZATION_REQUIRED"
)

// Error is a typed precondition failure carrying a machine-readable code.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates an Error with optional details.
func NewError(code, message string, details map[string]any) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

// AccountNotFound reports an unknown bank account.
func AccountNotFound(bankAccountID string) *Error {
	return NewError(CodeAccountNotFound, "bank account not found",
		map[string]any{"bank_account_id": bankAccountID})
}

// SessionNotFound reports an unknown reconciliation session.
func SessionNotFound(sessionID string) *Error {
	return NewError(CodeSessionNotFound, "reconciliation session not found",
		map[string]any{"session_id": sessionID})
}

// SessionClosed reports an attempt to mutate a terminal session.
func SessionClosed(sessionID string, status Status) *Error {
	return NewError(CodeSessionClosed, "reconciliation session is already "+string(status),
		map[string]any{"session_id": sessionID, "status": string(status)})
}

// SessionInProgress reports a second open session for one bank account.
func SessionInProgress(bankAccountID string) *Error {
	return NewError(CodeSessionInProgress, "a reconciliation is already in progress for this bank account",
		map[string]any{"bank_account_id": bankAccountID})
}

// RequireOrganization rejects calls without an organization.
func RequireOrganization(org ledger.OrganizationContext) error {
	if org.Valid() {
		return nil
	}
	return NewError(CodeOrgRequired, "organization id is required", nil)
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}
