package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/eshaffer321/propledger/internal/api/dto"
	"github.com/eshaffer321/propledger/internal/api/middleware"
	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/domain/reconcile"
	"github.com/eshaffer321/propledger/internal/infrastructure/storage"
)

const dateLayout = "2006-01-02"

// Base provides shared functionality for all handlers.
type Base struct {
	logger *slog.Logger
}

// NewBase creates a new base handler with the given logger.
func NewBase(logger *slog.Logger) *Base {
	if logger == nil {
		logger = slog.Default()
	}
	return &Base{logger: logger}
}

// WriteJSON writes a JSON response with the given status code.
func (b *Base) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes an error response with the given status code.
func (b *Base) WriteError(w http.ResponseWriter, status int, err dto.APIError) {
	b.WriteJSON(w, status, err)
}

// WriteServiceError maps an error returned by a service to a response.
// Domain errors keep their code; anything unexpected is logged and hidden.
func (b *Base) WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var domainErr *reconcile.Error
	switch {
	case errors.As(err, &domainErr):
		status, body := dto.FromDomainError(domainErr)
		b.WriteError(w, status, body)
	case errors.Is(err, storage.ErrNotFound):
		b.WriteError(w, http.StatusNotFound, dto.NotFoundError("resource"))
	default:
		b.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		b.WriteError(w, http.StatusInternalServerError, dto.InternalError())
	}
}

// Decode reads a JSON request body into v.
func (b *Base) Decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		b.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body: "+err.Error()))
		return false
	}
	return true
}

// Org returns the organization resolved by the organization middleware.
func Org(r *http.Request) ledger.OrganizationContext {
	return middleware.OrganizationFrom(r.Context())
}

// ParseIntParam parses an integer query parameter with a default value.
func ParseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

// ParseBoolParam parses a boolean query parameter with a default value.
func ParseBoolParam(r *http.Request, name string, defaultVal bool) bool {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	return val == "true" || val == "1"
}

// ParseDateParam parses a YYYY-MM-DD query parameter with a default value.
func ParseDateParam(r *http.Request, name string, defaultVal time.Time) (time.Time, error) {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal, nil
	}
	return ParseDate(name, val)
}

// ParseDate parses a YYYY-MM-DD value as a UTC day.
func ParseDate(name, val string) (time.Time, error) {
	t, err := time.Parse(dateLayout, val)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD", name)
	}
	return t, nil
}
