package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/propledger/internal/api/dto"
	"github.com/eshaffer321/propledger/internal/application/reporting"
)

var errStartAfterEnd = errors.New("start must not be after end")

// ReportsHandler handles financial report requests.
type ReportsHandler struct {
	*Base
	svc *reporting.Service
	now func() time.Time
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(base *Base, svc *reporting.Service) *ReportsHandler {
	return &ReportsHandler{Base: base, svc: svc, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the clock used for default dates.
func (h *ReportsHandler) WithClock(now func() time.Time) *ReportsHandler {
	h.now = now
	return h
}

func (h *ReportsHandler) today() time.Time {
	n := h.now()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

// asOf reads as_of, defaulting to today.
func (h *ReportsHandler) asOf(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	asOf, err := ParseDateParam(r, "as_of", h.today())
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError(err.Error()))
		return time.Time{}, false
	}
	return asOf, true
}

// period reads start and end, defaulting to month-to-date.
func (h *ReportsHandler) period(w http.ResponseWriter, r *http.Request) (start, end time.Time, ok bool) {
	end, err := ParseDateParam(r, "end", h.today())
	if err == nil {
		start, err = ParseDateParam(r, "start", time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC))
	}
	if err == nil && start.After(end) {
		err = errStartAfterEnd
	}
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError(err.Error()))
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// TrialBalance handles GET /api/reports/trial-balance?as_of=.
func (h *ReportsHandler) TrialBalance(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	report, err := h.svc.TrialBalance(r.Context(), Org(r), asOf)
	h.write(w, r, report, err)
}

// BalanceSheet handles GET /api/reports/balance-sheet?as_of=. A failed
// trust diagnostic is reported as 422 with DIAGNOSTICS_FAILED.
func (h *ReportsHandler) BalanceSheet(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	report, err := h.svc.BalanceSheet(r.Context(), Org(r), asOf)
	h.write(w, r, report, err)
}

// IncomeStatement handles GET /api/reports/income-statement?start=&end=.
func (h *ReportsHandler) IncomeStatement(w http.ResponseWriter, r *http.Request) {
	start, end, ok := h.period(w, r)
	if !ok {
		return
	}
	report, err := h.svc.IncomeStatement(r.Context(), Org(r), start, end)
	h.write(w, r, report, err)
}

// PropertyPnL handles GET /api/reports/properties/{id}/pnl.
func (h *ReportsHandler) PropertyPnL(w http.ResponseWriter, r *http.Request) {
	start, end, ok := h.period(w, r)
	if !ok {
		return
	}
	report, err := h.svc.PropertyPnL(r.Context(), Org(r), chi.URLParam(r, "id"), start, end)
	h.write(w, r, report, err)
}

// OwnerStatement handles GET /api/reports/owners/{id}/statement.
func (h *ReportsHandler) OwnerStatement(w http.ResponseWriter, r *http.Request) {
	start, end, ok := h.period(w, r)
	if !ok {
		return
	}
	report, err := h.svc.OwnerStatement(r.Context(), Org(r), chi.URLParam(r, "id"), start, end)
	h.write(w, r, report, err)
}

// AccountActivity handles GET /api/reports/accounts/{id}/activity.
func (h *ReportsHandler) AccountActivity(w http.ResponseWriter, r *http.Request) {
	start, end, ok := h.period(w, r)
	if !ok {
		return
	}
	report, err := h.svc.AccountActivity(r.Context(), Org(r), chi.URLParam(r, "id"), start, end)
	h.write(w, r, report, err)
}

func (h *ReportsHandler) write(w http.ResponseWriter, r *http.Request, report any, err error) {
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, report)
}
