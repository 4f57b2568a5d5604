package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/propledger/internal/api/dto"
	"github.com/eshaffer321/propledger/internal/application/reconciliation"
	"github.com/eshaffer321/propledger/internal/domain/reconcile"
)

// ReconciliationsHandler handles bank reconciliation requests.
type ReconciliationsHandler struct {
	*Base
	svc *reconciliation.Service
}

// NewReconciliationsHandler creates a new reconciliations handler.
func NewReconciliationsHandler(base *Base, svc *reconciliation.Service) *ReconciliationsHandler {
	return &ReconciliationsHandler{Base: base, svc: svc}
}

// Start handles POST /api/reconciliations - opens a session for a statement.
func (h *ReconciliationsHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req dto.StartReconciliationRequest
	if !h.Decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.BankAccountID) == "" {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError("bank_account_id is required"))
		return
	}
	statementDate, err := ParseDate("statement_date", req.StatementDate)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError(err.Error()))
		return
	}

	session, err := h.svc.StartReconciliation(r.Context(), Org(r), req.BankAccountID, statementDate, req.StatementBalance)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, session)
}

// List handles GET /api/reconciliations?bank_account_id=.
func (h *ReconciliationsHandler) List(w http.ResponseWriter, r *http.Request) {
	bankAccountID := r.URL.Query().Get("bank_account_id")
	if bankAccountID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError("bank_account_id is required"))
		return
	}
	sessions, err := h.svc.ListSessions(r.Context(), Org(r), bankAccountID)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []*reconcile.Session{}
	}
	h.WriteJSON(w, http.StatusOK, dto.SessionListResponse{Sessions: sessions, Count: len(sessions)})
}

// Get handles GET /api/reconciliations/{id}.
func (h *ReconciliationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.GetSession(r.Context(), Org(r), chi.URLParam(r, "id"))
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, session)
}

// Complete handles POST /api/reconciliations/{id}/complete.
func (h *ReconciliationsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req dto.CompleteReconciliationRequest
	if r.ContentLength != 0 && !h.Decode(w, r, &req) {
		return
	}
	result, err := h.svc.CompleteReconciliation(r.Context(), Org(r), chi.URLParam(r, "id"), req.Adjustments)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}

// TrustOperating handles GET /api/reconciliations/trust-operating?as_of=.
// Without as_of the current balances are used.
func (h *ReconciliationsHandler) TrustOperating(w http.ResponseWriter, r *http.Request) {
	asOf, err := ParseDateParam(r, "as_of", time.Time{})
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError(err.Error()))
		return
	}
	result, err := h.svc.PerformTrustOperatingReconciliation(r.Context(), Org(r), asOf)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}

// ThreeWay handles POST /api/bank-accounts/{id}/three-way.
func (h *ReconciliationsHandler) ThreeWay(w http.ResponseWriter, r *http.Request) {
	var req dto.ThreeWayRequest
	if r.ContentLength != 0 && !h.Decode(w, r, &req) {
		return
	}
	result, err := h.svc.Perform3WayReconciliation(r.Context(), Org(r), chi.URLParam(r, "id"), req.PortalBalances)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}

// VoidCheck handles POST /api/bank-accounts/{id}/void-check.
func (h *ReconciliationsHandler) VoidCheck(w http.ResponseWriter, r *http.Request) {
	var req dto.VoidCheckRequest
	if !h.Decode(w, r, &req) {
		return
	}
	if req.CheckNumber == "" {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError("check_number is required"))
		return
	}
	offset, err := h.svc.VoidCheck(r.Context(), Org(r), chi.URLParam(r, "id"), req.CheckNumber)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, dto.VoidCheckResponse{Voided: offset != nil, Offset: offset})
}

// NSF handles POST /api/bank-accounts/{id}/nsf.
func (h *ReconciliationsHandler) NSF(w http.ResponseWriter, r *http.Request) {
	var req dto.NSFRequest
	if !h.Decode(w, r, &req) {
		return
	}
	if req.Reference == "" {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError("reference is required"))
		return
	}
	result, err := h.svc.ProcessNSF(r.Context(), Org(r), chi.URLParam(r, "id"), req.Reference)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}
