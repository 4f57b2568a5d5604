package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/propledger/internal/api/dto"
	"github.com/eshaffer321/propledger/internal/application/matching"
	"github.com/eshaffer321/propledger/internal/domain/ledger"
	"github.com/eshaffer321/propledger/internal/infrastructure/storage"
)

// TransactionsHandler handles bank-transaction and matching requests.
type TransactionsHandler struct {
	*Base
	repo     storage.BankRepository
	matching *matching.Service
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(base *Base, repo storage.BankRepository, svc *matching.Service) *TransactionsHandler {
	return &TransactionsHandler{Base: base, repo: repo, matching: svc}
}

// List handles GET /api/transactions - returns a page of bank transactions.
// status may hold a comma-separated list.
func (h *TransactionsHandler) List(w http.ResponseWriter, r *http.Request) {
	params := dto.DefaultTransactionListParams()
	params.BankAccountID = r.URL.Query().Get("bank_account_id")
	params.Limit = ParseIntParam(r, "limit", params.Limit)
	params.Offset = ParseIntParam(r, "offset", params.Offset)
	if status := r.URL.Query().Get("status"); status != "" {
		params.Statuses = strings.Split(status, ",")
	}

	filter := storage.TransactionFilter{
		BankAccountID: params.BankAccountID,
		Limit:         params.Limit,
		Offset:        params.Offset,
	}
	for _, s := range params.Statuses {
		filter.Statuses = append(filter.Statuses, ledger.TransactionStatus(strings.TrimSpace(s)))
	}

	txs, err := h.repo.ListBankTransactions(r.Context(), Org(r), filter)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	if txs == nil {
		txs = []ledger.BankTransaction{}
	}
	h.WriteJSON(w, http.StatusOK, dto.TransactionListResponse{
		Transactions: txs,
		Count:        len(txs),
		Limit:        params.Limit,
		Offset:       params.Offset,
	})
}

// Get handles GET /api/transactions/{id}.
func (h *TransactionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	tx, err := h.repo.GetBankTransaction(r.Context(), Org(r), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("transaction"))
		return
	}
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, tx)
}

// Match handles POST /api/transactions/{id}/match.
func (h *TransactionsHandler) Match(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := h.matching.MatchByID(r.Context(), Org(r), id)
	if errors.Is(err, storage.ErrNotFound) {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("transaction"))
		return
	}
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, dto.MatchResponse{TransactionID: id, Result: result})
}

// MatchUnmatched handles POST /api/bank-accounts/{id}/match - matches every
// unmatched transaction of the account.
func (h *TransactionsHandler) MatchUnmatched(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	summary, err := h.matching.MatchUnmatched(r.Context(), Org(r), id)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, dto.BatchMatchResponse{BankAccountID: id, Summary: *summary})
}

// Repair handles POST /api/repair - fixes transactions left between match
// and post.
func (h *TransactionsHandler) Repair(w http.ResponseWriter, r *http.Request) {
	report, err := h.matching.RepairDanglingState(r.Context(), Org(r))
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, report)
}
