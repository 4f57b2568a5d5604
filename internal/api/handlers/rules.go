package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/eshaffer321/propledger/internal/api/dto"
	"github.com/eshaffer321/propledger/internal/domain/rules"
	"github.com/eshaffer321/propledger/internal/infrastructure/storage"
)

// RulesHandler handles matching-rule requests.
type RulesHandler struct {
	*Base
	repo storage.RuleRepository
}

// NewRulesHandler creates a new rules handler.
func NewRulesHandler(base *Base, repo storage.RuleRepository) *RulesHandler {
	return &RulesHandler{Base: base, repo: repo}
}

// List handles GET /api/rules - returns rules ordered by priority.
func (h *RulesHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.ListRules(r.Context(), Org(r))
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []*rules.MatchingRule{}
	}
	h.WriteJSON(w, http.StatusOK, dto.RuleListResponse{Rules: list, Count: len(list)})
}

// Get handles GET /api/rules/{id}.
func (h *RulesHandler) Get(w http.ResponseWriter, r *http.Request) {
	rule, err := h.repo.GetRule(r.Context(), Org(r), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("rule"))
		return
	}
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, rule)
}

// Create handles POST /api/rules - validates and saves a rule. Usage
// statistics in the body are ignored.
func (h *RulesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var rule rules.MatchingRule
	if !h.Decode(w, r, &rule) {
		return
	}
	if err := rules.Validate(&rule); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError(err.Error()))
		return
	}

	now := time.Now().UTC()
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	rule.OrganizationID = Org(r).OrganizationID
	rule.MatchCount = 0
	rule.LastMatchedAt = nil
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := h.repo.SaveRule(r.Context(), &rule); err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	h.logger.Info("rule saved", "rule_id", rule.ID, "name", rule.Name)
	h.WriteJSON(w, http.StatusCreated, rule)
}
