package handlers

import (
	"net/http"

	"github.com/eshaffer321/propledger/internal/api/dto"
	"github.com/eshaffer321/propledger/internal/infrastructure/storage"
)

// EventsHandler handles audit-trail requests.
type EventsHandler struct {
	*Base
	repo storage.EventRepository
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(base *Base, repo storage.EventRepository) *EventsHandler {
	return &EventsHandler{Base: base, repo: repo}
}

// List handles GET /api/events?name=&limit= - returns recent events, newest first.
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	params := dto.DefaultEventListParams()
	params.Name = r.URL.Query().Get("name")
	params.Limit = ParseIntParam(r, "limit", params.Limit)

	list, err := h.repo.ListEvents(r.Context(), Org(r), params.Name, params.Limit)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []*storage.EventRecord{}
	}
	h.WriteJSON(w, http.StatusOK, dto.EventListResponse{Events: list, Count: len(list)})
}
