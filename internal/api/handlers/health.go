package handlers

import (
	"net/http"
	"time"

	"github.com/eshaffer321/propledger/internal/api/dto"
)

// HealthHandler handles health check requests. It sits outside the
// organization middleware.
type HealthHandler struct {
	*Base
	started time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(base *Base) *HealthHandler {
	return &HealthHandler{Base: base, started: time.Now()}
}

// ServeHTTP handles the health check request.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	response := dto.NewHealthResponse()
	response.UptimeSeconds = int64(time.Since(h.started).Seconds())
	h.WriteJSON(w, http.StatusOK, response)
}
