package api

import (
	"net/http"
	"time"

	"github.com/phrazzld/resource-api/internal/api/shared"
	"github.com/phrazzld/resource-api/internal/domain"
)

// StatusHandler reports that the API is up and which kinds it serves.
type StatusHandler struct {
	registry *domain.Registry
	now      func() time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(registry *domain.Registry) *StatusHandler {
	return &StatusHandler{registry: registry, now: time.Now}
}

// Status handles GET /api/status.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	kinds := make([]string, 0)
	for _, k := range h.registry.All() {
		kinds = append(kinds, k.Name)
	}
	shared.RespondWithJSON(w, r, http.StatusOK, StatusResponse{
		Status:    "online",
		Message:   "API is running",
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Kinds:     kinds,
	})
}
