package handler

import (
	"net/http"

	"github.com/keygate/backend/internal/repository"
)

// HealthHandler handles the health check endpoint.
type HealthHandler struct {
	store repository.Store
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(store repository.Store) *HealthHandler {
	return &HealthHandler{store: store}
}

// Check handles GET /health.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status": "ok",
	}

	if err := h.store.Ping(r.Context()); err != nil {
		status["database"] = "error"
		status["status"] = "degraded"
	} else {
		status["database"] = "ok"
	}

	code := http.StatusOK
	if status["status"] == "degraded" {
		code = http.StatusServiceUnavailable
	}

	JSON(w, code, status)
}
