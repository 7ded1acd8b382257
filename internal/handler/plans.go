package handler

import (
	"net/http"

	"github.com/keygate/backend/internal/domain"
)

// PlansHandler handles plan-related endpoints.
type PlansHandler struct {
	plans domain.PlanCatalog
}

// NewPlansHandler creates a new PlansHandler.
func NewPlansHandler(plans domain.PlanCatalog) *PlansHandler {
	return &PlansHandler{plans: plans}
}

// List handles GET /api/plans.
func (h *PlansHandler) List(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.plans.All())
}
