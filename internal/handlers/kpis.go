package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/provanto/provanto/internal/api"
	"github.com/provanto/provanto/internal/kpi"
)

// handleGetKPIs handles GET /api/kpis. tenant_id is required; project_id,
// from, and to (RFC 3339 dates) narrow the purchase-order population.
func (h *APIHandler) handleGetKPIs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	tenantID := q.Get("tenant_id")
	if tenantID == "" {
		api.RespondError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	filter := kpi.Filter{
		TenantID:  tenantID,
		ProjectID: q.Get("project_id"),
	}
	if v := q.Get("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			api.RespondError(w, http.StatusBadRequest, "from must be an RFC 3339 timestamp")
			return
		}
		filter.DateFrom = &from
	}
	if v := q.Get("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			api.RespondError(w, http.StatusBadRequest, "to must be an RFC 3339 timestamp")
			return
		}
		filter.DateTo = &to
	}

	dashboard, err := h.kpis.GetDashboard(filter)
	if err != nil {
		log.Printf("Failed to compute KPIs for tenant %s: %v", tenantID, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to compute KPIs")
		return
	}
	api.RespondJSON(w, http.StatusOK, dashboard)
}
